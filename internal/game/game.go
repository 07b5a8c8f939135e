// Package game is the control facade over the REST client, the realtime
// transport and the session store.
//
// Every verb performs the canonical REST write first and only broadcasts the
// matching transport action after the server confirmed the change. Peers must
// never learn of a state change the server did not persist; a failed REST call
// suppresses the emission entirely.
package game

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/equiz-client/internal/api"
	"github.com/victornm/equiz-client/internal/domain"
	"github.com/victornm/equiz-client/internal/errors"
	"github.com/victornm/equiz-client/internal/leaderboard"
	"github.com/victornm/equiz-client/internal/session"
	"github.com/victornm/equiz-client/internal/transport"
)

type Config struct {
	API       *api.Client
	Transport transport.Transport
	Store     *session.Store

	// Leaderboard is optional; when set it is bound to the transport alongside
	// the store handlers.
	Leaderboard *leaderboard.View

	// User is the authenticated identity from the auth snapshot.
	User domain.User

	Now func() time.Time
}

type Controller struct {
	api  *api.Client
	tr   transport.Transport
	st   *session.Store
	lb   *leaderboard.View
	user domain.User
	now  func() time.Time

	unsubs []func()
}

func New(c Config) *Controller {
	if c.Now == nil {
		c.Now = time.Now
	}

	return &Controller{
		api:  c.API,
		tr:   c.Transport,
		st:   c.Store,
		lb:   c.Leaderboard,
		user: c.User,
		now:  c.Now,
	}
}

// Connect establishes the realtime channel and wires inbound events into the
// store. Safe to call when already connected.
func (g *Controller) Connect(ctx context.Context) error {
	if err := g.tr.Connect(ctx); err != nil {
		return err
	}
	g.bindTransport()
	return nil
}

func (g *Controller) bindTransport() {
	if len(g.unsubs) > 0 {
		return
	}

	sub := func(name string, h func(ctx context.Context, raw json.RawMessage)) {
		g.unsubs = append(g.unsubs, g.tr.Subscribe(name, h))
	}

	sub(domain.EventNameJoined, func(ctx context.Context, raw json.RawMessage) {
		var p domain.PlayerJoinedPayload
		if !decode(ctx, domain.EventNameJoined, raw, &p) {
			return
		}
		g.st.SetSelf(p.Player)
	})

	sub(domain.EventNamePlayerJoined, func(ctx context.Context, raw json.RawMessage) {
		var p domain.PlayerJoinedPayload
		if !decode(ctx, domain.EventNamePlayerJoined, raw, &p) {
			return
		}
		g.st.UpsertPlayer(ctx, p.Player)
	})

	sub(domain.EventNameGameStarted, func(ctx context.Context, raw json.RawMessage) {
		var p domain.GameStartedPayload
		if !decode(ctx, domain.EventNameGameStarted, raw, &p) {
			return
		}
		g.st.ApplySession(ctx, p.Session)
	})

	sub(domain.EventNameQuestionStarted, func(ctx context.Context, raw json.RawMessage) {
		var p domain.QuestionStartedPayload
		if !decode(ctx, domain.EventNameQuestionStarted, raw, &p) {
			return
		}
		g.st.StartQuestion(p.Question, p.QuestionIndex, time.Duration(p.TimeLimit)*time.Second)
	})

	sub(domain.EventNameAnswerSubmitted, func(ctx context.Context, raw json.RawMessage) {
		var p domain.AnswerSubmittedPayload
		if !decode(ctx, domain.EventNameAnswerSubmitted, raw, &p) {
			return
		}
		// Submission-occurred notification only; nothing to merge until the
		// question closes and results are revealed.
		slog.DebugContext(ctx, "game: peer answered", "player", p.PlayerID, "question", p.QuestionID)
	})

	sub(domain.EventNameQuestionEnded, func(ctx context.Context, raw json.RawMessage) {
		var p domain.QuestionEndedPayload
		if !decode(ctx, domain.EventNameQuestionEnded, raw, &p) {
			return
		}
		g.st.EndQuestion(ctx, p.Answers)
	})

	sub(domain.EventNameGameEnded, func(ctx context.Context, raw json.RawMessage) {
		var p domain.GameEndedPayload
		if !decode(ctx, domain.EventNameGameEnded, raw, &p) {
			return
		}
		g.st.ApplySession(ctx, p.Session)
		if len(p.Players) > 0 {
			g.st.ReplaceRoster(p.Players)
		}
	})

	sub(domain.EventNameChatMessage, func(ctx context.Context, raw json.RawMessage) {
		var m domain.ChatMessage
		if !decode(ctx, domain.EventNameChatMessage, raw, &m) {
			return
		}
		g.st.AppendChat(m)
	})

	sub(domain.EventNameError, func(ctx context.Context, raw json.RawMessage) {
		var p domain.ErrorPayload
		if !decode(ctx, domain.EventNameError, raw, &p) {
			return
		}
		slog.ErrorContext(ctx, "game: server error event", "code", p.Code, "message", p.Message)
	})

	if g.lb != nil {
		g.unsubs = append(g.unsubs, g.lb.Bind(g.tr))
	}
}

func decode(ctx context.Context, name string, raw json.RawMessage, v any) bool {
	if err := json.Unmarshal(raw, v); err != nil {
		slog.ErrorContext(ctx, "game: dropping undecodable payload", "event", name, "error", err)
		return false
	}
	return true
}

// run brackets a verb with the store's loading/error bookkeeping. The cleanup
// always runs, so a failed call can never leave the loading flag stuck.
func (g *Controller) run(fn func() error) (err error) {
	g.st.BeginAction()
	defer func() { g.st.EndAction(err) }()

	return fn()
}

func (g *Controller) CreateGame(ctx context.Context, quizID int64) (*domain.Session, error) {
	var created *domain.Session
	err := g.run(func() error {
		ss, err := g.api.CreateSession(ctx, api.CreateSessionRequest{QuizID: quizID})
		if err != nil {
			return err
		}
		g.st.ApplySession(ctx, *ss)
		created = ss
		return nil
	})
	return created, err
}

// JoinGame joins via REST, records the local player, then announces the join
// to peers.
func (g *Controller) JoinGame(ctx context.Context, sessionID, nickname string) (*domain.Player, error) {
	var joined *domain.Player
	err := g.run(func() error {
		p, err := g.api.JoinSession(ctx, api.JoinSessionRequest{SessionID: sessionID, Nickname: nickname})
		if err != nil {
			return err
		}
		g.st.SetSelf(*p)
		joined = p

		g.emit(ctx, domain.ActionJoinSession, domain.JoinSessionPayload{
			SessionID: sessionID,
			UserID:    g.user.ID,
			Nickname:  p.Nickname,
		})
		return nil
	})
	return joined, err
}

func (g *Controller) StartGame(ctx context.Context, sessionID string) (*domain.Session, error) {
	if held, ok := g.st.Session(); ok && held.ID == sessionID && held.HostID != g.user.ID {
		return nil, errors.New(errors.CodeInvalidOperation,
			errors.WithMessagef("start game: user %d is not the host", g.user.ID))
	}

	var started *domain.Session
	err := g.run(func() error {
		ss, err := g.api.StartSession(ctx, sessionID)
		if err != nil {
			return err
		}
		g.st.ApplySession(ctx, *ss)
		started = ss

		g.emit(ctx, domain.ActionStartGame, domain.GameActionPayload{
			SessionID: sessionID,
			UserID:    g.user.ID,
		})
		return nil
	})
	return started, err
}

// SubmitAnswer enforces the hard local gate: no locally observed open
// question, or an answer already sent, fails with InvalidOperation before any
// REST call. The answered flag is set optimistically and reopened on failure.
func (g *Controller) SubmitAnswer(ctx context.Context, choiceID int64) (*domain.PlayerAnswer, error) {
	q, ok := g.st.ActiveQuestion()
	if !ok {
		return nil, errors.New(errors.CodeInvalidOperation,
			errors.WithMessagef("submit answer: no active question"))
	}
	held, ok := g.st.Session()
	if !ok {
		return nil, errors.New(errors.CodeInvalidOperation,
			errors.WithMessagef("submit answer: no session"))
	}
	if !g.st.MarkAnswered() {
		return nil, errors.New(errors.CodeInvalidOperation,
			errors.WithMessagef("submit answer: already answered question %d", q.Question.ID))
	}

	timeSpent := g.now().Sub(q.StartedAt).Seconds()

	var answer *domain.PlayerAnswer
	err := g.run(func() error {
		a, err := g.api.SubmitAnswer(ctx, api.SubmitAnswerRequest{
			SessionID:  held.ID,
			QuestionID: q.Question.ID,
			ChoiceID:   choiceID,
			TimeSpent:  timeSpent,
		})
		if err != nil {
			g.st.UnmarkAnswered()
			return err
		}
		g.st.RecordOwnAnswer(*a)
		answer = a

		g.emit(ctx, domain.ActionSubmitAnswer, domain.SubmitAnswerPayload{
			SessionID:  held.ID,
			UserID:     g.user.ID,
			QuestionID: q.Question.ID,
			ChoiceID:   choiceID,
			TimeSpent:  timeSpent,
		})
		return nil
	})
	return answer, err
}

func (g *Controller) EndGame(ctx context.Context, sessionID string) (*domain.Session, error) {
	var ended *domain.Session
	err := g.run(func() error {
		ss, err := g.api.EndSession(ctx, sessionID)
		if err != nil {
			return err
		}
		g.st.ApplySession(ctx, *ss)
		ended = ss

		g.emit(ctx, domain.ActionEndGame, domain.GameActionPayload{
			SessionID: sessionID,
			UserID:    g.user.ID,
		})
		return nil
	})
	return ended, err
}

// SendChat is transport-only: chat has no canonical REST write. The local log
// is fed by the server echo, not by this send.
func (g *Controller) SendChat(ctx context.Context, message string) error {
	held, ok := g.st.Session()
	if !ok {
		return errors.New(errors.CodeInvalidOperation,
			errors.WithMessagef("chat: no session"))
	}

	if !g.tr.Send(ctx, domain.ActionChatMessage, domain.ChatMessage{
		SessionID: held.ID,
		UserID:    g.user.ID,
		Message:   message,
	}) {
		return errors.New(errors.CodeTransportUnavailable,
			errors.WithMessagef("chat: no live connection"))
	}
	return nil
}

// FetchSession refreshes the snapshot from the detail endpoint.
func (g *Controller) FetchSession(ctx context.Context, sessionID string) error {
	return g.run(func() error {
		d, err := g.api.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		g.st.ApplySession(ctx, *d.Session)
		for _, p := range d.Players {
			g.st.UpsertPlayer(ctx, p)
		}
		return nil
	})
}

// FetchResults loads the final standings; the results roster replaces the
// held one wholesale.
func (g *Controller) FetchResults(ctx context.Context, sessionID string) ([]domain.Player, error) {
	var players []domain.Player
	err := g.run(func() error {
		d, err := g.api.GetResults(ctx, sessionID)
		if err != nil {
			return err
		}
		g.st.ApplySession(ctx, *d.Session)
		g.st.ReplaceRoster(d.Players)
		players = d.Players
		return nil
	})
	if err != nil {
		return nil, err
	}
	return players, nil
}

// Refresh re-reads the session detail and the results in parallel. Both land
// in the store through the same merge rules, so arrival order does not matter.
func (g *Controller) Refresh(ctx context.Context, sessionID string) error {
	return g.run(func() error {
		eg, ctx := errgroup.WithContext(ctx)

		eg.Go(func() error {
			d, err := g.api.GetSession(ctx, sessionID)
			if err != nil {
				return err
			}
			g.st.ApplySession(ctx, *d.Session)
			for _, p := range d.Players {
				g.st.UpsertPlayer(ctx, p)
			}
			return nil
		})

		eg.Go(func() error {
			d, err := g.api.GetResults(ctx, sessionID)
			if err != nil {
				// Results exist only once the game ended; a missing resource is
				// not a refresh failure.
				if errors.Is(err, errors.CodeNotFound) {
					return nil
				}
				return err
			}
			g.st.ApplySession(ctx, *d.Session)
			return nil
		})

		return eg.Wait()
	})
}

// Leave tears the whole client session down: transport, subscriptions, store.
func (g *Controller) Leave() error {
	for _, unsub := range g.unsubs {
		unsub()
	}
	g.unsubs = nil

	err := g.tr.Disconnect()
	g.st.Reset()
	return err
}

// emit broadcasts a transport action after a confirmed canonical write.
// Best effort: a rejected send is logged, never surfaced to the caller.
func (g *Controller) emit(ctx context.Context, action string, payload any) {
	if !g.tr.Send(ctx, action, payload) {
		slog.WarnContext(ctx, "game: broadcast dropped", "action", action)
	}
}
