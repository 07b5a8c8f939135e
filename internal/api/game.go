package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/victornm/equiz-client/internal/domain"
	"github.com/victornm/equiz-client/internal/errors"
)

// Session lifecycle verbs. Create and SubmitAnswer are not idempotent;
// the reads are. The server is authoritative for all of them.

type CreateSessionRequest struct {
	QuizID int64 `json:"quizId"`
}

func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (*domain.Session, error) {
	env, err := c.post(ctx, "/games/sessions", req)
	if err != nil {
		return nil, err
	}

	if env.Session == nil {
		return nil, errors.New(errors.CodeRequestFailed,
			errors.WithMessagef("create session: response carried no session"))
	}
	return env.Session, nil
}

type ListSessionsRequest struct {
	HostOnly bool
}

func (c *Client) ListSessions(ctx context.Context, req ListSessionsRequest) ([]domain.Session, error) {
	q := url.Values{}
	q.Set("hostOnly", strconv.FormatBool(req.HostOnly))

	env, err := c.get(ctx, "/games/sessions", q)
	if err != nil {
		return nil, err
	}
	return env.Sessions, nil
}

// SessionDetail is the session plus its full roster, as returned by the
// detail and results endpoints.
type SessionDetail struct {
	Session *domain.Session
	Players []domain.Player
}

func (c *Client) GetSession(ctx context.Context, sessionID string) (*SessionDetail, error) {
	env, err := c.get(ctx, fmt.Sprintf("/games/sessions/%s", sessionID), nil)
	if err != nil {
		return nil, err
	}

	if env.Session == nil {
		return nil, errors.New(errors.CodeRequestFailed,
			errors.WithMessagef("get session %s: response carried no session", sessionID))
	}
	return &SessionDetail{Session: env.Session, Players: env.Players}, nil
}

type JoinSessionRequest struct {
	SessionID string `json:"-"`
	Nickname  string `json:"nickname"`
}

func (c *Client) JoinSession(ctx context.Context, req JoinSessionRequest) (*domain.Player, error) {
	env, err := c.post(ctx, fmt.Sprintf("/games/sessions/%s/join", req.SessionID), req)
	if err != nil {
		return nil, err
	}

	if env.Player == nil {
		return nil, errors.New(errors.CodeRequestFailed,
			errors.WithMessagef("join session %s: response carried no player", req.SessionID))
	}
	return env.Player, nil
}

func (c *Client) StartSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	return c.sessionAction(ctx, sessionID, "start")
}

func (c *Client) EndSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	return c.sessionAction(ctx, sessionID, "end")
}

func (c *Client) sessionAction(ctx context.Context, sessionID, action string) (*domain.Session, error) {
	env, err := c.post(ctx, fmt.Sprintf("/games/sessions/%s/%s", sessionID, action), nil)
	if err != nil {
		return nil, err
	}

	if env.Session == nil {
		return nil, errors.New(errors.CodeRequestFailed,
			errors.WithMessagef("%s session %s: response carried no session", action, sessionID))
	}
	return env.Session, nil
}

type SubmitAnswerRequest struct {
	SessionID  string  `json:"-"`
	QuestionID int64   `json:"questionId"`
	ChoiceID   int64   `json:"choiceId"`
	TimeSpent  float64 `json:"timeSpent"`
}

// SubmitAnswer submits once; a second submission for the same question is the
// server's to reject. The store keeps its own already-answered gate on top.
func (c *Client) SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) (*domain.PlayerAnswer, error) {
	env, err := c.post(ctx, fmt.Sprintf("/games/sessions/%s/answers", req.SessionID), req)
	if err != nil {
		return nil, err
	}

	var answer domain.PlayerAnswer
	if err := unmarshalData(env, &answer); err != nil {
		return nil, errors.New(errors.CodeRequestFailed,
			errors.WithMessagef("submit answer: bad answer payload"),
			errors.WithCause(err),
		)
	}
	return &answer, nil
}

func (c *Client) GetResults(ctx context.Context, sessionID string) (*SessionDetail, error) {
	env, err := c.get(ctx, fmt.Sprintf("/games/sessions/%s/results", sessionID), nil)
	if err != nil {
		return nil, err
	}

	if env.Session == nil {
		return nil, errors.New(errors.CodeRequestFailed,
			errors.WithMessagef("results %s: response carried no session", sessionID))
	}
	return &SessionDetail{Session: env.Session, Players: env.Players}, nil
}
