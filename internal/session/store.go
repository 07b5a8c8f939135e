// Package session holds the reconciled client-side view of one game session.
//
// The store is the only owner of session state in memory. REST responses and
// transport events both land here through the same merge rules: last writer
// wins keyed by entity identifier, never a positional patch. An update that
// carries a version older than the held one is rejected, closing the
// stale-overwrite window between an in-flight REST read and a newer socket
// delivery.
package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/victornm/equiz-client/internal/domain"
)

type Config struct {
	// Now is the clock used to timestamp question activation. The activation
	// time is local, not the server's, so time-left is subject to clock skew.
	Now func() time.Time
}

type Store struct {
	now func() time.Time

	mu      sync.RWMutex
	session *domain.Session
	players []domain.Player
	self    *domain.Player

	question *ActiveQuestion
	answered bool

	ownAnswers []domain.PlayerAnswer
	answerLog  []domain.AnswerResult
	chat       []domain.ChatMessage

	loading bool
	lastErr string
}

// ActiveQuestion is the single question currently open for answers.
// At most one exists per session at any time.
type ActiveQuestion struct {
	Question  domain.Question
	Index     int
	TimeLimit time.Duration
	StartedAt time.Time
}

func NewStore(c Config) *Store {
	if c.Now == nil {
		c.Now = time.Now
	}
	return &Store{now: c.Now}
}

// ApplySession replaces the held session object with the received copy.
// The copy is rejected when it is versioned older than the held one, or when
// its status would move the lifecycle backward. Embedded players are upserted.
func (s *Store) ApplySession(ctx context.Context, in domain.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur := s.session; cur != nil && cur.ID == in.ID {
		if in.Version > 0 && cur.Version > 0 && in.Version < cur.Version {
			slog.WarnContext(ctx, "session: rejecting stale session update",
				"session", in.ID, "held", cur.Version, "received", in.Version)
			return false
		}
		if !cur.Status.CanTransition(in.Status) {
			slog.WarnContext(ctx, "session: rejecting backward status transition",
				"session", in.ID, "held", cur.Status, "received", in.Status)
			return false
		}
	}

	players := in.Players
	in.Players = nil
	s.session = &in

	for _, p := range players {
		s.upsertPlayerLocked(ctx, p)
	}
	return true
}

// UpsertPlayer merges one roster entry by identifier: update in place when
// present, append when absent. A lone join event never shrinks the roster.
func (s *Store) UpsertPlayer(ctx context.Context, p domain.Player) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.upsertPlayerLocked(ctx, p)
}

func (s *Store) upsertPlayerLocked(ctx context.Context, p domain.Player) {
	for i, held := range s.players {
		if held.ID != p.ID {
			continue
		}
		if p.Version > 0 && held.Version > 0 && p.Version < held.Version {
			slog.WarnContext(ctx, "session: rejecting stale player update",
				"player", p.ID, "held", held.Version, "received", p.Version)
			return
		}
		s.players[i] = p
		s.syncSelfLocked(p)
		return
	}

	s.players = append(s.players, p)
	s.syncSelfLocked(p)
}

func (s *Store) syncSelfLocked(p domain.Player) {
	if s.self != nil && s.self.ID == p.ID {
		cp := p
		s.self = &cp
	}
}

// ReplaceRoster swaps the whole roster. Only an explicit roster replacement,
// e.g. accompanying game end, may shrink it.
func (s *Store) ReplaceRoster(players []domain.Player) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.players = append([]domain.Player(nil), players...)
	for _, p := range players {
		s.syncSelfLocked(p)
	}
}

// SetSelf records which roster entry is the local player.
func (s *Store) SetSelf(p domain.Player) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.self = &p
	s.upsertPlayerLocked(context.Background(), p)
}

// StartQuestion opens a question for answers: sets the active question,
// stamps the activation time from the local clock, clears the answered flag.
func (s *Store) StartQuestion(q domain.Question, index int, limit time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.question = &ActiveQuestion{
		Question:  q,
		Index:     index,
		TimeLimit: limit,
		StartedAt: s.now(),
	}
	s.answered = false
}

// EndQuestion closes the active question, appends the revealed answer records
// and applies their score deltas to the roster by identifier lookup. A delta
// with no matching player is logged and dropped. Deltas are not deduplicated:
// a replayed question_ended applies twice. The server must not replay.
func (s *Store) EndQuestion(ctx context.Context, results []domain.AnswerResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.question = nil
	s.answerLog = append(s.answerLog, results...)

	for _, r := range results {
		applied := false
		for i := range s.players {
			if s.players[i].ID == r.PlayerID {
				s.players[i].Score += r.Score
				s.syncSelfLocked(s.players[i])
				applied = true
				break
			}
		}
		if !applied {
			slog.WarnContext(ctx, "session: dropping score delta for unknown player",
				"player", r.PlayerID, "score", r.Score)
		}
	}
}

// MarkAnswered sets the local already-answered gate, optimistically, before
// the REST submission resolves. Returns false if already set.
func (s *Store) MarkAnswered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.answered {
		return false
	}
	s.answered = true
	return true
}

// UnmarkAnswered reopens the gate after a failed submission.
func (s *Store) UnmarkAnswered() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.answered = false
}

func (s *Store) RecordOwnAnswer(a domain.PlayerAnswer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ownAnswers = append(s.ownAnswers, a)
}

// AppendChat appends unconditionally: insertion order is display order, and
// duplicate delivery is not deduplicated at this layer.
func (s *Store) AppendChat(m domain.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chat = append(s.chat, m)
}

// Reset tears the snapshot down on leave.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = nil
	s.players = nil
	s.self = nil
	s.question = nil
	s.answered = false
	s.ownAnswers = nil
	s.answerLog = nil
	s.chat = nil
	s.lastErr = ""
	s.loading = false
}

// BeginAction and EndAction bracket every facade verb that performs a REST
// call: loading is always restored, success or failure.

func (s *Store) BeginAction() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loading = true
	s.lastErr = ""
}

func (s *Store) EndAction(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loading = false
	if err != nil {
		s.lastErr = err.Error()
	}
}

// Read-side accessors. All return copies; the snapshot never escapes the lock.

func (s *Store) Session() (domain.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.session == nil {
		return domain.Session{}, false
	}
	return *s.session, true
}

func (s *Store) Status() domain.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.session == nil {
		return ""
	}
	return s.session.Status
}

func (s *Store) Players() []domain.Player {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]domain.Player(nil), s.players...)
}

func (s *Store) Self() (domain.Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.self == nil {
		return domain.Player{}, false
	}
	return *s.self, true
}

func (s *Store) ActiveQuestion() (ActiveQuestion, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.question == nil {
		return ActiveQuestion{}, false
	}
	return *s.question, true
}

func (s *Store) Answered() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.answered
}

func (s *Store) OwnAnswers() []domain.PlayerAnswer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]domain.PlayerAnswer(nil), s.ownAnswers...)
}

func (s *Store) Chat() []domain.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]domain.ChatMessage(nil), s.chat...)
}

func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.loading
}

func (s *Store) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lastErr
}

// IsHost reports whether the given user hosts the current session.
func (s *Store) IsHost(userID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.session != nil && s.session.HostID == userID
}

// CanStartGame: host only, from the lobby, with at least one player joined.
func (s *Store) CanStartGame(userID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.session != nil &&
		s.session.HostID == userID &&
		s.session.Status == domain.StatusLobby &&
		len(s.players) > 0
}

// CanAnswer: a question is open and the local player has not answered it.
func (s *Store) CanAnswer() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.session != nil &&
		s.session.Status == domain.StatusInProgress &&
		s.question != nil &&
		!s.answered
}

// TimeLeft is the remaining answer window, computed from the local activation
// timestamp. Zero when no question is open or the window elapsed.
func (s *Store) TimeLeft() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.question == nil {
		return 0
	}
	left := s.question.TimeLimit - s.now().Sub(s.question.StartedAt)
	if left < 0 {
		return 0
	}
	return left
}

// Standings is the roster ordered by score descending, nickname ascending.
func (s *Store) Standings() []domain.Player {
	s.mu.RLock()
	out := append([]domain.Player(nil), s.players...)
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Nickname < out[j].Nickname
	})
	return out
}
