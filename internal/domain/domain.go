package domain

import (
	"time"
)

// Status is the lifecycle phase of a game session. Transitions are monotonic:
// lobby -> starting -> in_progress -> ended. A session never leaves ended.
type Status string

const (
	StatusLobby      Status = "lobby"
	StatusStarting   Status = "starting"
	StatusInProgress Status = "in_progress"
	StatusEnded      Status = "ended"
)

var statusRank = map[Status]int{
	StatusLobby:      0,
	StatusStarting:   1,
	StatusInProgress: 2,
	StatusEnded:      3,
}

// CanTransition reports whether moving from s to next is a legal lifecycle step.
// Same-status updates are legal (payload refresh). Backward moves are not,
// and ended cannot be reached without passing through in_progress.
func (s Status) CanTransition(next Status) bool {
	cur, ok := statusRank[s]
	if !ok {
		return true // unknown current status, trust the incoming copy
	}
	n, ok := statusRank[next]
	if !ok {
		return false
	}

	if n < cur {
		return false
	}
	if next == StatusEnded && cur < statusRank[StatusInProgress] {
		return false
	}
	return true
}

// Session is one instance of a hosted quiz game.
// The backend emits exported-cased JSON keys for REST entities.
type Session struct {
	ID         string     `json:"ID"`
	QuizID     int64      `json:"QuizID"`
	HostID     int64      `json:"HostID"`
	Status     Status     `json:"Status"`
	Version    int64      `json:"Version,omitempty"`
	CreatedAt  time.Time  `json:"CreatedAt"`
	StartedAt  *time.Time `json:"StartedAt,omitempty"`
	FinishedAt *time.Time `json:"FinishedAt,omitempty"`
	Quiz       *Quiz      `json:"Quiz,omitempty"`
	Players    []Player   `json:"Players,omitempty"`
}

type Quiz struct {
	ID          int64      `json:"ID"`
	Title       string     `json:"Title"`
	Description string     `json:"Description"`
	TimeLimit   int        `json:"TimeLimit"` // seconds per question
	IsPublished bool       `json:"IsPublished"`
	ImageURL    string     `json:"ImageURL,omitempty"`
	Questions   []Question `json:"Questions,omitempty"`
}

type Question struct {
	ID       int64    `json:"ID"`
	QuizID   int64    `json:"QuizID"`
	Text     string   `json:"Text"`
	ImageURL string   `json:"ImageURL,omitempty"`
	Choices  []Choice `json:"Choices,omitempty"`
}

type Choice struct {
	ID         int64  `json:"ID"`
	QuestionID int64  `json:"QuestionID"`
	Text       string `json:"Text"`
}

// Player is one roster entry within a session. Score is cumulative and
// non-decreasing for the lifetime of the session.
type Player struct {
	ID        int64  `json:"ID"`
	SessionID string `json:"SessionID"`
	UserID    int64  `json:"UserID"`
	Nickname  string `json:"Nickname"`
	Score     int64  `json:"Score"`
	Version   int64  `json:"Version,omitempty"`
}

// PlayerAnswer is append-only: never mutated after creation. Only the current
// player's own answer is known in full; other players surface as
// submission-occurred notifications.
type PlayerAnswer struct {
	ID         int64   `json:"ID"`
	SessionID  string  `json:"SessionID"`
	PlayerID   int64   `json:"PlayerID"`
	QuestionID int64   `json:"QuestionID"`
	ChoiceID   int64   `json:"ChoiceID"`
	IsCorrect  bool    `json:"IsCorrect"`
	TimeSpent  float64 `json:"TimeSpent"` // seconds
	Score      int64   `json:"Score"`
}

type ChatMessage struct {
	SessionID string    `json:"sessionId"`
	UserID    int64     `json:"userId"`
	Nickname  string    `json:"nickname,omitempty"`
	Message   string    `json:"message"`
	SentAt    time.Time `json:"sentAt,omitempty"`
}

type User struct {
	ID          int64  `json:"ID"`
	Email       string `json:"Email"`
	DisplayName string `json:"DisplayName"`
	PictureURL  string `json:"PictureURL,omitempty"`
}
