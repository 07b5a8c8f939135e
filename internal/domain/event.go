package domain

import (
	"time"
)

// Inbound transport event names.
const (
	EventNameJoined             = "joined"
	EventNamePlayerJoined       = "player_joined"
	EventNameGameStarted        = "game_started"
	EventNameQuestionStarted    = "question_started"
	EventNameAnswerSubmitted    = "answer_submitted"
	EventNameQuestionEnded      = "question_ended"
	EventNameGameEnded          = "game_ended"
	EventNameChatMessage        = "chat_message"
	EventNameLeaderboardUpdated = "leaderboard_updated"
	EventNameError              = "error"
)

// Outbound transport actions.
const (
	ActionJoinSession  = "join_session"
	ActionStartGame    = "start_game"
	ActionSubmitAnswer = "submit_answer"
	ActionEndGame      = "end_game"
	ActionChatMessage  = "chat_message"
)

// Socket payloads keep the lowerCamel casing of the realtime API,
// unlike REST entities which use exported casing.

type JoinSessionPayload struct {
	SessionID string `json:"sessionId"`
	UserID    int64  `json:"userId"`
	Nickname  string `json:"nickname"`
}

type GameActionPayload struct {
	SessionID string `json:"sessionId"`
	UserID    int64  `json:"userId"`
}

type SubmitAnswerPayload struct {
	SessionID  string  `json:"sessionId"`
	UserID     int64   `json:"userId"`
	QuestionID int64   `json:"questionId"`
	ChoiceID   int64   `json:"choiceId"`
	TimeSpent  float64 `json:"timeSpent"`
}

type PlayerJoinedPayload struct {
	SessionID string `json:"sessionId"`
	Player    Player `json:"player"`
}

type GameStartedPayload struct {
	Session Session `json:"session"`
}

type QuestionStartedPayload struct {
	SessionID     string    `json:"sessionId"`
	QuestionIndex int       `json:"questionIndex"`
	Question      Question  `json:"question"`
	TimeLimit     int       `json:"timeLimit"` // seconds
	StartedAt     time.Time `json:"startedAt,omitempty"`
}

// AnswerSubmittedPayload is a submission-occurred notification only;
// the chosen option and correctness are never broadcast mid-round.
type AnswerSubmittedPayload struct {
	SessionID  string `json:"sessionId"`
	PlayerID   int64  `json:"playerId"`
	QuestionID int64  `json:"questionId"`
}

// AnswerResult carries the revealed outcome for one player after a question
// closes. Score is the delta awarded for this question, not a running total.
type AnswerResult struct {
	PlayerID  int64 `json:"playerId"`
	ChoiceID  int64 `json:"choiceId"`
	IsCorrect bool  `json:"isCorrect"`
	Score     int64 `json:"score"`
}

type QuestionEndedPayload struct {
	SessionID  string         `json:"sessionId"`
	QuestionID int64          `json:"questionId"`
	Answers    []AnswerResult `json:"answers,omitempty"`
}

// GameEndedPayload carries the final session copy and the full roster.
// It is the only event allowed to shrink the roster.
type GameEndedPayload struct {
	Session Session  `json:"session"`
	Players []Player `json:"players,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
