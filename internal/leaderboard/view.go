// Package leaderboard keeps the latest leaderboard broadcast for a session.
//
// The server publishes leaderboard snapshots with scores encoded as decimal
// strings; entries are parsed with shopspring/decimal so fractional speed
// bonuses survive the round trip without float drift.
package leaderboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/victornm/equiz-client/internal/domain"
	"github.com/victornm/equiz-client/internal/event"
)

type Entry struct {
	Username string
	Score    decimal.Decimal
}

// wire shape of one leaderboard_updated payload
type payload struct {
	SessionID string `json:"session_id"`
	Entries   []struct {
		Username string `json:"username"`
		Score    string `json:"score"`
	} `json:"entries"`
}

// View holds the most recent leaderboard snapshot. Whole-snapshot replacement:
// the server always broadcasts the full board, so no per-entry merging.
type View struct {
	mu      sync.RWMutex
	session string
	entries []Entry
}

func NewView() *View {
	return &View{}
}

// subscriber is the slice of the transport the view needs.
type subscriber interface {
	Subscribe(name string, h event.Handler) (unsubscribe func())
}

// Bind subscribes the view to leaderboard broadcasts on the given transport.
func (v *View) Bind(t subscriber) (unsubscribe func()) {
	return t.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, raw json.RawMessage) {
		v.Apply(ctx, raw)
	})
}

// Apply replaces the snapshot with the received broadcast. Entries whose
// score does not parse are dropped, not zeroed.
func (v *View) Apply(ctx context.Context, raw json.RawMessage) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		slog.ErrorContext(ctx, "leaderboard: dropping malformed broadcast", "error", err)
		return
	}

	entries := make([]Entry, 0, len(p.Entries))
	for _, e := range p.Entries {
		score, err := decimal.NewFromString(e.Score)
		if err != nil {
			slog.WarnContext(ctx, "leaderboard: dropping entry with bad score",
				"username", e.Username, "score", e.Score, "error", err)
			continue
		}
		entries = append(entries, Entry{Username: e.Username, Score: score})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Score.Equal(entries[j].Score) {
			return entries[i].Score.GreaterThan(entries[j].Score)
		}
		return entries[i].Username < entries[j].Username
	})

	v.mu.Lock()
	defer v.mu.Unlock()

	v.session = p.SessionID
	v.entries = entries
}

func (v *View) Session() string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return v.session
}

func (v *View) Entries() []Entry {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return append([]Entry(nil), v.entries...)
}
