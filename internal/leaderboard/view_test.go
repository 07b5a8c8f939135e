package leaderboard_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/equiz-client/internal/leaderboard"
)

func TestView_Apply(t *testing.T) {
	type outputs struct {
		session string
		entries []leaderboard.Entry
	}

	tests := map[string]struct {
		broadcasts []string
		assert     func(t *testing.T, out outputs)
	}{
		"entries sort by score descending, username breaks ties": {
			broadcasts: []string{
				`{"session_id":"abc","entries":[
					{"username":"zoe","score":"50"},
					{"username":"ann","score":"80.5"},
					{"username":"bob","score":"50"}
				]}`,
			},
			assert: func(t *testing.T, out outputs) {
				assert.Equal(t, "abc", out.session)
				require.Len(t, out.entries, 3)
				assert.Equal(t, "ann", out.entries[0].Username)
				assert.True(t, out.entries[0].Score.Equal(decimal.RequireFromString("80.5")))
				assert.Equal(t, "bob", out.entries[1].Username)
				assert.Equal(t, "zoe", out.entries[2].Username)
			},
		},

		"a later broadcast replaces the snapshot wholesale": {
			broadcasts: []string{
				`{"session_id":"abc","entries":[{"username":"ann","score":"10"},{"username":"bob","score":"5"}]}`,
				`{"session_id":"abc","entries":[{"username":"ann","score":"30"}]}`,
			},
			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.entries, 1)
				assert.True(t, out.entries[0].Score.Equal(decimal.NewFromInt(30)))
			},
		},

		"entries with unparsable scores are dropped": {
			broadcasts: []string{
				`{"session_id":"abc","entries":[
					{"username":"ann","score":"12.5"},
					{"username":"bob","score":"not-a-number"}
				]}`,
			},
			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.entries, 1)
				assert.Equal(t, "ann", out.entries[0].Username)
			},
		},

		"a malformed broadcast leaves the previous snapshot intact": {
			broadcasts: []string{
				`{"session_id":"abc","entries":[{"username":"ann","score":"10"}]}`,
				`[[[`,
			},
			assert: func(t *testing.T, out outputs) {
				assert.Equal(t, "abc", out.session)
				require.Len(t, out.entries, 1)
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			v := leaderboard.NewView()
			for _, b := range tt.broadcasts {
				v.Apply(context.Background(), json.RawMessage(b))
			}

			tt.assert(t, outputs{session: v.Session(), entries: v.Entries()})
		})
	}
}
