package guard_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/victornm/equiz-client/internal/domain"
	"github.com/victornm/equiz-client/internal/guard"
)

type fakeAuth bool

func (a fakeAuth) Authenticated() bool { return bool(a) }

type fakeSession struct {
	ss   domain.Session
	held bool
}

func (s fakeSession) Session() (domain.Session, bool) { return s.ss, s.held }

func TestGuard_Check(t *testing.T) {
	tests := map[string]struct {
		auth    fakeAuth
		session fakeSession
		route   guard.Route
		want    guard.Decision
	}{
		"public routes always pass": {
			auth:  false,
			route: guard.Route{Path: "/"},
			want:  guard.Decision{Allow: true},
		},

		"unauthenticated users bounce to login": {
			auth:  false,
			route: guard.Route{Path: "/games", RequiresAuth: true},
			want:  guard.Decision{RedirectTo: "/login"},
		},

		"authenticated users pass guarded routes": {
			auth:  true,
			route: guard.Route{Path: "/games", RequiresAuth: true},
			want:  guard.Decision{Allow: true},
		},

		"live-game routes stay open while the session runs": {
			auth:    true,
			session: fakeSession{ss: domain.Session{ID: "abc", Status: domain.StatusInProgress}, held: true},
			route:   guard.Route{Path: "/games/play/abc", RequiresAuth: true, InGame: true},
			want:    guard.Decision{Allow: true},
		},

		"an ended session forces live-game routes to the results page": {
			auth:    true,
			session: fakeSession{ss: domain.Session{ID: "abc", Status: domain.StatusEnded}, held: true},
			route:   guard.Route{Path: "/games/play/abc", RequiresAuth: true, InGame: true},
			want:    guard.Decision{RedirectTo: "/games/results/abc"},
		},

		"live-game routes without a held session pass": {
			auth:  true,
			route: guard.Route{Path: "/games/play/abc", RequiresAuth: true, InGame: true},
			want:  guard.Decision{Allow: true},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			g := guard.New(guard.Config{Auth: tt.auth, Session: tt.session})

			assert.Equal(t, tt.want, g.Check(tt.route))
		})
	}
}

func TestGuard_CustomRoutes(t *testing.T) {
	t.Parallel()

	g := guard.New(guard.Config{
		Auth:       fakeAuth(false),
		Session:    fakeSession{},
		LoginRoute: "/signin",
	})

	got := g.Check(guard.Route{Path: "/games", RequiresAuth: true})
	assert.Equal(t, "/signin", got.RedirectTo)
}
