// Package guard gates navigation on the auth snapshot and the session state
// machine. It only decides; performing the redirect belongs to the caller.
package guard

import (
	"path"

	"github.com/victornm/equiz-client/internal/domain"
)

type AuthSnapshot interface {
	Authenticated() bool
}

type SessionSnapshot interface {
	Session() (domain.Session, bool)
}

type Config struct {
	Auth    AuthSnapshot
	Session SessionSnapshot

	// LoginRoute defaults to /login, ResultsRoute to /games/results.
	LoginRoute   string
	ResultsRoute string
}

type Guard struct {
	c Config
}

func New(c Config) *Guard {
	if c.LoginRoute == "" {
		c.LoginRoute = "/login"
	}
	if c.ResultsRoute == "" {
		c.ResultsRoute = "/games/results"
	}
	return &Guard{c: c}
}

// Route describes the navigation target being checked.
type Route struct {
	Path string

	// RequiresAuth marks routes needing an authenticated user.
	RequiresAuth bool

	// InGame marks live-game routes that must be left once the session ends.
	InGame bool
}

type Decision struct {
	Allow      bool
	RedirectTo string
}

func (g *Guard) Check(r Route) Decision {
	if r.RequiresAuth && !g.c.Auth.Authenticated() {
		return Decision{RedirectTo: g.c.LoginRoute}
	}

	if r.InGame {
		if ss, ok := g.c.Session.Session(); ok && ss.Status == domain.StatusEnded {
			return Decision{RedirectTo: path.Join(g.c.ResultsRoute, ss.ID)}
		}
	}

	return Decision{Allow: true}
}
