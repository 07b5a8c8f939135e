package api

import (
	"context"

	"github.com/victornm/equiz-client/internal/domain"
	"github.com/victornm/equiz-client/internal/errors"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates against the backend; the session cookie lands in the
// client's jar and rides along on every later call.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*domain.User, error) {
	env, err := c.post(ctx, "/auth/login", req)
	if err != nil {
		return nil, err
	}

	if env.User == nil {
		return nil, errors.New(errors.CodeRequestFailed,
			errors.WithMessagef("login: response carried no user"))
	}
	return env.User, nil
}

func (c *Client) Logout(ctx context.Context) error {
	_, err := c.post(ctx, "/auth/logout", nil)
	return err
}

// Profile returns the currently authenticated user, or CodeUnauthenticated.
func (c *Client) Profile(ctx context.Context) (*domain.User, error) {
	env, err := c.get(ctx, "/auth/profile", nil)
	if err != nil {
		return nil, err
	}

	if env.User == nil {
		return nil, errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("profile: response carried no user"))
	}
	return env.User, nil
}
