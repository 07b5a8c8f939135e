// Package auth holds the authentication snapshot: who the current user is.
// The identity lives in a server-side cookie session; this store only caches
// the profile the backend reports.
package auth

import (
	"context"
	"sync"

	"github.com/victornm/equiz-client/internal/api"
	"github.com/victornm/equiz-client/internal/domain"
)

type Config struct {
	API *api.Client
}

type Store struct {
	api *api.Client

	mu   sync.RWMutex
	user *domain.User
}

func NewStore(c Config) *Store {
	return &Store{api: c.API}
}

func (s *Store) Login(ctx context.Context, email, password string) (*domain.User, error) {
	u, err := s.api.Login(ctx, api.LoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, err
	}

	s.set(u)
	return u, nil
}

func (s *Store) Logout(ctx context.Context) error {
	err := s.api.Logout(ctx)
	// Local identity is cleared even when the server call failed; the next
	// guarded navigation will force a fresh login.
	s.set(nil)
	return err
}

// Fetch refreshes the snapshot from the profile endpoint.
func (s *Store) Fetch(ctx context.Context) (*domain.User, error) {
	u, err := s.api.Profile(ctx)
	if err != nil {
		s.set(nil)
		return nil, err
	}

	s.set(u)
	return u, nil
}

func (s *Store) set(u *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.user = u
}

func (s *Store) Current() (domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.user == nil {
		return domain.User{}, false
	}
	return *s.user, true
}

func (s *Store) Authenticated() bool {
	_, ok := s.Current()
	return ok
}
