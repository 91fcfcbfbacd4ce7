package auth

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"setlistify/apperrors"
)

// TokenStore hands out a usable access token for one session, refreshing it
// through the Refresher when it is missing or about to expire.
type TokenStore struct {
	sessions  SessionStore
	refresher Refresher
	clock     Clock
	skew      time.Duration
}

func NewTokenStore(sessions SessionStore, refresher Refresher, clock Clock) *TokenStore {
	if clock == nil {
		clock = SystemClock{}
	}
	return &TokenStore{
		sessions:  sessions,
		refresher: refresher,
		clock:     clock,
		skew:      DefaultExpirySkew,
	}
}

// Get loads the session's pair and refreshes it if needed.
func (s *TokenStore) Get(ctx context.Context) (*TokenPair, error) {
	pair, err := s.sessions.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if pair == nil || (pair.AccessToken == "" && pair.RefreshToken == "") {
		return nil, apperrors.ErrUnauthenticated
	}
	return s.RefreshIfNeeded(ctx, pair)
}

// RefreshIfNeeded returns pair untouched while it is still fresh. Otherwise
// it exchanges the refresh token and persists the result. Nothing is written
// when the exchange fails.
func (s *TokenStore) RefreshIfNeeded(ctx context.Context, pair *TokenPair) (*TokenPair, error) {
	if pair.AccessToken != "" && !s.Expiring(pair) {
		return pair, nil
	}
	if pair.RefreshToken == "" {
		return nil, apperrors.ErrNoRefreshToken
	}

	log.Debugf("Access token expiring at %s, refreshing", pair.ExpiresAt.Format(time.RFC3339))
	fresh, err := s.refresher.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		log.Warnf("Token refresh failed: %v", err)
		return nil, err
	}
	// Spotify only sometimes rotates the refresh token.
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = pair.RefreshToken
	}

	if err := s.sessions.Save(ctx, *fresh); err != nil {
		return nil, fmt.Errorf("failed to persist refreshed token: %w", err)
	}
	return fresh, nil
}

// Expiring reports whether pair is within the skew window of its expiry.
// A pair with no known expiry never counts as expiring.
func (s *TokenStore) Expiring(pair *TokenPair) bool {
	if pair.ExpiresAt.IsZero() {
		return false
	}
	return s.clock.Now().After(pair.ExpiresAt.Add(-s.skew))
}

// Save persists a pair obtained elsewhere, e.g. from the login callback.
func (s *TokenStore) Save(ctx context.Context, pair TokenPair) error {
	return s.sessions.Save(ctx, pair)
}

func (s *TokenStore) Clear(ctx context.Context) error {
	return s.sessions.Clear(ctx)
}
