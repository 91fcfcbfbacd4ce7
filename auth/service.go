package auth

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"setlistify/apperrors"
)

// TokenCache stores short-lived values with an expiry.
type TokenCache interface {
	Get(key string) (string, bool)
	Set(key, value string, expiresAt time.Time)
	Delete(key string)
}

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

type MemoryCache struct {
	mu      sync.Mutex
	clock   Clock
	entries map[string]cacheEntry
}

func NewMemoryCache(clock Clock) *MemoryCache {
	if clock == nil {
		clock = SystemClock{}
	}
	return &MemoryCache{clock: clock, entries: make(map[string]cacheEntry)}
}

func (c *MemoryCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if !c.clock.Now().Before(entry.expiresAt) {
		delete(c.entries, key)
		return "", false
	}
	return entry.value, true
}

func (c *MemoryCache) Set(key, value string, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, expiresAt: expiresAt}
}

func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

const serviceTokenKey = "spotify:service:access_token"

// ServiceTokens provides the access token of the shared service account.
type ServiceTokens struct {
	mu           sync.Mutex
	cache        TokenCache
	refresher    Refresher
	refreshToken string
	skew         time.Duration
}

func NewServiceTokens(cache TokenCache, refresher Refresher, refreshToken string) *ServiceTokens {
	return &ServiceTokens{
		cache:        cache,
		refresher:    refresher,
		refreshToken: refreshToken,
		skew:         DefaultExpirySkew,
	}
}

func (s *ServiceTokens) AccessToken(ctx context.Context) (string, error) {
	if token, ok := s.cache.Get(serviceTokenKey); ok {
		return token, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// another request may have refreshed while we waited
	if token, ok := s.cache.Get(serviceTokenKey); ok {
		return token, nil
	}
	if s.refreshToken == "" {
		return "", apperrors.ErrNoRefreshToken
	}

	pair, err := s.refresher.Refresh(ctx, s.refreshToken)
	if err != nil {
		log.Errorf("Service account token refresh failed: %v", err)
		return "", err
	}
	if pair.RefreshToken != "" {
		s.refreshToken = pair.RefreshToken
	}

	s.cache.Set(serviceTokenKey, pair.AccessToken, pair.ExpiresAt.Add(-s.skew))
	log.Debugf("Cached service account token until %s", pair.ExpiresAt.Add(-s.skew).Format(time.RFC3339))
	return pair.AccessToken, nil
}

// Invalidate drops the cached access token so the next call refreshes.
func (s *ServiceTokens) Invalidate() {
	s.cache.Delete(serviceTokenKey)
	log.Debug("Service account token invalidated")
}
