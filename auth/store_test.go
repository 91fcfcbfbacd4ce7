package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"setlistify/apperrors"
)

type memorySessions struct {
	pair   *TokenPair
	saves  int
	clears int
}

func (m *memorySessions) Load(context.Context) (*TokenPair, error) {
	if m.pair == nil {
		return nil, nil
	}
	p := *m.pair
	return &p, nil
}

func (m *memorySessions) Save(_ context.Context, pair TokenPair) error {
	m.saves++
	m.pair = &pair
	return nil
}

func (m *memorySessions) Clear(context.Context) error {
	m.clears++
	m.pair = nil
	return nil
}

type fakeRefresher struct {
	calls int
	pair  *TokenPair
	err   error
}

func (f *fakeRefresher) Refresh(_ context.Context, refreshToken string) (*TokenPair, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	p := *f.pair
	return &p, nil
}

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() Clock {
	return ClockFunc(func() time.Time { return fixedNow })
}

func TestTokenStoreGetFreshToken(t *testing.T) {
	sessions := &memorySessions{pair: &TokenPair{AccessToken: "a", RefreshToken: "r", ExpiresAt: fixedNow.Add(time.Hour)}}
	refresher := &fakeRefresher{}
	store := NewTokenStore(sessions, refresher, fixedClock())

	pair, err := store.Get(context.Background())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if pair.AccessToken != "a" {
		t.Errorf("AccessToken = %q; want a", pair.AccessToken)
	}
	if refresher.calls != 0 {
		t.Errorf("refresh called %d times for a fresh token", refresher.calls)
	}
	if sessions.saves != 0 {
		t.Errorf("session saved %d times for a fresh token", sessions.saves)
	}
}

func TestTokenStoreExpiring(t *testing.T) {
	store := NewTokenStore(&memorySessions{}, &fakeRefresher{}, fixedClock())
	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{"unknown_expiry", time.Time{}, false},
		{"an_hour_left", fixedNow.Add(time.Hour), false},
		{"31s_left", fixedNow.Add(31 * time.Second), false},
		{"exactly_30s_left", fixedNow.Add(30 * time.Second), false},
		{"29s_left", fixedNow.Add(29 * time.Second), true},
		{"expired", fixedNow.Add(-time.Minute), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := store.Expiring(&TokenPair{AccessToken: "a", ExpiresAt: tt.expiresAt}); got != tt.want {
				t.Errorf("Expiring() = %v; want %v", got, tt.want)
			}
		})
	}
}

func TestTokenStoreGetExpiredRefreshesOnce(t *testing.T) {
	sessions := &memorySessions{pair: &TokenPair{AccessToken: "old", RefreshToken: "r1", ExpiresAt: fixedNow.Add(-time.Minute)}}
	refresher := &fakeRefresher{pair: &TokenPair{AccessToken: "new", ExpiresAt: fixedNow.Add(time.Hour)}}
	store := NewTokenStore(sessions, refresher, fixedClock())

	pair, err := store.Get(context.Background())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if refresher.calls != 1 {
		t.Errorf("refresh called %d times; want 1", refresher.calls)
	}
	if pair.AccessToken != "new" {
		t.Errorf("AccessToken = %q; want new", pair.AccessToken)
	}
	if pair.RefreshToken != "r1" {
		t.Errorf("RefreshToken = %q; want existing r1 kept", pair.RefreshToken)
	}
	if sessions.pair.RefreshToken != "r1" || sessions.pair.AccessToken != "new" {
		t.Errorf("persisted pair = %+v", sessions.pair)
	}
}

func TestTokenStoreRotatedRefreshToken(t *testing.T) {
	sessions := &memorySessions{pair: &TokenPair{AccessToken: "old", RefreshToken: "r1", ExpiresAt: fixedNow.Add(-time.Minute)}}
	refresher := &fakeRefresher{pair: &TokenPair{AccessToken: "new", RefreshToken: "r2", ExpiresAt: fixedNow.Add(time.Hour)}}
	store := NewTokenStore(sessions, refresher, fixedClock())

	if _, err := store.Get(context.Background()); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if sessions.pair.RefreshToken != "r2" {
		t.Errorf("persisted refresh token = %q; want r2", sessions.pair.RefreshToken)
	}
}

func TestTokenStoreMissingAccessTokenRefreshes(t *testing.T) {
	sessions := &memorySessions{pair: &TokenPair{RefreshToken: "r1"}}
	refresher := &fakeRefresher{pair: &TokenPair{AccessToken: "new", ExpiresAt: fixedNow.Add(time.Hour)}}
	store := NewTokenStore(sessions, refresher, fixedClock())

	pair, err := store.Get(context.Background())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if pair.AccessToken != "new" || refresher.calls != 1 {
		t.Errorf("pair = %+v, calls = %d", pair, refresher.calls)
	}
}

func TestTokenStoreRefreshFailureLeavesSessionUntouched(t *testing.T) {
	original := TokenPair{AccessToken: "old", RefreshToken: "r1", ExpiresAt: fixedNow.Add(-time.Minute)}
	sessions := &memorySessions{pair: &original}
	refresher := &fakeRefresher{err: apperrors.Auth("Failed to refresh", errors.New("invalid_grant"))}
	store := NewTokenStore(sessions, refresher, fixedClock())

	_, err := store.Get(context.Background())
	if !apperrors.IsKind(err, apperrors.KindAuth) {
		t.Fatalf("Get() error = %v; want auth error", err)
	}
	if sessions.saves != 0 || sessions.clears != 0 {
		t.Errorf("session mutated: saves=%d clears=%d", sessions.saves, sessions.clears)
	}
	if *sessions.pair != original {
		t.Errorf("pair changed to %+v", sessions.pair)
	}
}

func TestTokenStoreNoRefreshTokenFailsFast(t *testing.T) {
	sessions := &memorySessions{pair: &TokenPair{AccessToken: "old", ExpiresAt: fixedNow.Add(-time.Minute)}}
	refresher := &fakeRefresher{}
	store := NewTokenStore(sessions, refresher, fixedClock())

	_, err := store.Get(context.Background())
	if !errors.Is(err, apperrors.ErrNoRefreshToken) {
		t.Fatalf("Get() error = %v; want ErrNoRefreshToken", err)
	}
	if refresher.calls != 0 {
		t.Errorf("refresh called %d times without a refresh token", refresher.calls)
	}
}

func TestTokenStoreUnauthenticated(t *testing.T) {
	store := NewTokenStore(&memorySessions{}, &fakeRefresher{}, fixedClock())
	_, err := store.Get(context.Background())
	if !errors.Is(err, apperrors.ErrUnauthenticated) {
		t.Fatalf("Get() error = %v; want ErrUnauthenticated", err)
	}
	if apperrors.StatusCode(err) != http.StatusUnauthorized {
		t.Errorf("status = %d; want 401", apperrors.StatusCode(err))
	}
}

func newTokenServer(t *testing.T, status int, body string) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/token" {
			http.NotFound(w, r)
			return
		}
		atomic.AddInt32(&hits, 1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		if gt := r.PostForm.Get("grant_type"); gt != "refresh_token" {
			t.Errorf("grant_type = %q", gt)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestOAuthRefresherAgainstTokenEndpoint(t *testing.T) {
	srv, hits := newTokenServer(t, http.StatusOK, `{"access_token":"fresh","token_type":"Bearer","expires_in":3600}`)
	refresher := NewOAuthRefresher(NewOAuthConfig("client", "", "http://localhost/callback", srv.URL), srv.Client())

	sessions := &memorySessions{pair: &TokenPair{AccessToken: "stale", RefreshToken: "r1", ExpiresAt: time.Now().Add(-time.Hour)}}
	store := NewTokenStore(sessions, refresher, nil)

	pair, err := store.Get(context.Background())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got := atomic.LoadInt32(hits); got != 1 {
		t.Errorf("token endpoint hit %d times; want 1", got)
	}
	if pair.AccessToken != "fresh" || pair.RefreshToken != "r1" {
		t.Errorf("pair = %+v", pair)
	}
	if pair.ExpiresAt.Before(time.Now().Add(50 * time.Minute)) {
		t.Errorf("ExpiresAt = %v; want about an hour out", pair.ExpiresAt)
	}
}

func TestOAuthRefresherNon2xxIsAuthError(t *testing.T) {
	srv, _ := newTokenServer(t, http.StatusBadRequest, `{"error":"invalid_grant","error_description":"Refresh token revoked"}`)
	refresher := NewOAuthRefresher(NewOAuthConfig("client", "", "http://localhost/callback", srv.URL), srv.Client())

	sessions := &memorySessions{pair: &TokenPair{AccessToken: "stale", RefreshToken: "r1", ExpiresAt: time.Now().Add(-time.Hour)}}
	store := NewTokenStore(sessions, refresher, nil)

	_, err := store.Get(context.Background())
	if apperrors.StatusCode(err) != http.StatusUnauthorized {
		t.Fatalf("Get() error = %v; want 401", err)
	}
	if sessions.saves != 0 {
		t.Errorf("session saved after a failed refresh")
	}
}
