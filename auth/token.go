// Package auth manages the Spotify token lifecycle: the PKCE login flow,
// per-session token persistence, refresh-on-expiry, and the cached token for
// the shared service account.
package auth

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

// DefaultExpirySkew is how early an access token counts as expired.
const DefaultExpirySkew = 30 * time.Second

type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// OAuth2 converts the pair for use with an oauth2-backed HTTP client.
func (p TokenPair) OAuth2() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       p.ExpiresAt,
	}
}

func pairFromOAuth2(tok *oauth2.Token) *TokenPair {
	return &TokenPair{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SessionStore persists one session's token pair. Load returns a nil pair
// and a nil error when the session holds no tokens.
type SessionStore interface {
	Load(ctx context.Context) (*TokenPair, error)
	Save(ctx context.Context, pair TokenPair) error
	Clear(ctx context.Context) error
}
