package auth

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"setlistify/apperrors"
)

// Login runs the authorization-code + PKCE flow. The state and verifier
// live in short-lived HttpOnly cookies between Begin and Complete.
type Login struct {
	config     *oauth2.Config
	cookies    CookieOptions
	httpClient *http.Client
}

func NewLogin(config *oauth2.Config, cookies CookieOptions, httpClient *http.Client) *Login {
	return &Login{config: config, cookies: cookies, httpClient: httpClient}
}

// Begin stores a fresh state and verifier and returns the authorize URL.
func (l *Login) Begin(w http.ResponseWriter) string {
	verifier := oauth2.GenerateVerifier()
	state := uuid.NewString()

	l.cookies.set(w, VerifierCookie, verifier, loginCookieMaxAge, true)
	l.cookies.set(w, StateCookie, state, loginCookieMaxAge, true)

	return l.config.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

// Complete validates the callback, exchanges the code and clears the login
// cookies. The caller persists the returned pair.
func (l *Login) Complete(ctx context.Context, w http.ResponseWriter, r *http.Request) (*TokenPair, error) {
	query := r.URL.Query()
	code := query.Get("code")
	state := query.Get("state")
	storedState := cookieValue(r, StateCookie)
	verifier := cookieValue(r, VerifierCookie)

	if errParam := query.Get("error"); errParam != "" {
		log.Warnf("Spotify authorization denied: %s", errParam)
		return nil, apperrors.Auth("Authorization denied", nil)
	}
	if code == "" || state == "" || state != storedState || verifier == "" {
		return nil, apperrors.Input("Invalid OAuth callback", nil)
	}

	if l.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, l.httpClient)
	}
	tok, err := l.config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		log.Errorf("Token exchange failed: %v", err)
		return nil, tokenEndpointError("Token exchange failed", err)
	}

	l.cookies.clear(w, StateCookie)
	l.cookies.clear(w, VerifierCookie)

	return pairFromOAuth2(tok), nil
}
