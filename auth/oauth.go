package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	sentry "github.com/getsentry/sentry-go"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"setlistify/apperrors"
)

var Scopes = []string{
	spotifyauth.ScopeUserReadPrivate,
	spotifyauth.ScopeUserReadEmail,
	spotifyauth.ScopePlaylistModifyPrivate,
	spotifyauth.ScopePlaylistModifyPublic,
}

// NewOAuthConfig builds the Spotify OAuth config. accountsURL overrides
// https://accounts.spotify.com when set. Without a client secret the client
// is treated as a public PKCE client and sends its id in the form body.
func NewOAuthConfig(clientID, clientSecret, redirectURI, accountsURL string) *oauth2.Config {
	endpoint := oauth2.Endpoint{
		AuthURL:  spotifyauth.AuthURL,
		TokenURL: spotifyauth.TokenURL,
	}
	if accountsURL != "" {
		base := strings.TrimRight(accountsURL, "/")
		endpoint.AuthURL = base + "/authorize"
		endpoint.TokenURL = base + "/api/token"
	}
	if clientSecret == "" {
		endpoint.AuthStyle = oauth2.AuthStyleInParams
	}

	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       Scopes,
		Endpoint:     endpoint,
	}
}

// Refresher exchanges a refresh token for a new pair. The returned pair's
// RefreshToken is empty when the provider did not rotate it.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
}

type OAuthRefresher struct {
	config     *oauth2.Config
	httpClient *http.Client
}

func NewOAuthRefresher(config *oauth2.Config, httpClient *http.Client) *OAuthRefresher {
	return &OAuthRefresher{config: config, httpClient: httpClient}
}

func (r *OAuthRefresher) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, apperrors.ErrNoRefreshToken
	}
	if r.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	}

	span := sentry.StartSpan(ctx, "spotify.refresh_token")
	span.Description = "Refresh Spotify access token"
	defer span.Finish()

	tok, err := r.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		span.Status = sentry.SpanStatusUnauthenticated
		return nil, tokenEndpointError("Failed to refresh", err)
	}

	span.Status = sentry.SpanStatusOK
	pair := pairFromOAuth2(tok)
	// oauth2 copies the old refresh token forward when none is returned;
	// report "not rotated" the way the token endpoint did.
	if pair.RefreshToken == refreshToken {
		pair.RefreshToken = ""
	}
	return pair, nil
}

// tokenEndpointError classifies a token endpoint failure. A non-2xx answer
// means the credentials are unusable; anything else is a transport problem.
func tokenEndpointError(message string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return apperrors.Auth(message, err)
	}
	return apperrors.Upstream(http.StatusBadGateway, message, err)
}
