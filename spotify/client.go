package spotify

import (
	"context"
	"errors"
	"net/url"
	"strings"

	log "github.com/sirupsen/logrus"
	spotifyclient "github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"

	"setlistify/apperrors"
)

const (
	DefaultAPIURL  = "https://api.spotify.com/v1/"
	trackURIPrefix = "spotify:track:"
)

var ErrNotTrack = errors.New("not a Spotify track")

// NewClient builds a Web API client that sends accessToken as a bearer token.
// An empty apiURL uses the public API.
func NewClient(ctx context.Context, accessToken, apiURL string) *spotifyclient.Client {
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))

	opts := []spotifyclient.ClientOption{}
	if apiURL != "" {
		if !strings.HasSuffix(apiURL, "/") {
			apiURL += "/"
		}
		opts = append(opts, spotifyclient.WithBaseURL(apiURL))
	}
	return spotifyclient.New(httpClient, opts...)
}

// TrackID returns the id behind a track URI or an open.spotify.com track link.
func TrackID(ref string) (spotifyclient.ID, error) {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, trackURIPrefix) {
		id := strings.TrimPrefix(ref, trackURIPrefix)
		if id == "" || strings.Contains(id, ":") {
			return "", ErrNotTrack
		}
		return spotifyclient.ID(id), nil
	}

	if strings.HasPrefix(ref, "https://open.spotify.com/") {
		u, err := url.Parse(ref)
		if err != nil {
			return "", ErrNotTrack
		}
		// Strip query parameters (e.g. ?si=tracking_id) by working off the path
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) == 2 && parts[0] == "track" && parts[1] != "" {
			return spotifyclient.ID(parts[1]), nil
		}
		log.Tracef("Spotify link is not a track: %s", ref)
	}
	return "", ErrNotTrack
}

// mapError turns a Web API failure into an upstream error carrying the
// provider's status. A 401 becomes an auth error.
func mapError(err error, message string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr spotifyclient.Error
	if errors.As(err, &apiErr) {
		return apperrors.Upstream(apiErr.Status, message, err)
	}
	var apiErrPtr *spotifyclient.Error
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apperrors.Upstream(apiErrPtr.Status, message, err)
	}
	return apperrors.Upstream(0, message, err)
}
