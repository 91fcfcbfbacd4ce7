package spotify

import (
	"context"
	"errors"
	"net/http"
	"strings"

	sentry "github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"
	spotifyclient "github.com/zmb3/spotify/v2"

	"setlistify/apperrors"
	"setlistify/models"
)

// maxTracksPerAdd is the Web API cap on items per add-tracks call.
const maxTracksPerAdd = 100

const (
	DefaultPlaylistName = "Setlist"
	playlistURLPrefix   = "https://open.spotify.com/playlist/"
)

type Mode string

const (
	ModeUser    Mode = "user"
	ModeService Mode = "service"
)

// Whoami is the part of the Web API that identifies the token's owner.
type Whoami interface {
	CurrentUser(ctx context.Context) (*spotifyclient.PrivateUser, error)
}

// CurrentUserID returns the id of the account behind the client's token.
func CurrentUserID(ctx context.Context, api Whoami) (string, error) {
	me, err := api.CurrentUser(ctx)
	if err != nil {
		return "", mapError(err, "Failed to get current user")
	}
	return me.User.ID, nil
}

// PlaylistAPI is the slice of the Web API the builder needs.
type PlaylistAPI interface {
	Whoami
	CreatePlaylistForUser(ctx context.Context, userID, playlistName, description string, public bool, collaborative bool) (*spotifyclient.FullPlaylist, error)
	AddTracksToPlaylist(ctx context.Context, playlistID spotifyclient.ID, trackIDs ...spotifyclient.ID) (string, error)
}

type BuildOptions struct {
	Mode Mode
	// ExpectedOwner only produces a warning when it differs from the token's owner.
	ExpectedOwner string
}

// CreateAndPopulate creates a playlist owned by whoever holds the token and
// adds the selected tracks in order. Blank or non-track URIs are dropped; if
// none remain the playlist is left empty.
func CreateAndPopulate(ctx context.Context, api PlaylistAPI, req models.PlaylistRequest, opts BuildOptions) (*models.Playlist, error) {
	name := strings.TrimSpace(req.PlaylistName)
	if name == "" {
		name = DefaultPlaylistName
	}

	span := sentry.StartSpan(ctx, "spotify.create_playlist")
	span.Description = "Create and populate Spotify playlist"
	span.SetTag("mode", string(opts.Mode))
	defer span.Finish()

	owner, err := CurrentUserID(ctx, api)
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		return nil, err
	}
	if opts.ExpectedOwner != "" && opts.ExpectedOwner != owner {
		log.Warnf("Configured owner %s does not match token owner %s, using %s", opts.ExpectedOwner, owner, owner)
	}

	playlist, err := api.CreatePlaylistForUser(ctx, owner, name, req.Description, req.IsPublic, false)
	if err != nil {
		log.Errorf("Failed to create playlist %q for %s: %v", name, owner, err)
		span.Status = sentry.SpanStatusInternalError
		return nil, mapError(err, "Failed to create playlist")
	}
	if playlist.ID == "" {
		span.Status = sentry.SpanStatusInternalError
		return nil, apperrors.Upstream(http.StatusBadGateway, "Failed to create playlist", errors.New("response carried no playlist id"))
	}

	ids := trackIDs(req.URIs)
	for i := 0; i < len(ids); i += maxTracksPerAdd {
		end := min(i+maxTracksPerAdd, len(ids))
		if _, err := api.AddTracksToPlaylist(ctx, playlist.ID, ids[i:end]...); err != nil {
			log.Errorf("Failed to add tracks %d-%d to playlist %s: %v", i+1, end, playlist.ID, err)
			span.Status = sentry.SpanStatusInternalError
			return nil, mapError(err, "Failed to add tracks")
		}
		log.Debugf("Added tracks %d-%d of %d to playlist %s", i+1, end, len(ids), playlist.ID)
	}

	log.Infof("Created playlist %s (%q) for %s with %d tracks [%s]", playlist.ID, name, owner, len(ids), opts.Mode)
	span.Status = sentry.SpanStatusOK
	span.SetData("tracks_count", len(ids))

	return &models.Playlist{
		ID:         string(playlist.ID),
		URL:        playlistURL(playlist),
		Name:       name,
		OwnerID:    owner,
		TrackCount: len(ids),
	}, nil
}

func playlistURL(p *spotifyclient.FullPlaylist) string {
	if u := p.ExternalURLs["spotify"]; u != "" {
		return u
	}
	return playlistURLPrefix + string(p.ID)
}

func trackIDs(uris []string) []spotifyclient.ID {
	ids := make([]spotifyclient.ID, 0, len(uris))
	for _, uri := range uris {
		if strings.TrimSpace(uri) == "" {
			continue
		}
		id, err := TrackID(uri)
		if err != nil {
			log.Warnf("Skipping %q: %v", uri, err)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
