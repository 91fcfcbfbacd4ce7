// Package pipeline runs a setlist from raw input through extraction and
// matching, and turns a confirmed selection into a playlist.
package pipeline

import (
	"context"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"setlistify/apperrors"
	"setlistify/database"
	"setlistify/gemini"
	"setlistify/models"
	"setlistify/spotify"
)

type InputKind string

const (
	InputText  InputKind = "text"
	InputImage InputKind = "image"
	InputURL   InputKind = "url"
)

type Input struct {
	Kind     InputKind
	Text     string
	Image    []byte
	Filename string
	URL      string
}

type Extractor interface {
	Extract(ctx context.Context, image []byte, filename, prompt string) ([]models.ExtractedTrack, error)
}

type SetlistFetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]models.ExtractedTrack, error)
}

// HistoryRecorder stores created playlists. Failures are logged only.
type HistoryRecorder interface {
	RecordPlaylist(ctx context.Context, r database.PlaylistRecord) error
}

type Options struct {
	// Extractor is nil when image recognition is not configured.
	Extractor Extractor
	Setlists  SetlistFetcher
	History   HistoryRecorder
	APIURL    string
	Matcher   spotify.MatcherOptions
}

type Pipeline struct {
	extractor Extractor
	setlists  SetlistFetcher
	history   HistoryRecorder
	apiURL    string
	matcher   spotify.MatcherOptions
}

func New(opts Options) *Pipeline {
	return &Pipeline{
		extractor: opts.Extractor,
		setlists:  opts.Setlists,
		history:   opts.History,
		apiURL:    opts.APIURL,
		matcher:   opts.Matcher,
	}
}

// Search extracts tracks from in and looks each one up with accessToken.
// On success the run ends in AwaitingSelection.
func (p *Pipeline) Search(ctx context.Context, run *Run, in Input, accessToken string) ([]models.TrackResult, error) {
	run.transition(Extracting)
	tracks, err := p.extract(ctx, in)
	if err != nil {
		return nil, run.fail(err)
	}
	if len(tracks) == 0 {
		return nil, run.fail(apperrors.ErrNoTracks)
	}
	run.logger.Debugf("Extracted %d tracks from %s input", len(tracks), in.Kind)

	run.transition(Matching)
	client := spotify.NewClient(ctx, accessToken, p.apiURL)
	results, err := spotify.NewMatcher(client, p.matcher).MatchAll(ctx, tracks)
	if err != nil {
		return nil, run.fail(err)
	}

	run.transition(AwaitingSelection)
	return results, nil
}

func (p *Pipeline) extract(ctx context.Context, in Input) ([]models.ExtractedTrack, error) {
	switch in.Kind {
	case InputText:
		return gemini.ParseSetlistText(in.Text), nil
	case InputImage:
		if len(in.Image) == 0 || !gemini.IsImage(in.Image) {
			return nil, apperrors.ErrInvalidFile
		}
		if p.extractor == nil {
			return nil, apperrors.Recognition(http.StatusServiceUnavailable, "Image recognition is not configured", nil)
		}
		return p.extractor.Extract(ctx, in.Image, in.Filename, "")
	case InputURL:
		if strings.TrimSpace(in.URL) == "" {
			return nil, apperrors.Input("Missing setlist URL", nil)
		}
		if p.setlists == nil {
			return nil, apperrors.Input("Setlist URLs are not supported", nil)
		}
		return p.setlists.Fetch(ctx, in.URL)
	default:
		return nil, apperrors.Input("Invalid input type", nil)
	}
}

// CreatePlaylist creates a playlist from the selected URIs with accessToken.
// The run moves from AwaitingSelection through Creating to Done.
func (p *Pipeline) CreatePlaylist(ctx context.Context, run *Run, req models.PlaylistRequest, accessToken string, opts spotify.BuildOptions) (*models.Playlist, error) {
	if len(req.URIs) == 0 {
		return nil, run.fail(apperrors.ErrNoTracksSelected)
	}

	run.transition(Creating)
	client := spotify.NewClient(ctx, accessToken, p.apiURL)
	playlist, err := spotify.CreateAndPopulate(ctx, client, req, opts)
	if err != nil {
		return nil, run.fail(err)
	}
	run.transition(Done)

	p.record(ctx, playlist, opts.Mode)
	return playlist, nil
}

func (p *Pipeline) record(ctx context.Context, playlist *models.Playlist, mode spotify.Mode) {
	if p.history == nil {
		return
	}
	err := p.history.RecordPlaylist(ctx, database.PlaylistRecord{
		OwnerID:    playlist.OwnerID,
		PlaylistID: playlist.ID,
		Name:       playlist.Name,
		URL:        playlist.URL,
		TrackCount: playlist.TrackCount,
		Mode:       string(mode),
	})
	if err != nil {
		log.Warnf("Failed to record playlist %s in history: %v", playlist.ID, err)
	}
}
