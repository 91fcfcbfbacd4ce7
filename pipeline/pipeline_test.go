package pipeline

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"testing"

	"setlistify/apperrors"
	"setlistify/database"
	"setlistify/models"
	"setlistify/spotify"
	"setlistify/spotify/spotifytest"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type stubExtractor struct {
	tracks []models.ExtractedTrack
	err    error
	calls  int
}

func (s *stubExtractor) Extract(context.Context, []byte, string, string) ([]models.ExtractedTrack, error) {
	s.calls++
	return s.tracks, s.err
}

type stubFetcher struct {
	tracks []models.ExtractedTrack
	url    string
}

func (s *stubFetcher) Fetch(_ context.Context, rawURL string) ([]models.ExtractedTrack, error) {
	s.url = rawURL
	return s.tracks, nil
}

type memoryHistory struct {
	records []database.PlaylistRecord
	err     error
}

func (m *memoryHistory) RecordPlaylist(_ context.Context, r database.PlaylistRecord) error {
	m.records = append(m.records, r)
	return m.err
}

func newSpotify(t *testing.T) *spotifytest.Server {
	t.Helper()
	srv := spotifytest.NewServer()
	srv.Token = "tok"
	srv.Results["Imagine John Lennon"] = []spotifytest.Track{{ID: "imagine", Name: "Imagine", Artist: "John Lennon"}}
	srv.Results["Yesterday The Beatles"] = []spotifytest.Track{{ID: "yesterday", Name: "Yesterday", Artist: "The Beatles"}}
	t.Cleanup(srv.Close)
	return srv
}

func TestSearchText(t *testing.T) {
	srv := newSpotify(t)
	p := New(Options{APIURL: srv.APIURL(), Matcher: spotify.MatcherOptions{Limit: 3}})

	run := NewRun()
	results, err := p.Search(context.Background(), run, Input{Kind: InputText, Text: "Imagine - John Lennon\nYesterday - The Beatles"}, "tok")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len = %d; want 2", len(results))
	}
	if results[0].Title != "Imagine" || *results[0].Spotify[0].URI != "spotify:track:imagine" {
		t.Errorf("results[0] = %+v", results[0])
	}
	if results[1].Artist != "The Beatles" || *results[1].Spotify[0].URI != "spotify:track:yesterday" {
		t.Errorf("results[1] = %+v", results[1])
	}

	want := []State{AwaitingInput, Extracting, Matching, AwaitingSelection}
	if !reflect.DeepEqual(run.History, want) {
		t.Errorf("history = %v; want %v", run.History, want)
	}
}

func TestSearchNoTracks(t *testing.T) {
	srv := newSpotify(t)
	p := New(Options{APIURL: srv.APIURL()})

	run := NewRun()
	_, err := p.Search(context.Background(), run, Input{Kind: InputText, Text: "just some words\nENCORE"}, "tok")
	if !errors.Is(err, apperrors.ErrNoTracks) {
		t.Fatalf("error = %v; want ErrNoTracks", err)
	}
	if apperrors.StatusCode(err) != http.StatusBadRequest {
		t.Errorf("status = %d", apperrors.StatusCode(err))
	}
	if run.State != Failed {
		t.Errorf("state = %v; want error", run.State)
	}
	if len(srv.Searches()) != 0 {
		t.Error("searched Spotify with nothing extracted")
	}
}

func TestSearchImage(t *testing.T) {
	srv := newSpotify(t)
	ex := &stubExtractor{tracks: []models.ExtractedTrack{{Title: "Imagine", Artist: "John Lennon"}}}
	p := New(Options{Extractor: ex, APIURL: srv.APIURL()})

	results, err := p.Search(context.Background(), NewRun(), Input{Kind: InputImage, Image: pngHeader, Filename: "set.png"}, "tok")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 || ex.calls != 1 {
		t.Errorf("results = %+v calls = %d", results, ex.calls)
	}
}

func TestSearchImageErrors(t *testing.T) {
	recognitionErr := apperrors.Recognition(http.StatusServiceUnavailable, "Recognition failed", nil)
	tests := []struct {
		name       string
		extractor  Extractor
		image      []byte
		wantStatus int
	}{
		{"not_an_image", &stubExtractor{}, []byte("hello"), http.StatusBadRequest},
		{"empty_upload", &stubExtractor{}, nil, http.StatusBadRequest},
		{"not_configured", nil, pngHeader, http.StatusServiceUnavailable},
		{"recognition_failed", &stubExtractor{err: recognitionErr}, pngHeader, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(Options{Extractor: tt.extractor})
			run := NewRun()
			_, err := p.Search(context.Background(), run, Input{Kind: InputImage, Image: tt.image}, "tok")
			if got := apperrors.StatusCode(err); got != tt.wantStatus {
				t.Errorf("status = %d; want %d (err %v)", got, tt.wantStatus, err)
			}
			if run.State != Failed {
				t.Errorf("state = %v", run.State)
			}
		})
	}
}

func TestSearchURL(t *testing.T) {
	srv := newSpotify(t)
	fetcher := &stubFetcher{tracks: []models.ExtractedTrack{{Title: "Yesterday", Artist: "The Beatles"}}}
	p := New(Options{Setlists: fetcher, APIURL: srv.APIURL()})

	results, err := p.Search(context.Background(), NewRun(), Input{Kind: InputURL, URL: "https://www.setlist.fm/setlist/x.html"}, "tok")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if fetcher.url != "https://www.setlist.fm/setlist/x.html" || len(results) != 1 {
		t.Errorf("url = %q results = %+v", fetcher.url, results)
	}
}

func TestSearchInvalidKind(t *testing.T) {
	_, err := New(Options{}).Search(context.Background(), NewRun(), Input{Kind: "video"}, "tok")
	if !apperrors.IsKind(err, apperrors.KindInput) {
		t.Errorf("error = %v; want input error", err)
	}
}

func TestSearchExpiredTokenIsAuthError(t *testing.T) {
	srv := newSpotify(t)
	p := New(Options{APIURL: srv.APIURL()})
	_, err := p.Search(context.Background(), NewRun(), Input{Kind: InputText, Text: "Imagine - John Lennon"}, "stale")
	if apperrors.StatusCode(err) != http.StatusUnauthorized {
		t.Errorf("status = %d; want 401 (err %v)", apperrors.StatusCode(err), err)
	}
}

func TestCreatePlaylist(t *testing.T) {
	srv := newSpotify(t)
	history := &memoryHistory{}
	p := New(Options{APIURL: srv.APIURL(), History: history})

	run := NewSelectionRun()
	pl, err := p.CreatePlaylist(context.Background(), run, models.PlaylistRequest{
		PlaylistName: "Live",
		URIs:         []string{"spotify:track:imagine", "", "spotify:track:yesterday"},
	}, "tok", spotify.BuildOptions{Mode: spotify.ModeUser})
	if err != nil {
		t.Fatalf("CreatePlaylist() error = %v", err)
	}
	if pl.ID == "" || pl.TrackCount != 2 {
		t.Errorf("playlist = %+v", pl)
	}
	if want := []State{AwaitingSelection, Creating, Done}; !reflect.DeepEqual(run.History, want) {
		t.Errorf("history = %v; want %v", run.History, want)
	}
	if len(history.records) != 1 || history.records[0].PlaylistID != pl.ID || history.records[0].Mode != "user" {
		t.Errorf("history records = %+v", history.records)
	}
}

func TestCreatePlaylistHistoryFailureIsIgnored(t *testing.T) {
	srv := newSpotify(t)
	p := New(Options{APIURL: srv.APIURL(), History: &memoryHistory{err: errors.New("disk full")}})
	if _, err := p.CreatePlaylist(context.Background(), NewSelectionRun(), models.PlaylistRequest{URIs: []string{"spotify:track:imagine"}}, "tok", spotify.BuildOptions{}); err != nil {
		t.Errorf("CreatePlaylist() error = %v; history failures should not surface", err)
	}
}

func TestCreatePlaylistNoneSelected(t *testing.T) {
	srv := newSpotify(t)
	p := New(Options{APIURL: srv.APIURL()})

	run := NewSelectionRun()
	_, err := p.CreatePlaylist(context.Background(), run, models.PlaylistRequest{PlaylistName: "x"}, "tok", spotify.BuildOptions{})
	if !errors.Is(err, apperrors.ErrNoTracksSelected) {
		t.Fatalf("error = %v; want ErrNoTracksSelected", err)
	}
	if run.State != Failed || len(srv.Playlists()) != 0 {
		t.Errorf("state = %v playlists = %v", run.State, srv.Playlists())
	}
}

func TestCreatePlaylistProviderStatusSurfaces(t *testing.T) {
	srv := newSpotify(t)
	srv.CreateStatus = http.StatusForbidden
	p := New(Options{APIURL: srv.APIURL()})

	run := NewSelectionRun()
	_, err := p.CreatePlaylist(context.Background(), run, models.PlaylistRequest{URIs: []string{"spotify:track:a"}}, "tok", spotify.BuildOptions{})
	if apperrors.StatusCode(err) != http.StatusForbidden {
		t.Errorf("status = %d; want 403", apperrors.StatusCode(err))
	}
	if run.State != Failed {
		t.Errorf("state = %v", run.State)
	}
}

func TestCreatePlaylistWithoutIDNeverReachesDone(t *testing.T) {
	srv := newSpotify(t)
	srv.OmitPlaylistID = true
	history := &memoryHistory{}
	p := New(Options{APIURL: srv.APIURL(), History: history})

	run := NewSelectionRun()
	if _, err := p.CreatePlaylist(context.Background(), run, models.PlaylistRequest{URIs: []string{"spotify:track:a"}}, "tok", spotify.BuildOptions{}); err == nil {
		t.Fatal("CreatePlaylist() succeeded without a playlist id")
	}
	if run.State != Failed || len(history.records) != 0 {
		t.Errorf("state = %v records = %+v", run.State, history.records)
	}
}

func TestStateString(t *testing.T) {
	if AwaitingSelection.String() != "awaiting_selection" || Failed.String() != "error" {
		t.Error("unexpected state names")
	}
}
