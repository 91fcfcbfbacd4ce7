// Package spotifytest runs an in-process stand-in for the Spotify Web API.
package spotifytest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

type Track struct {
	ID         string
	Name       string
	Artist     string
	AlbumImage string
	Preview    string
}

type CreatedPlaylist struct {
	ID          string
	Owner       string
	Name        string
	Description string
	Public      bool
}

type Server struct {
	*httptest.Server

	// UserID is returned from /me.
	UserID string
	// Token, when set, must be sent as the bearer token.
	Token string
	// Results maps a search query to its hits.
	Results map[string][]Track
	// SearchStatus, when set, fails every search with that status.
	SearchStatus int
	// CreateStatus, when set, fails playlist creation with that status.
	CreateStatus int
	// OmitPlaylistURL drops external_urls from created playlists.
	OmitPlaylistURL bool
	// OmitPlaylistID drops the id from created playlists.
	OmitPlaylistID bool

	mu        sync.Mutex
	searches  []string
	playlists []CreatedPlaylist
	added     map[string][]string
	addCalls  int
}

func NewServer() *Server {
	s := &Server{
		UserID:  "user-1",
		Results: map[string][]Track{},
		added:   map[string][]string{},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// APIURL is the base URL to hand to spotify.NewClient.
func (s *Server) APIURL() string {
	return s.URL + "/"
}

func (s *Server) Searches() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.searches...)
}

func (s *Server) Playlists() []CreatedPlaylist {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]CreatedPlaylist(nil), s.playlists...)
}

func (s *Server) Added(playlistID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.added[playlistID]...)
}

// SetCreateStatus changes CreateStatus while the server is in use.
func (s *Server) SetCreateStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CreateStatus = status
}

func (s *Server) AddCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addCalls
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if s.Token != "" && r.Header.Get("Authorization") != "Bearer "+s.Token {
		writeError(w, http.StatusUnauthorized, "Invalid access token")
		return
	}

	path := strings.Trim(r.URL.Path, "/")
	parts := strings.Split(path, "/")
	switch {
	case r.Method == http.MethodGet && path == "search":
		s.search(w, r)
	case r.Method == http.MethodGet && path == "me":
		writeJSON(w, http.StatusOK, map[string]any{"id": s.UserID, "display_name": "Test User"})
	case r.Method == http.MethodPost && len(parts) == 3 && parts[0] == "users" && parts[2] == "playlists":
		s.createPlaylist(w, r, parts[1])
	case r.Method == http.MethodPost && len(parts) == 3 && parts[0] == "playlists" && parts[2] == "tracks":
		s.addTracks(w, r, parts[1])
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	s.mu.Lock()
	s.searches = append(s.searches, q)
	s.mu.Unlock()

	if s.SearchStatus != 0 {
		writeError(w, s.SearchStatus, "search failed")
		return
	}

	hits := s.Results[q]
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit < len(hits) {
		hits = hits[:limit]
	}

	items := make([]map[string]any, 0, len(hits))
	for _, t := range hits {
		artists := []map[string]any{}
		if t.Artist != "" {
			artists = append(artists, map[string]any{"name": t.Artist})
		}
		images := []map[string]any{}
		if t.AlbumImage != "" {
			images = append(images, map[string]any{"url": t.AlbumImage})
		}
		item := map[string]any{
			"id":      t.ID,
			"name":    t.Name,
			"uri":     "spotify:track:" + t.ID,
			"artists": artists,
			"album":   map[string]any{"images": images},
		}
		if t.Preview != "" {
			item["preview_url"] = t.Preview
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tracks": map[string]any{"items": items, "total": len(items)},
	})
}

func (s *Server) createPlaylist(w http.ResponseWriter, r *http.Request, owner string) {
	s.mu.Lock()
	status := s.CreateStatus
	s.mu.Unlock()
	if status != 0 {
		writeError(w, status, "create failed")
		return
	}
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Public      bool   `json:"public"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	id := fmt.Sprintf("pl%d", len(s.playlists)+1)
	s.playlists = append(s.playlists, CreatedPlaylist{ID: id, Owner: owner, Name: body.Name, Description: body.Description, Public: body.Public})
	s.mu.Unlock()

	resp := map[string]any{
		"id":            id,
		"name":          body.Name,
		"external_urls": map[string]string{"spotify": "https://open.spotify.com/playlist/" + id},
		"owner":         map[string]any{"id": owner},
	}
	if s.OmitPlaylistURL {
		delete(resp, "external_urls")
	}
	if s.OmitPlaylistID {
		delete(resp, "id")
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) addTracks(w http.ResponseWriter, r *http.Request, playlistID string) {
	var body struct {
		URIs []string `json:"uris"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	s.addCalls++
	s.added[playlistID] = append(s.added[playlistID], body.URIs...)
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, map[string]any{"snapshot_id": "snap"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": map[string]any{"status": status, "message": message}})
}
