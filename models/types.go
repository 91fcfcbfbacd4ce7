package models

// ExtractedTrack is one (title, artist) guess read from a setlist.
type ExtractedTrack struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

// CandidateMatch is a Spotify search hit. Fields the provider left out stay
// nil and serialize as null.
type CandidateMatch struct {
	URI           *string `json:"uri"`
	Name          *string `json:"name"`
	Artist        *string `json:"artist"`
	AlbumImageURL *string `json:"albumImageUrl"`
	PreviewURL    *string `json:"previewUrl"`
}

// TrackResult pairs an extracted track with its candidates, best first.
type TrackResult struct {
	ExtractedTrack
	Spotify []CandidateMatch `json:"spotify"`
}

// PlaylistRequest is what the client sends once the user has picked a
// candidate per track. Null entries in uris decode to "".
type PlaylistRequest struct {
	PlaylistName  string   `json:"playlistName"`
	URIs          []string `json:"uris"`
	IsPublic      bool     `json:"isPublic"`
	Description   string   `json:"description"`
	AdminPassword string   `json:"adminPassword,omitempty"`
}

type Playlist struct {
	ID         string `json:"playlistId"`
	URL        string `json:"playlistUrl"`
	Name       string `json:"name"`
	OwnerID    string `json:"ownerId"`
	TrackCount int    `json:"trackCount"`
}

func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
