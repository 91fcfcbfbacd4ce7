package gemini

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"setlistify/apperrors"
	"setlistify/models"
)

const TextDelimiter = " - "

var fenceRe = regexp.MustCompile("(?s)```[A-Za-z]*\\s*(.*?)\\s*```")

// ParseModelJSON decodes model output as JSON, retrying with markdown code
// fences stripped when the raw text does not parse.
func ParseModelJSON[T any](raw string) (T, error) {
	var out T
	text := strings.TrimSpace(raw)
	if err := json.Unmarshal([]byte(text), &out); err == nil {
		return out, nil
	}

	var zero T
	stripped := stripCodeFences(text)
	if stripped == "" {
		return zero, apperrors.Parse("Model returned no JSON", nil)
	}
	if err := json.Unmarshal([]byte(stripped), &out); err != nil {
		return zero, apperrors.Parse("Model returned invalid JSON", err)
	}
	return out, nil
}

func stripCodeFences(text string) string {
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(strings.ReplaceAll(text, "```", ""))
}

type modelTrack struct {
	Title  string `json:"title"`
	Song   string `json:"song"`
	Artist string `json:"artist"`
}

// parseTracks accepts either a bare array of tracks or an object that wraps
// one under a common key.
func parseTracks(raw string) ([]models.ExtractedTrack, error) {
	msg, err := ParseModelJSON[json.RawMessage](raw)
	if err != nil {
		return nil, err
	}

	var items []modelTrack
	switch trimmed := bytes.TrimSpace(msg); {
	case len(trimmed) > 0 && trimmed[0] == '[':
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, apperrors.Parse("Model returned an unexpected track list", err)
		}
	case len(trimmed) > 0 && trimmed[0] == '{':
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &wrapper); err != nil {
			return nil, apperrors.Parse("Model returned an unexpected object", err)
		}
		found := false
		for _, key := range []string{"tracks", "setlist", "songs"} {
			if inner, ok := wrapper[key]; ok {
				if err := json.Unmarshal(inner, &items); err != nil {
					return nil, apperrors.Parse(fmt.Sprintf("Model returned an unexpected %q list", key), err)
				}
				found = true
				break
			}
		}
		if !found {
			return nil, apperrors.Parse("Model returned an object without a track list", nil)
		}
	default:
		return nil, apperrors.Parse("Model returned JSON that is not a track list", nil)
	}

	tracks := make([]models.ExtractedTrack, 0, len(items))
	for _, it := range items {
		title := strings.TrimSpace(it.Title)
		if title == "" {
			title = strings.TrimSpace(it.Song)
		}
		if title == "" {
			continue
		}
		tracks = append(tracks, models.ExtractedTrack{Title: title, Artist: strings.TrimSpace(it.Artist)})
	}
	return tracks, nil
}

// ParseSetlistText builds tracks from "Title - Artist" lines. Only lines
// with exactly one delimiter count; everything else is skipped.
func ParseSetlistText(raw string) []models.ExtractedTrack {
	tracks := []models.ExtractedTrack{}
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSuffix(line, "\r")
		parts := strings.Split(line, TextDelimiter)
		if len(parts) != 2 {
			continue
		}
		tracks = append(tracks, models.ExtractedTrack{
			Title:  strings.TrimSpace(parts[0]),
			Artist: strings.TrimSpace(parts[1]),
		})
	}
	return tracks
}

// DetectMIMEType prefers the file extension and falls back to sniffing.
func DetectMIMEType(filename string, data []byte) string {
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); byExt != "" {
		if mediaType, _, err := mime.ParseMediaType(byExt); err == nil {
			return mediaType
		}
	}
	if len(data) > 0 {
		return baseType(mimetype.Detect(data).String())
	}
	return "application/octet-stream"
}

// IsImage sniffs data rather than trusting the client's Content-Type.
func IsImage(data []byte) bool {
	return len(data) > 0 && strings.HasPrefix(mimetype.Detect(data).String(), "image/")
}

func baseType(mt string) string {
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		return strings.TrimSpace(mt[:i])
	}
	return mt
}
