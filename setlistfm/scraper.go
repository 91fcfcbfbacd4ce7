// Package setlistfm reads the song list off a setlist.fm setlist page.
package setlistfm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	sentry "github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"

	"setlistify/apperrors"
	"setlistify/models"
)

var (
	ErrInvalidURL   = errors.New("invalid setlist.fm URL")
	ErrHostNotAllow = errors.New("setlist host not allowed")
)

type Scraper struct {
	httpClient   *http.Client
	allowedHosts map[string]bool
}

func NewScraper(allowedHosts []string, httpClient *http.Client) *Scraper {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	hosts := make(map[string]bool, len(allowedHosts))
	for _, h := range allowedHosts {
		hosts[strings.ToLower(h)] = true
	}
	return &Scraper{httpClient: httpClient, allowedHosts: hosts}
}

// ParseSetlistURL validates raw as an http(s) setlist page on an allowed host.
func (s *Scraper) ParseSetlistURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return nil, ErrInvalidURL
	}
	if !s.allowedHosts[strings.ToLower(u.Host)] {
		log.Warnf("Rejected setlist URL on host %s", u.Host)
		return nil, ErrHostNotAllow
	}
	if !strings.Contains(u.Path, "/setlist/") {
		return nil, ErrInvalidURL
	}
	u.Fragment = ""
	return u, nil
}

// Fetch downloads and parses the setlist at rawURL.
func (s *Scraper) Fetch(ctx context.Context, rawURL string) ([]models.ExtractedTrack, error) {
	u, err := s.ParseSetlistURL(rawURL)
	if err != nil {
		return nil, apperrors.Input("Invalid setlist URL", err)
	}

	span := sentry.StartSpan(ctx, "setlistfm.fetch")
	span.Description = "Fetch setlist.fm page"
	span.SetTag("url", u.String())
	defer span.Finish()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, apperrors.Input("Invalid setlist URL", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; setlistify/1.0)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	log.Tracef("Fetching setlist page: %s", u)
	resp, err := s.httpClient.Do(req)
	if err != nil {
		span.Status = sentry.SpanStatusUnavailable
		return nil, apperrors.Upstream(http.StatusBadGateway, "Failed to fetch setlist", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		span.Status = sentry.SpanStatusInternalError
		status := resp.StatusCode
		if status == http.StatusUnauthorized {
			status = http.StatusBadGateway // the session is fine, the page is not
		}
		return nil, apperrors.Upstream(status, "Failed to fetch setlist", fmt.Errorf("HTTP %d", resp.StatusCode))
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		return nil, apperrors.Parse("Failed to parse setlist page", err)
	}

	tracks := ParseDocument(doc)
	span.Status = sentry.SpanStatusOK
	span.SetData("tracks_count", len(tracks))
	log.Debugf("Parsed %d songs from %s", len(tracks), u)
	return tracks, nil
}

// ParseDocument extracts songs in page order. Covers carry the original
// artist; everything else gets the headline artist.
func ParseDocument(doc *goquery.Document) []models.ExtractedTrack {
	artist := headlineArtist(doc)

	tracks := []models.ExtractedTrack{}
	doc.Find("li.setlistParts.song").Each(func(_ int, li *goquery.Selection) {
		title := strings.TrimSpace(li.Find("a.songLabel").First().Text())
		if title == "" {
			return
		}

		songArtist := artist
		info := li.Find(".infoPart")
		if strings.Contains(strings.ToLower(info.Text()), "cover") {
			if original := strings.TrimSpace(info.Find("a").First().Text()); original != "" {
				songArtist = original
			}
		}

		tracks = append(tracks, models.ExtractedTrack{Title: title, Artist: songArtist})
	})
	return tracks
}

func headlineArtist(doc *goquery.Document) string {
	if name := strings.TrimSpace(doc.Find(".setlistHeadline h1 strong a span").First().Text()); name != "" {
		return name
	}
	if name := strings.TrimSpace(doc.Find(".setlistHeadline h1 strong a").First().Text()); name != "" {
		return name
	}
	if name := performerFromJSONLD(doc); name != "" {
		return name
	}
	// "Artist Setlist at Venue, City" in the og:title
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
		if i := strings.Index(og, " Setlist"); i > 0 {
			return strings.TrimSpace(og[:i])
		}
	}
	return ""
}

// performerFromJSONLD reads the performer of the page's MusicEvent block.
func performerFromJSONLD(doc *goquery.Document) string {
	var performer string
	doc.Find("script[type='application/ld+json']").EachWithBreak(func(i int, s *goquery.Selection) bool {
		var data map[string]any
		if err := json.Unmarshal([]byte(s.Text()), &data); err != nil {
			log.Tracef("Failed to parse JSON-LD block %d: %v", i, err)
			return true
		}
		if typeVal, _ := data["@type"].(string); typeVal != "MusicEvent" {
			return true
		}

		switch p := data["performer"].(type) {
		case map[string]any:
			performer, _ = p["name"].(string)
		case []any:
			if len(p) > 0 {
				if first, ok := p[0].(map[string]any); ok {
					performer, _ = first["name"].(string)
				}
			}
		}
		performer = strings.TrimSpace(performer)
		return performer == ""
	})
	return performer
}
