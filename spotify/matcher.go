package spotify

import (
	"context"
	"strings"

	sentry "github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"
	spotifyclient "github.com/zmb3/spotify/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"setlistify/models"
)

// Searcher is the slice of the Web API the matcher needs.
type Searcher interface {
	Search(ctx context.Context, query string, t spotifyclient.SearchType, opts ...spotifyclient.RequestOption) (*spotifyclient.SearchResult, error)
}

type MatcherOptions struct {
	Market      string
	Limit       int
	Concurrency int
	// RatePerSecond caps outgoing searches; zero means unlimited.
	RatePerSecond float64
}

// Matcher looks up candidate tracks for extracted (title, artist) pairs.
type Matcher struct {
	searcher    Searcher
	market      string
	limit       int
	concurrency int
	limiter     *rate.Limiter
}

func NewMatcher(searcher Searcher, opts MatcherOptions) *Matcher {
	if opts.Limit <= 0 {
		opts.Limit = 3
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.Concurrency)
	}
	return &Matcher{
		searcher:    searcher,
		market:      opts.Market,
		limit:       opts.Limit,
		concurrency: opts.Concurrency,
		limiter:     limiter,
	}
}

// Search returns at most limit candidates in provider relevance order.
// No results is an empty slice, not an error.
func (m *Matcher) Search(ctx context.Context, query string, limit int) ([]models.CandidateMatch, error) {
	if limit <= 0 {
		limit = m.limit
	}

	span := sentry.StartSpan(ctx, "spotify.search")
	span.Description = "Search Spotify API"
	span.SetTag("query", query)
	defer span.Finish()

	if err := m.limiter.Wait(ctx); err != nil {
		span.Status = sentry.SpanStatusCanceled
		return nil, err
	}

	opts := []spotifyclient.RequestOption{spotifyclient.Limit(limit)}
	if m.market != "" {
		opts = append(opts, spotifyclient.Market(m.market))
	}

	results, err := m.searcher.Search(ctx, query, spotifyclient.SearchTypeTrack, opts...)
	if err != nil {
		log.Errorf("Spotify search failed for %q: %v", query, err)
		span.Status = sentry.SpanStatusInternalError
		return nil, mapError(err, "Spotify search failed")
	}

	candidates := []models.CandidateMatch{}
	if results != nil && results.Tracks != nil {
		for _, track := range results.Tracks.Tracks {
			if len(candidates) == limit {
				break
			}
			candidates = append(candidates, toCandidate(track))
		}
	}

	log.Tracef("Spotify search %q => %d candidates", query, len(candidates))
	span.Status = sentry.SpanStatusOK
	span.SetData("results_count", len(candidates))
	return candidates, nil
}

// MatchAll searches every track concurrently. Output order follows input
// order; any failed search fails the batch.
func (m *Matcher) MatchAll(ctx context.Context, tracks []models.ExtractedTrack) ([]models.TrackResult, error) {
	results := make([]models.TrackResult, len(tracks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i, track := range tracks {
		g.Go(func() error {
			candidates, err := m.Search(gctx, Query(track), m.limit)
			if err != nil {
				return err
			}
			results[i] = models.TrackResult{ExtractedTrack: track, Spotify: candidates}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func Query(track models.ExtractedTrack) string {
	return strings.TrimSpace(track.Title + " " + track.Artist)
}

func toCandidate(track spotifyclient.FullTrack) models.CandidateMatch {
	c := models.CandidateMatch{
		URI:        models.StringPtr(string(track.URI)),
		Name:       models.StringPtr(track.Name),
		PreviewURL: models.StringPtr(track.PreviewURL),
	}
	if len(track.Artists) > 0 {
		c.Artist = models.StringPtr(track.Artists[0].Name)
	}
	if len(track.Album.Images) > 0 {
		c.AlbumImageURL = models.StringPtr(track.Album.Images[0].URL)
	}
	return c
}
