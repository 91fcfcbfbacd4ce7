package gemini

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"setlistify/apperrors"
	"setlistify/models"
)

// retryable statuses move on to the next model instead of failing
var retryableStatuses = map[int]bool{
	http.StatusServiceUnavailable: true,
	http.StatusGatewayTimeout:     true,
	http.StatusTooManyRequests:    true,
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func contextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Extractor turns a setlist photo into tracks, walking an ordered model list
// and falling back on retryable failures or unparseable output.
type Extractor struct {
	recognizer Recognizer
	models     []string
	backoff    time.Duration
	sleep      Sleeper
}

func NewExtractor(recognizer Recognizer, models []string, backoff time.Duration) *Extractor {
	return &Extractor{
		recognizer: recognizer,
		models:     models,
		backoff:    backoff,
		sleep:      contextSleep,
	}
}

// WithSleeper replaces the backoff wait, mainly for tests.
func (e *Extractor) WithSleeper(s Sleeper) *Extractor {
	e.sleep = s
	return e
}

func (e *Extractor) Models() []string {
	return e.models
}

// Extract runs recognition on image. Model i failing retryably is followed
// by a wait of backoff*2^i before model i+1 is tried.
func (e *Extractor) Extract(ctx context.Context, image []byte, filename, prompt string) ([]models.ExtractedTrack, error) {
	if len(e.models) == 0 {
		return nil, apperrors.Recognition(0, "No recognition models configured", nil)
	}
	if prompt == "" {
		prompt = SetlistPrompt
	}
	mimeType := DetectMIMEType(filename, image)

	for i, model := range e.models {
		isLast := i == len(e.models)-1

		raw, err := e.recognizer.Recognize(ctx, model, image, mimeType, prompt)
		if err != nil {
			status := StatusOf(err)
			if !retryableStatuses[status] || isLast {
				log.Errorf("%s failed: %v", model, err)
				return nil, apperrors.Recognition(status, "Recognition failed", err)
			}
			log.Warnf("%s => %d. Fallback to %s", model, status, e.models[i+1])
		} else {
			tracks, parseErr := parseTracks(raw)
			if parseErr == nil {
				log.Infof("Used model: %s (%d tracks)", model, len(tracks))
				return tracks, nil
			}
			if isLast {
				log.Errorf("%s returned invalid JSON: %v", model, parseErr)
				return nil, apperrors.Recognition(0, "Recognition returned no usable JSON", parseErr)
			}
			log.Warnf("%s returned invalid JSON, fallback to %s", model, e.models[i+1])
		}

		delay := e.backoff * time.Duration(1<<i)
		if err := e.sleep(ctx, delay); err != nil {
			return nil, apperrors.Recognition(0, "Recognition cancelled", err)
		}
	}

	// every iteration returns or continues; only reached with an empty model list
	return nil, apperrors.Recognition(0, "Recognition failed", nil)
}
