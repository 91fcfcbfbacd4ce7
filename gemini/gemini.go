package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	sentry "github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"
	"google.golang.org/genai"
)

// Recognizer runs one image-understanding call against a single model and
// returns the raw text the model produced.
type Recognizer interface {
	Recognize(ctx context.Context, model string, image []byte, mimeType, prompt string) (string, error)
}

// StatusError is a recognition failure with the provider's HTTP status.
type StatusError struct {
	Status int
	Err    error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("recognition failed with status %d: %v", e.Status, e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// StatusOf extracts a provider status from err, 0 when there is none.
func StatusOf(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

// Client is the Gemini-backed Recognizer.
type Client struct {
	client *genai.Client
}

func NewClient(ctx context.Context, apiKey string) (*Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Client{client: client}, nil
}

func (c *Client) Recognize(ctx context.Context, model string, image []byte, mimeType, prompt string) (string, error) {
	span := sentry.StartSpan(ctx, "gemini.generate_content")
	span.Description = "Recognize setlist image"
	span.SetTag("model", model)
	span.SetData("image_bytes", len(image))
	defer span.Finish()

	parts := []*genai.Part{
		genai.NewPartFromBytes(image, mimeType),
		genai.NewPartFromText(prompt),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := c.client.Models.GenerateContent(ctx, model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		status := StatusOf(err)
		if status == 0 {
			status = http.StatusInternalServerError
		}
		span.Status = sentry.SpanStatusInternalError
		log.Errorf("Gemini %s failed: %v", model, err)
		return "", &StatusError{Status: status, Err: err}
	}

	span.Status = sentry.SpanStatusOK
	return resp.Text(), nil
}
