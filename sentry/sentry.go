package sentry

import (
	"time"

	sentry "github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"setlistify/config"
)

// Init configures the global client. An empty DSN leaves reporting off.
func Init(cfg config.SentryConfig) error {
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Release:          cfg.Release,
		Environment:      cfg.Environment,
		TracesSampleRate: cfg.TracesSampleRate,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			// tokens ride in cookies; never ship them
			if event.Request != nil {
				event.Request.Cookies = ""
				delete(event.Request.Headers, "Cookie")
				delete(event.Request.Headers, "Authorization")
				delete(event.Request.Headers, "X-Admin-Pw")
			}
			return event
		},
	}); err != nil {
		return err
	}
	if cfg.DSN == "" {
		log.Debug("SENTRY_DSN not set, error reporting disabled")
	}
	return nil
}

// GetSentryGin gives every request its own hub and transaction.
func GetSentryGin() gin.HandlerFunc {
	return sentrygin.New(sentrygin.Options{
		Repanic:         true,
		WaitForDelivery: false,
		Timeout:         2 * time.Second,
	})
}

func Flush() {
	sentry.Flush(2 * time.Second)
}

func ReportFatal(err error) {
	sentry.CaptureException(err)
	Flush()
}
