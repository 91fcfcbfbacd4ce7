// Package sentryhelper provides utilities for Sentry transaction and scope management.
// It keeps breadcrumbs and context isolated per HTTP request or background task.
package sentryhelper

import (
	"context"

	sentry "github.com/getsentry/sentry-go"
)

// contextKey is used to store the cloned hub in context
type contextKey string

const hubContextKey contextKey = "sentry_hub"

// HubFromContext returns the hub for this request or task. It prefers a hub
// cloned by StartTaskTransaction, then the one the gin middleware attached,
// then the global hub.
func HubFromContext(ctx context.Context) *sentry.Hub {
	if ctx == nil {
		return sentry.CurrentHub()
	}
	if hub, ok := ctx.Value(hubContextKey).(*sentry.Hub); ok && hub != nil {
		return hub
	}
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		return hub
	}
	return sentry.CurrentHub()
}

// StartTaskTransaction starts a transaction on a cloned hub for work that
// runs outside any request, like the session purge loop.
func StartTaskTransaction(ctx context.Context, name string, operation string) (context.Context, *sentry.Span) {
	hub := sentry.CurrentHub().Clone()
	ctx = context.WithValue(ctx, hubContextKey, hub)
	ctx = sentry.SetHubOnContext(ctx, hub)

	transaction := sentry.StartTransaction(ctx, name,
		sentry.WithOpName(operation),
		sentry.WithTransactionSource(sentry.SourceTask),
	)
	hub.Scope().SetSpan(transaction)

	return transaction.Context(), transaction
}

// AddBreadcrumb adds a breadcrumb to the hub in context.
func AddBreadcrumb(ctx context.Context, breadcrumb *sentry.Breadcrumb) {
	HubFromContext(ctx).AddBreadcrumb(breadcrumb, nil)
}

// CaptureException captures an exception on the hub in context.
func CaptureException(ctx context.Context, err error) *sentry.EventID {
	return HubFromContext(ctx).CaptureException(err)
}

func CaptureMessage(ctx context.Context, message string) *sentry.EventID {
	return HubFromContext(ctx).CaptureMessage(message)
}

// SetUser tags the request scope with the Spotify user id.
func SetUser(ctx context.Context, userID string) {
	HubFromContext(ctx).ConfigureScope(func(scope *sentry.Scope) {
		scope.SetUser(sentry.User{ID: userID})
	})
}

// SetTag sets a tag on the scope in context.
func SetTag(ctx context.Context, key, value string) {
	HubFromContext(ctx).ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag(key, value)
	})
}
