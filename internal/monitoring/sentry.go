package monitoring

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/getsentry/sentry-go"
)

// ignoredErrors are logged but never sent to Sentry.
var ignoredErrors = []string{
	"connection reset by peer",
	"broken pipe",
	"use of closed network connection",
}

func shouldIgnore(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	errStr := err.Error()
	for _, ignored := range ignoredErrors {
		if strings.Contains(errStr, ignored) {
			return true
		}
	}
	return false
}

// CaptureError logs err and reports it to Sentry. Use it for failures outside
// an HTTP request (fan-out runs, retry loop, trigger handlers); request
// errors are reported by the sentryfiber middleware.
func CaptureError(err error, message string, tags map[string]string) {
	attrs := []any{"error", err}
	for k, v := range tags {
		attrs = append(attrs, k, v)
	}
	slog.Error(message, attrs...)

	if shouldIgnore(err) {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetExtra("message", message)
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}
