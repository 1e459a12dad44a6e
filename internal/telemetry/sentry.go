package telemetry

import (
	"time"

	"github.com/getsentry/sentry-go"
)

const flushTimeout = 2 * time.Second

// SentryReporter forwards unexpected failures to Sentry. It satisfies ports.ErrorReporter.
type SentryReporter struct {
	hub *sentry.Hub
}

// NewSentryReporter returns nil without error when dsn is empty.
func NewSentryReporter(dsn string, environment string, release string) (*SentryReporter, error) {
	if dsn == "" {
		return nil, nil
	}
	return newSentryReporter(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
		Release:     "callstack@" + release,
	})
}

func newSentryReporter(options sentry.ClientOptions) (*SentryReporter, error) {
	client, err := sentry.NewClient(options)
	if err != nil {
		return nil, err
	}
	return &SentryReporter{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

func (r *SentryReporter) Report(err error, tags map[string]string) {
	if r == nil || err == nil {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		r.hub.CaptureException(err)
	})
}

// Recover reports a panic, flushes, and panics again. Use it as a deferred call.
func (r *SentryReporter) Recover() {
	value := recover()
	if value == nil {
		return
	}
	if r != nil {
		if err, ok := value.(error); ok {
			r.hub.CaptureException(err)
		} else {
			r.hub.Recover(value)
		}
		r.hub.Flush(flushTimeout)
	}
	panic(value)
}

func (r *SentryReporter) Flush() {
	if r == nil {
		return
	}
	r.hub.Flush(flushTimeout)
}
