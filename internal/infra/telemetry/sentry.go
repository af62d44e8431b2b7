// Package telemetry reports scoring failures to Sentry.
package telemetry

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	domain "github.com/bryanwahyu/imageproof/internal/domain/analyses"
)

type Options struct {
	DSN         string
	Environment string
	Release     string
	// Transport overrides the HTTP transport; tests inject a recorder.
	Transport sentry.Transport
}

// Reporter captures scoring failures. A Reporter built without a DSN is a
// no-op so callers never need a nil check.
type Reporter struct {
	hub *sentry.Hub
}

func New(opts Options) (*Reporter, error) {
	if opts.DSN == "" && opts.Transport == nil {
		return &Reporter{}, nil
	}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              opts.DSN,
		Environment:      opts.Environment,
		Release:          opts.Release,
		AttachStacktrace: true,
		SampleRate:       1.0,
		Transport:        opts.Transport,
	})
	if err != nil {
		return nil, eris.Wrap(err, "sentry: client")
	}
	hub := sentry.NewHub(client, sentry.NewScope())
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("component", "imageproof-api")
	})
	zap.L().Info("sentry enabled", zap.String("environment", opts.Environment))
	return &Reporter{hub: hub}, nil
}

func (r *Reporter) Enabled() bool { return r != nil && r.hub != nil }

// ReportFailure records a scoring task that left its record PENDING.
func (r *Reporter) ReportFailure(_ context.Context, id domain.AnalysisID, err error) {
	if !r.Enabled() || err == nil {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("operation", "scoring")
		scope.SetTag("analysis_id", string(id))
		scope.SetLevel(sentry.LevelError)
		r.hub.CaptureException(err)
	})
}

// Flush waits for buffered events; call before exit.
func (r *Reporter) Flush(timeout time.Duration) bool {
	if !r.Enabled() {
		return true
	}
	return r.hub.Flush(timeout)
}
