// Package scoring fills PENDING analyses with fabricated verdicts. There is
// no image analysis here: scores come from the injected random source after
// an artificial delay.
package scoring

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bryanwahyu/imageproof/internal/application"
	domain "github.com/bryanwahyu/imageproof/internal/domain/analyses"
)

const (
	DefaultMinDelay = 2000 * time.Millisecond
	DefaultMaxDelay = 3500 * time.Millisecond
)

// Store is the slice of the repository the worker needs.
type Store interface {
	Get(ctx context.Context, id domain.AnalysisID) (*domain.Analysis, error)
	PatchResult(ctx context.Context, id domain.AnalysisID, res domain.Result) error
}

// Reporter receives scoring failures, e.g. an error tracker.
type Reporter interface {
	ReportFailure(ctx context.Context, id domain.AnalysisID, err error)
}

// Observer records scoring outcomes. outcome is "success" or "error".
type Observer interface {
	ObserveScoring(verdict domain.Verdict, outcome string, elapsed time.Duration)
}

// Worker scores one record per call. Fields other than Repo are optional.
type Worker struct {
	Repo     Store
	Events   domain.Publisher
	Source   domain.Source
	MinDelay time.Duration
	MaxDelay time.Duration
	Sleep    func(ctx context.Context, d time.Duration) error
	Reporter Reporter
	Metrics  Observer
	Clock    application.Clock
}

// Handle is the queue entry point. Failures are logged and reported but the
// record is left PENDING; there is no retry.
func (w *Worker) Handle(ctx context.Context, t domain.Task) error {
	start := time.Now()
	res, err := w.Score(ctx, t.AnalysisID)
	if err != nil {
		zap.L().Error("scoring failed, analysis stays pending",
			zap.String("id", string(t.AnalysisID)),
			zap.Error(err),
		)
		if w.Reporter != nil {
			w.Reporter.ReportFailure(ctx, t.AnalysisID, err)
		}
		w.observe(domain.VerdictPending, "error", time.Since(start))
		return err
	}
	zap.L().Info("analysis scored",
		zap.String("id", string(t.AnalysisID)),
		zap.String("verdict", string(res.Verdict)),
		zap.Float64("confidence", res.Confidence),
	)
	w.observe(res.Verdict, "success", time.Since(start))
	return nil
}

// Score waits the artificial delay, draws the six sub-scores and writes the
// terminal result back.
func (w *Worker) Score(ctx context.Context, id domain.AnalysisID) (domain.Result, error) {
	src := w.source()

	if err := w.sleep(ctx, w.delay(src)); err != nil {
		return domain.Result{}, eris.Wrapf(err, "scoring %s interrupted", id)
	}

	res := domain.Assess(domain.DrawSubScores(src), src)
	if err := w.Repo.PatchResult(ctx, id, res); err != nil {
		return domain.Result{}, eris.Wrapf(err, "patch result %s", id)
	}

	if w.Events != nil {
		w.publish(ctx, id)
	}
	return res, nil
}

func (w *Worker) publish(ctx context.Context, id domain.AnalysisID) {
	a, err := w.Repo.Get(ctx, id)
	if err != nil {
		zap.L().Warn("reload scored analysis failed", zap.String("id", string(id)), zap.Error(err))
		return
	}
	now := time.Now().UTC()
	if w.Clock != nil {
		now = w.Clock.Now()
	}
	ev := domain.Event{Type: domain.EventScored, OwnerID: a.OwnerID, AnalysisID: id, Analysis: a, At: now}
	if err := w.Events.Publish(ctx, ev); err != nil {
		zap.L().Warn("publish scored event failed", zap.String("id", string(id)), zap.Error(err))
	}
}

func (w *Worker) delay(src domain.Source) time.Duration {
	lo, hi := w.MinDelay, w.MaxDelay
	if lo == 0 && hi == 0 {
		lo, hi = DefaultMinDelay, DefaultMaxDelay
	}
	if hi < lo {
		hi = lo
	}
	return lo + time.Duration(float64(hi-lo)*src.Float64())
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) error {
	if w.Sleep != nil {
		return w.Sleep(ctx, d)
	}
	return SleepContext(ctx, d)
}

func (w *Worker) source() domain.Source {
	if w.Source != nil {
		return w.Source
	}
	return defaultSource
}

func (w *Worker) observe(v domain.Verdict, outcome string, elapsed time.Duration) {
	if w.Metrics != nil {
		w.Metrics.ObserveScoring(v, outcome, elapsed)
	}
}

// SleepContext blocks for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// LockedSource makes a *rand.Rand safe to share between concurrent tasks.
type LockedSource struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewSource returns a PCG-backed source; equal seeds replay equal draws.
func NewSource(seed1, seed2 uint64) *LockedSource {
	return &LockedSource{r: rand.New(rand.NewPCG(seed1, seed2))}
}

func (s *LockedSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Float64()
}

var defaultSource = NewSource(uint64(time.Now().UnixNano()), rand.Uint64())
