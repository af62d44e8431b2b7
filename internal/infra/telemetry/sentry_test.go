package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTransport struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (t *recordingTransport) Configure(sentry.ClientOptions) {}

func (t *recordingTransport) SendEvent(ev *sentry.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, ev)
}

func (t *recordingTransport) Flush(time.Duration) bool              { return true }
func (t *recordingTransport) FlushWithContext(context.Context) bool { return true }
func (t *recordingTransport) Close()                                {}

func (t *recordingTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.events)
}

func (t *recordingTransport) last() *sentry.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.events[len(t.events)-1]
}

func TestReporter_Disabled(t *testing.T) {
	r, err := New(Options{})
	require.NoError(t, err)
	assert.False(t, r.Enabled())

	// no panic, nothing to flush
	r.ReportFailure(context.Background(), "a1", errors.New("boom"))
	assert.True(t, r.Flush(time.Second))
}

func TestReporter_CapturesFailure(t *testing.T) {
	tr := &recordingTransport{}
	r, err := New(Options{Environment: "test", Transport: tr})
	require.NoError(t, err)
	require.True(t, r.Enabled())

	r.ReportFailure(context.Background(), "a1", errors.New("patch failed"))
	r.ReportFailure(context.Background(), "a2", nil)
	r.Flush(time.Second)

	require.Equal(t, 1, tr.count())
	ev := tr.last()
	assert.Equal(t, "a1", ev.Tags["analysis_id"])
	assert.Equal(t, "scoring", ev.Tags["operation"])
	assert.Equal(t, "test", ev.Environment)
}
