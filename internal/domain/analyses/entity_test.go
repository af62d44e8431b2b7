package analyses

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAnalysisID_OrderedWithinMillisecond(t *testing.T) {
	prev, err := NewAnalysisID()
	require.NoError(t, err)
	for i := 0; i < 1000; i++ {
		id, err := NewAnalysisID()
		require.NoError(t, err)
		require.Greater(t, string(id), string(prev))
		prev = id
	}

	parsed, err := uuid.Parse(string(prev))
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestNewPending_TruncatesCreatedAt(t *testing.T) {
	now := time.Date(2026, 5, 6, 7, 8, 9, 987654321, time.UTC)
	a := NewPending("id", "alice", "u", "s", "f.png", now)
	assert.Equal(t, time.Date(2026, 5, 6, 7, 8, 9, 987000000, time.UTC), a.CreatedAt)
	assert.True(t, a.Pending())
	assert.Nil(t, a.Details)
}
