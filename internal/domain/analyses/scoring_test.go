package analyses

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seqSource replays fixed draws and then repeats the last one.
type seqSource struct {
	vals []float64
	i    int
}

func (s *seqSource) Float64() float64 {
	if s.i >= len(s.vals) {
		return s.vals[len(s.vals)-1]
	}
	v := s.vals[s.i]
	s.i++
	return v
}

func uniform(v float64) SubScores {
	return SubScores{v, v, v, v, v, v}
}

func TestOverall_BoundaryIsAuthentic(t *testing.T) {
	overall := Overall(uniform(50))
	assert.Equal(t, 50.0, overall)
	assert.Equal(t, VerdictAuthentic, VerdictFor(overall))
}

func TestOverall_AllHundred(t *testing.T) {
	res := Assess(uniform(100), &seqSource{vals: []float64{0.999999}})

	assert.Equal(t, 100.0, Overall(res.Details))
	assert.Equal(t, VerdictAIGenerated, res.Verdict)
	assert.GreaterOrEqual(t, res.Confidence, MinConfidence)
	assert.LessOrEqual(t, res.Confidence, MaxConfidence)
}

func TestOverall_Weights(t *testing.T) {
	s := SubScores{Artifact: 100}
	assert.InDelta(t, 20.0, Overall(s), 1e-9)

	s = SubScores{Metadata: 100}
	assert.InDelta(t, 15.0, Overall(s), 1e-9)

	s = SubScores{Artifact: 100, PatternConsistency: 100, Noise: 100}
	assert.InDelta(t, 55.0, Overall(s), 1e-9)
	assert.Equal(t, VerdictAIGenerated, VerdictFor(Overall(s)))
}

func TestVerdictFor_JustAbove(t *testing.T) {
	assert.Equal(t, VerdictAIGenerated, VerdictFor(50.0000001))
	assert.Equal(t, VerdictAuthentic, VerdictFor(0))
}

func TestDrawSubScores_FieldOrder(t *testing.T) {
	src := &seqSource{vals: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}}
	s := DrawSubScores(src)

	assert.InDelta(t, 10.0, s.Artifact, 1e-9)
	assert.InDelta(t, 20.0, s.PatternConsistency, 1e-9)
	assert.InDelta(t, 30.0, s.Noise, 1e-9)
	assert.InDelta(t, 40.0, s.ColorDistribution, 1e-9)
	assert.InDelta(t, 50.0, s.EdgeCoherence, 1e-9)
	assert.InDelta(t, 60.0, s.Metadata, 1e-9)
}

func TestDrawConfidence_Range(t *testing.T) {
	for _, draw := range []float64{0, 0.25, 0.5, 0.999999999} {
		c := DrawConfidence(&seqSource{vals: []float64{draw}})
		require.GreaterOrEqual(t, c, MinConfidence)
		require.LessOrEqual(t, c, MaxConfidence)
	}
	assert.Equal(t, MinConfidence, DrawConfidence(&seqSource{vals: []float64{0}}))
}

func TestDrawConfidence_CapsOutOfRangeSource(t *testing.T) {
	// a misbehaving source still cannot push confidence above the cap
	c := DrawConfidence(&seqSource{vals: []float64{1.5}})
	assert.Equal(t, MaxConfidence, c)
}

func TestVerdict_Terminal(t *testing.T) {
	assert.False(t, VerdictPending.Terminal())
	assert.True(t, VerdictAuthentic.Terminal())
	assert.True(t, VerdictAIGenerated.Terminal())
	assert.True(t, VerdictPending.Valid())
	assert.False(t, Verdict("REAL").Valid())
}
