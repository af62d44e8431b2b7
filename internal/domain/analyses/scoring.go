package analyses

import "math"

const (
	// AIThreshold: an overall score strictly above this is AI_GENERATED.
	AIThreshold = 50.0

	MinConfidence = 85.0
	MaxConfidence = 99.97
)

// Source is the randomness the scoring worker draws from. Float64 must
// return values in [0,1).
type Source interface {
	Float64() float64
}

// DrawSubScores draws the six sub-scores, in field order, from src.
func DrawSubScores(src Source) SubScores {
	return SubScores{
		Artifact:           100 * src.Float64(),
		PatternConsistency: 100 * src.Float64(),
		Noise:              100 * src.Float64(),
		ColorDistribution:  100 * src.Float64(),
		EdgeCoherence:      100 * src.Float64(),
		Metadata:           100 * src.Float64(),
	}
}

// Overall weights: artifact and pattern 20% each, the other four 15% each.
// Integer weights keep integral inputs exact (all 50s give exactly 50).
func Overall(s SubScores) float64 {
	sum := 20*s.Artifact +
		20*s.PatternConsistency +
		15*(s.Noise+s.ColorDistribution+s.EdgeCoherence+s.Metadata)
	return sum / 100
}

// VerdictFor uses a strict comparison; exactly 50 is AUTHENTIC.
func VerdictFor(overall float64) Verdict {
	if overall > AIThreshold {
		return VerdictAIGenerated
	}
	return VerdictAuthentic
}

// DrawConfidence draws uniformly from [85, 99.97] and caps at 99.97.
func DrawConfidence(src Source) float64 {
	c := MinConfidence + (MaxConfidence-MinConfidence)*src.Float64()
	return math.Min(MaxConfidence, c)
}

// Assess turns a set of sub-scores into the terminal result.
func Assess(s SubScores, src Source) Result {
	return Result{
		Verdict:    VerdictFor(Overall(s)),
		Confidence: DrawConfidence(src),
		Details:    s,
	}
}
