package analyses

import (
	"time"

	"github.com/google/uuid"
)

// AnalysisID identifier type
type AnalysisID string

// NewAnalysisID mints a UUIDv7. Its ordering follows creation order, also for
// ids minted within the same millisecond, which breaks created_at ties.
func NewAnalysisID() (AnalysisID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return AnalysisID(id.String()), nil
}

// CreatedAtPrecision is the resolution created_at is stored with.
const CreatedAtPrecision = time.Millisecond

// Verdict enum
type Verdict string

const (
	VerdictPending     Verdict = "PENDING"
	VerdictAuthentic   Verdict = "AUTHENTIC"
	VerdictAIGenerated Verdict = "AI_GENERATED"
)

// Terminal reports whether no further transition is possible.
func (v Verdict) Terminal() bool {
	return v == VerdictAuthentic || v == VerdictAIGenerated
}

// Valid reports whether v is one of the known verdicts.
func (v Verdict) Valid() bool {
	return v == VerdictPending || v.Terminal()
}

// SubScores value object, each value a percentage in [0,100)
type SubScores struct {
	Artifact           float64 `json:"artifact_score"`
	PatternConsistency float64 `json:"pattern_consistency"`
	Noise              float64 `json:"noise_analysis"`
	ColorDistribution  float64 `json:"color_distribution"`
	EdgeCoherence      float64 `json:"edge_coherence"`
	Metadata           float64 `json:"metadata_score"`
}

// Result is what the scoring worker writes back onto a pending record.
type Result struct {
	Verdict    Verdict   `json:"verdict"`
	Confidence float64   `json:"confidence"`
	Details    SubScores `json:"details"`
}

// Aggregate Root: Analysis
type Analysis struct {
	ID         AnalysisID `json:"id"`
	OwnerID    string     `json:"owner_id"`
	ImageURL   string     `json:"image_url"`
	StorageID  string     `json:"storage_id"`
	Filename   string     `json:"filename"`
	Verdict    Verdict    `json:"verdict"`
	Confidence float64    `json:"confidence"`
	Details    *SubScores `json:"details,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Pending reports whether the record still waits for its scoring result.
func (a *Analysis) Pending() bool {
	return a.Verdict == VerdictPending
}

// NewPending builds a fresh record in the PENDING state. now is truncated to
// the stored precision so the record reads back the same everywhere.
func NewPending(id AnalysisID, owner, imageURL, storageID, filename string, now time.Time) *Analysis {
	return &Analysis{
		ID:        id,
		OwnerID:   owner,
		ImageURL:  imageURL,
		StorageID: storageID,
		Filename:  filename,
		Verdict:   VerdictPending,
		CreatedAt: now.Truncate(CreatedAtPrecision),
	}
}

// Stats per owner. Total counts terminal records only.
type Stats struct {
	Total       int `json:"total"`
	Authentic   int `json:"authentic"`
	AIGenerated int `json:"ai_generated"`
	Pending     int `json:"pending"`
}

// UploadTarget describes where the client sends the raw image bytes.
type UploadTarget struct {
	StorageID string    `json:"storage_id"`
	URL       string    `json:"url"`
	Method    string    `json:"method"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Task is the unit handed to the scoring worker pool.
type Task struct {
	AnalysisID AnalysisID `json:"analysis_id"`
}

// EventType enum for live subscription messages
type EventType string

const (
	EventCreated EventType = "analysis.created"
	EventScored  EventType = "analysis.scored"
	EventDeleted EventType = "analysis.deleted"
)

// Event is pushed to subscribers of an owner's records.
type Event struct {
	Type       EventType  `json:"type"`
	OwnerID    string     `json:"owner_id"`
	AnalysisID AnalysisID `json:"analysis_id"`
	Analysis   *Analysis  `json:"analysis,omitempty"`
	At         time.Time  `json:"at"`
}
