package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of an extraction job.
type JobStatus string

const (
	StatusPending    JobStatus = "Pending"
	StatusInProgress JobStatus = "InProgress"
	StatusCompleted  JobStatus = "Completed"
	StatusFailed     JobStatus = "Failed"
)

// SectionNames is the fixed vocabulary of character-sheet sections attempted
// per extraction. Order matters: results are recorded in this order.
var SectionNames = []string{
	"CharacterInfo",
	"Appearance",
	"AbilityScores",
	"SavingThrows",
	"Skills",
	"Combat",
	"Proficiencies",
	"FeaturesAndTraits",
	"Equipment",
	"Spellcasting",
	"Persona",
	"Backstory",
}

// AllowedContentTypes lists the upload types the extraction pipeline accepts.
var AllowedContentTypes = map[string]bool{
	"image/png":       true,
	"image/jpeg":      true,
	"image/webp":      true,
	"image/gif":       true,
	"application/pdf": true,
}

// ExtractionJob represents one uploaded file queued for LLM extraction.
type ExtractionJob struct {
	ID                int64           `json:"id"`
	JobToken          string          `json:"jobToken"`
	OwnerID           string          `json:"ownerId"`
	FileName          string          `json:"fileName"`
	ContentType       string          `json:"contentType"`
	FileDataURL       string          `json:"fileDataUrl"`
	Status            JobStatus       `json:"status"`
	CreatedAt         time.Time       `json:"createdAt"`
	StartedAt         *time.Time      `json:"startedAt,omitempty"`
	CompletedAt       *time.Time      `json:"completedAt,omitempty"`
	ErrorMessage      *string         `json:"errorMessage,omitempty"`
	ResultCharacterID *int64          `json:"resultCharacterId,omitempty"`
	SectionResults    []SectionResult `json:"sectionResults"`
}

// SectionResult records one section's outcome for a single extraction attempt.
// Results are appended as a batch per attempt and never mutated.
type SectionResult struct {
	ID           int64     `json:"id"`
	JobID        int64     `json:"jobId"`
	SectionName  string    `json:"sectionName"`
	IsSuccessful bool      `json:"isSuccessful"`
	ErrorMessage *string   `json:"errorMessage,omitempty"`
	ProcessedAt  time.Time `json:"processedAt"`
}

// NewExtractionJob returns a job in the Pending state with CreatedAt set.
// Token, payload and owner are filled in by the caller before persisting.
func NewExtractionJob() *ExtractionJob {
	return &ExtractionJob{
		Status:         StatusPending,
		CreatedAt:      time.Now().UTC(),
		SectionResults: []SectionResult{},
	}
}

// NewJobToken generates the externally-visible job identifier: the first
// 16 hex digits of a random UUID.
func NewJobToken() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
}

// SuccessfulSections counts the sections that parsed cleanly.
func (j *ExtractionJob) SuccessfulSections() int {
	n := 0
	for _, r := range j.SectionResults {
		if r.IsSuccessful {
			n++
		}
	}
	return n
}

// IsSuccessful reports whether the job completed with a strict majority of
// its sections extracted. Exactly half is not a success: partial extractions
// are deliberately judged as failures rather than the other way around.
func (j *ExtractionJob) IsSuccessful() bool {
	if j.Status != StatusCompleted {
		return false
	}
	total := len(j.SectionResults)
	if total == 0 {
		return false
	}
	return float64(j.SuccessfulSections()) > 0.5*float64(total)
}

// SuccessRate is successfulSections/totalSections, 0 when no sections exist.
func (j *ExtractionJob) SuccessRate() float64 {
	total := len(j.SectionResults)
	if total == 0 {
		return 0
	}
	return float64(j.SuccessfulSections()) / float64(total)
}
