package store

import (
	"fmt"
	"time"
)

// JobConfig holds the configuration of an optimization job (persisted copy).
// Kept here rather than in the server package to avoid import cycles.
type JobConfig struct {
	Target        string  `json:"target"`
	Generations   int     `json:"generations"`
	PopSize       int     `json:"popSize"`
	EliteFraction float64 `json:"eliteFraction"`
	MinError      float64 `json:"minError"`
	Seed          uint64  `json:"seed"`
	Parallelism   int     `json:"parallelism,omitempty"`
}

// RunRecord is the persisted outcome of a finished optimization run: the
// cloned elite, the best score, and how many generations it took. Only final
// results are stored, never intermediate populations.
type RunRecord struct {
	// JobID is the unique identifier of the run.
	JobID string `json:"jobId"`

	// Best holds the extracted elite candidates in ascending-score order.
	Best []string `json:"best"`

	// BestScore is the minimum score of the final generation.
	BestScore float64 `json:"bestScore"`

	// Generations is the number of recombination cycles executed.
	Generations int `json:"generations"`

	// Timestamp records when the record was created.
	Timestamp time.Time `json:"timestamp"`

	// Config is the job configuration that produced this record.
	Config JobConfig `json:"config"`
}

// RunInfo is record metadata without the candidate payload, used for
// listings.
type RunInfo struct {
	JobID       string    `json:"jobId"`
	BestScore   float64   `json:"bestScore"`
	Generations int       `json:"generations"`
	Timestamp   time.Time `json:"timestamp"`
	Target      string    `json:"target"`
	PopSize     int       `json:"popSize"`
}

// NewRunRecord creates a record from run results.
func NewRunRecord(jobID string, best []string, bestScore float64, generations int, config JobConfig) *RunRecord {
	return &RunRecord{
		JobID:       jobID,
		Best:        best,
		BestScore:   bestScore,
		Generations: generations,
		Timestamp:   time.Now(),
		Config:      config,
	}
}

// ToInfo converts a full RunRecord to its metadata.
func (r *RunRecord) ToInfo() RunInfo {
	return RunInfo{
		JobID:       r.JobID,
		BestScore:   r.BestScore,
		Generations: r.Generations,
		Timestamp:   r.Timestamp,
		Target:      r.Config.Target,
		PopSize:     r.Config.PopSize,
	}
}

// Validate checks that the record is complete enough to persist.
func (r *RunRecord) Validate() error {
	if r.JobID == "" {
		return &ValidationError{Field: "JobID", Reason: "cannot be empty"}
	}
	if len(r.Best) == 0 {
		return &ValidationError{Field: "Best", Reason: "cannot be empty"}
	}
	if r.BestScore < 0 {
		return &ValidationError{Field: "BestScore", Reason: "cannot be negative"}
	}
	if r.Generations < 0 {
		return &ValidationError{Field: "Generations", Reason: "cannot be negative"}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if r.Config.Target == "" {
		return &ValidationError{Field: "Config.Target", Reason: "cannot be empty"}
	}
	if r.Config.PopSize <= 0 {
		return &ValidationError{Field: "Config.PopSize", Reason: "must be positive"}
	}
	if r.Config.Generations < 0 {
		return &ValidationError{Field: "Config.Generations", Reason: "cannot be negative"}
	}
	if r.Config.EliteFraction <= 0 || r.Config.EliteFraction > 1 {
		return &ValidationError{Field: "Config.EliteFraction", Reason: "must be in (0, 1]"}
	}
	if len(r.Best) > r.Config.PopSize {
		return &ValidationError{
			Field:  "Best",
			Reason: fmt.Sprintf("holds %d candidates, more than the population of %d", len(r.Best), r.Config.PopSize),
		}
	}
	return nil
}

// ValidationError represents a run record validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
