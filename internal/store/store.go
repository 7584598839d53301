package store

// Store defines the interface for run record persistence. Implementations
// must be safe for concurrent use.
//
// Error handling conventions:
//   - Return nil on success
//   - Return ErrNotFound if a record doesn't exist (for Load/Delete)
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveResult atomically saves the record for the given job,
	// overwriting any previous record. Implementations should use atomic
	// write strategies (temp file + rename) to avoid corruption.
	SaveResult(jobID string, record *RunRecord) error

	// LoadResult retrieves the record for the given job.
	// Returns ErrNotFound if no record exists.
	LoadResult(jobID string) (*RunRecord, error)

	// ListResults returns metadata for all stored records. The slice may
	// be empty if nothing has been stored yet.
	ListResults() ([]RunInfo, error)

	// DeleteResult removes the record and all associated artifacts for
	// the given job, including the score trace.
	// Returns ErrNotFound if no record exists.
	DeleteResult(jobID string) error
}

// ErrNotFound is returned when a requested record does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing run record.
type NotFoundError struct {
	JobID string
}

func (e *NotFoundError) Error() string {
	if e.JobID != "" {
		return "run record not found: " + e.JobID
	}
	return "run record not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
