package store

// Store defines the interface for fit result persistence.
// Implementations must be safe for concurrent use.
//
// Error handling conventions:
//   - Return nil error on success
//   - Return ErrNotFound if the record doesn't exist (for Load/Delete)
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveResult atomically saves a record for the given job.
	// If a record already exists for this jobID, it is overwritten; running
	// jobs use this to replace intermediate records with the final one.
	SaveResult(jobID string, record *FitRecord) error

	// LoadResult retrieves the record for the given job.
	// Returns ErrNotFound if no record exists for this jobID.
	LoadResult(jobID string) (*FitRecord, error)

	// ListResults returns metadata for all saved fits.
	// The returned slice may be empty if no records exist.
	ListResults() ([]RecordInfo, error)

	// DeleteResult removes the record and all associated artifacts for the
	// given job, including result.json and trace.jsonl.
	// Returns ErrNotFound if no record exists for this jobID.
	DeleteResult(jobID string) error
}

// ErrNotFound is returned when a requested fit record does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing fit record.
type NotFoundError struct {
	JobID string
}

func (e *NotFoundError) Error() string {
	if e.JobID != "" {
		return "fit record not found: " + e.JobID
	}
	return "fit record not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
