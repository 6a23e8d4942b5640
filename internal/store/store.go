package store

import "io"

// Store persists run checkpoints and their per-job artifacts. Implementations
// are safe for concurrent use. Missing jobs are reported as ErrNotFound.
type Store interface {
	// SaveCheckpoint replaces the checkpoint of jobID. A reader never sees a
	// partially written checkpoint.
	SaveCheckpoint(jobID string, checkpoint *Checkpoint) error

	// LoadCheckpoint returns the last checkpoint saved for jobID.
	LoadCheckpoint(jobID string) (*Checkpoint, error)

	// ListCheckpoints summarizes every stored checkpoint in no particular order.
	ListCheckpoints() ([]CheckpointInfo, error)

	// DeleteCheckpoint removes the job directory including its trace and plot.
	DeleteCheckpoint(jobID string) error

	// JobDir returns the directory holding the artifacts of a job.
	JobDir(jobID string) string

	// WriteArtifact writes a named file such as plot.png into the job
	// directory and returns its path.
	WriteArtifact(jobID, name string, write func(w io.Writer) error) (string, error)
}

// ErrNotFound matches any *NotFoundError under errors.Is.
var ErrNotFound = &NotFoundError{}

// NotFoundError reports a job without a checkpoint.
type NotFoundError struct {
	JobID string
}

func (e *NotFoundError) Error() string {
	if e.JobID != "" {
		return "checkpoint not found: " + e.JobID
	}
	return "checkpoint not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
