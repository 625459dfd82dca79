package pipeline

import "errors"

// Job-level error sentinels. Everything else is captured per task.
var (
	// ErrValidation rejects a batch before any task starts.
	ErrValidation = errors.New("invalid batch")
	// ErrConfiguration means no task can run with the job's provider setup.
	ErrConfiguration = errors.New("invalid provider configuration")
)
