package db

import "errors"

// Domain-level database error sentinels.
var (
	ErrJobNotFound  = errors.New("job not found")
	ErrDuplicateJob = errors.New("job already saved")
)
