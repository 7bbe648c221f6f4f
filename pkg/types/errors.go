package types

import "errors"

// Domain errors shared by the synchronization engine
var (
	// ErrPathNotFound is returned when a path disappears between enumeration and stat.
	ErrPathNotFound = errors.New("path no longer exists")
	// ErrBulkWrite is returned when a batch could not be written to the backend.
	ErrBulkWrite = errors.New("bulk write failed")
	// ErrBackendUnavailable is returned when the backend could not be reached.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrRunCancelled is returned when a run was cancelled before it completed.
	ErrRunCancelled = errors.New("run cancelled")
	// ErrRunInProgress is returned when a run is requested while another one is active.
	ErrRunInProgress = errors.New("run already in progress")
	// ErrRootUnavailable is returned when a configured root cannot be read.
	ErrRootUnavailable = errors.New("root directory unavailable")
	// ErrInvalidConfig is returned for unusable configuration values.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrOutsideRoots is returned for single-path imports outside the configured roots.
	ErrOutsideRoots = errors.New("path is outside the configured directories")
	// ErrExcluded is returned for single-path imports that match an exclusion rule.
	ErrExcluded = errors.New("path is excluded")

	// Search validation errors
	ErrEmptyTerm    = errors.New("search term cannot be empty")
	ErrInvalidLimit = errors.New("limit must be between 1 and 1000")
)
