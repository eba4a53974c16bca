package domain

import "errors"

var (
	// ErrNotFound is returned when a violation or rule id is unknown.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when a review action is attempted
	// from a terminal status or to a non-adjacent status.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrScanInProgress is returned to a scan request while another scan
	// holds the run lock. Concurrent scans are rejected, not queued.
	ErrScanInProgress = errors.New("scan already in progress")
)
