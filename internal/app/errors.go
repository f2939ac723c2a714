package app

import "errors"

// Sentinel kinds for service errors.
var (
	ErrTrackingDisabled = errors.New("tracking disabled for funnel")
	ErrNotStarted       = errors.New("service not started")
)
