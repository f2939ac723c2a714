package repository

import "errors"

// Sentinel kinds for storage errors. These allow errors.Is/As from callers.
var (
	ErrFunnelNotFound = errors.New("funnel not found")
	ErrStorage        = errors.New("storage failure")
)
