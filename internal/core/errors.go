// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors checked with errors.Is at component boundaries.
var (
	// Capture source errors
	ErrSourceUnavailable = errors.New("netscope: capture source unavailable")
	ErrQueueClosed       = errors.New("netscope: packet queue closed")

	// Session lifecycle errors
	ErrAlreadyCapturing = errors.New("netscope: capture session already active")
	ErrNotCapturing     = errors.New("netscope: no capture session active")

	// Store errors
	ErrStoreWrite = errors.New("netscope: store write failed")

	// Export errors
	ErrExportFailed  = errors.New("netscope: export failed")
	ErrUnknownFormat = errors.New("netscope: unknown export format")
)
