package main

import "errors"

// Sentinel errors for CLI operations.
var (
	ErrUsage        = errors.New("invalid usage")
	ErrNoInput      = errors.New("no claim file given")
	ErrReadClaim    = errors.New("failed to read claim")
	ErrParseClaim   = errors.New("failed to parse claim")
	ErrWriteResult  = errors.New("failed to write result")
	ErrRenderFailed = errors.New("render failed")
	ErrCredentials  = errors.New("cloud credentials unavailable")
)
