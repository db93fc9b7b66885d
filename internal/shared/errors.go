package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Authentication errors
	ErrAuthRequired     = fmt.Errorf("authentication required")
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrTokenExpired     = fmt.Errorf("access token expired")
	ErrInvalidTokenFile = fmt.Errorf("invalid token file")

	// Gateway, catalog and storage errors
	ErrGateway       = fmt.Errorf("gateway request failed")
	ErrPollTimeout   = fmt.Errorf("generation did not finish in time")
	ErrPartialUpload = fmt.Errorf("upload incomplete")
	ErrProbe         = fmt.Errorf("media probe failed")

	// Task lifecycle errors
	ErrInvalidState = fmt.Errorf("invalid session state")
	ErrTaskNotFound = fmt.Errorf("task not found")
	ErrNoResult     = fmt.Errorf("task has no playable result")
	ErrVideoMissing = fmt.Errorf("video not found")

	// Input validation errors
	ErrValidation      = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
