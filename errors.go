package toil

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("toil: no store configured")
	ErrStoreClosed = errors.New("toil: store closed")

	// Not found errors.
	ErrJobNotFound = errors.New("toil: job not found")

	// Conflict errors.
	ErrJobAlreadyExists = errors.New("toil: job already exists")
	ErrDuplicateTimer   = errors.New("toil: duplicate timer entry")

	// Validation errors.
	ErrInvalidArgument = errors.New("toil: invalid argument")
	ErrUnknownJobType  = errors.New("toil: unknown job type")

	// State errors.
	ErrInvalidState = errors.New("toil: invalid state transition")
)
