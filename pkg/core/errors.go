package core

import (
	"errors"
	"fmt"
)

// Submission errors
var (
	ErrAdmissionRejected   = errors.New("fwjobs: executor queue full")
	ErrPoolClosed          = errors.New("fwjobs: executor is shut down")
	ErrMalformedSubmission = errors.New("fwjobs: artifact must contain exactly one top-level entry")
	ErrInvalidJobID        = errors.New("fwjobs: invalid job id")
	ErrInvalidFlags        = errors.New("fwjobs: invalid analysis flags")
)

// Execution and storage errors
var (
	ErrReportMissing      = errors.New("fwjobs: analysis report not generated")
	ErrJobNotFound        = errors.New("fwjobs: job not found")
	ErrResultNotFound     = errors.New("fwjobs: result not found")
	ErrJobAlreadyFinished = errors.New("fwjobs: job already finished")
)

// LaunchError indicates the external command could not be started.
type LaunchError struct {
	Command string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %q: %v", e.Command, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// ParseError indicates a report that could not be turned into a Result.
// Field is empty when the failure is not tied to a single field.
type ParseError struct {
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("parse report: %v", e.Err)
	}
	return fmt.Sprintf("parse report field %q: %v", e.Field, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
