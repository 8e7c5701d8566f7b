package domain

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors shared by the pipeline, repositories and API.
var (
	ErrInvalidTransition  = errors.New("invalid page status transition")
	ErrJobNotFound        = errors.New("job not found")
	ErrJobNotTerminal     = errors.New("job has non-terminal pages")
	ErrJobAlreadyRunning  = errors.New("job is already running")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrNoSummary          = errors.New("summary not found")
)

// ErrorKind classifies external call failures for retry decisions.
type ErrorKind int

const (
	// KindTransient covers timeouts, rate limits and 5xx-class failures.
	KindTransient ErrorKind = iota
	// KindPermanent covers malformed input and unsupported content.
	KindPermanent
)

func (k ErrorKind) String() string {
	if k == KindPermanent {
		return "permanent"
	}
	return "transient"
}

// ExternalError is a failure returned by an external collaborator
// (extractor, classifier, summarizer).
type ExternalError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("%s %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *ExternalError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as a retryable external failure.
func NewTransientError(op string, err error) error {
	return &ExternalError{Kind: KindTransient, Op: op, Err: err}
}

// NewPermanentError wraps err as a failure certain to recur on retry.
func NewPermanentError(op string, err error) error {
	return &ExternalError{Kind: KindPermanent, Op: op, Err: err}
}

// IsPermanent reports whether err was classified as permanent.
func IsPermanent(err error) bool {
	var ext *ExternalError
	return errors.As(err, &ext) && ext.Kind == KindPermanent
}

// IsTransient reports whether err should be retried. Timeouts are transient
// and so is any error nobody classified; only permanent errors are excluded.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return !IsPermanent(err)
}

// RenderError fails a whole job before any page is processed.
type RenderError struct {
	Source string
	Err    error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("failed to render %s: %v", e.Source, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// PersistenceError is a failed write through the persistence gateway.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
