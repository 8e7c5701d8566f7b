package logger

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Entry collects per-line fields (stage, attempt, durations, counts). The
// logger is taken from the context when the line is emitted, so job and
// page fields set upstream are kept.
type Entry struct {
	fields Fields
}

// With starts an Entry with the given fields.
// Example: logger.With(logger.Fields{logger.FieldCount: n}).Info(ctx, "Pages uploaded")
func With(fields Fields) *Entry {
	return &Entry{fields: fields}
}

// ForStage starts an Entry tagged with a pipeline stage.
func ForStage(stage string) *Entry {
	return With(Fields{FieldStage: stage})
}

// With returns a copy of the Entry with fields added.
func (e *Entry) With(fields Fields) *Entry {
	merged := make(Fields, len(e.fields)+len(fields))
	for k, v := range e.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Entry{fields: merged}
}

// WithAttempt records the 1-based attempt number of an external call.
func (e *Entry) WithAttempt(attempt int) *Entry {
	return e.With(Fields{FieldAttempt: attempt})
}

// WithDuration records d in milliseconds.
func (e *Entry) WithDuration(d time.Duration) *Entry {
	return e.With(Fields{FieldDurationMs: d.Milliseconds()})
}

// WithStatus records a page, job or HTTP status.
func (e *Entry) WithStatus(status any) *Entry {
	return e.With(Fields{FieldStatus: status})
}

func (e *Entry) log(ctx context.Context, level logrus.Level, format string, args ...interface{}) {
	FromContext(ctx).Entry.WithFields(logrus.Fields(e.fields)).Logf(level, format, args...)
}

func (e *Entry) Debug(ctx context.Context, format string, args ...interface{}) {
	e.log(ctx, logrus.DebugLevel, format, args...)
}

func (e *Entry) Info(ctx context.Context, format string, args ...interface{}) {
	e.log(ctx, logrus.InfoLevel, format, args...)
}

func (e *Entry) Warn(ctx context.Context, format string, args ...interface{}) {
	e.log(ctx, logrus.WarnLevel, format, args...)
}

func (e *Entry) Error(ctx context.Context, format string, args ...interface{}) {
	e.log(ctx, logrus.ErrorLevel, format, args...)
}
