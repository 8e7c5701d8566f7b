package logger

import (
	"context"
	"sync"
)

type ctxKey struct{}

var (
	defaultMu     sync.RWMutex
	defaultLogger = New(nil)
)

// GetDefault returns the process-wide logger used when a context carries none.
func GetDefault() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetDefaultLogger replaces the process-wide logger. nil is ignored.
func SetDefaultLogger(l *Logger) {
	if l == nil {
		return
	}
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}

// WithContext attaches l to ctx.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger attached to ctx, or the default logger.
func FromContext(ctx context.Context) *Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
			return l
		}
	}
	return GetDefault()
}

// WithFields returns ctx carrying a logger with fields added.
func WithFields(ctx context.Context, fields Fields) context.Context {
	return FromContext(ctx).WithFields(fields).WithContext(ctx)
}

func withField(ctx context.Context, key string, value interface{}) context.Context {
	return FromContext(ctx).WithField(key, value).WithContext(ctx)
}

// SetRequestID tags later lines with the HTTP request ID.
func SetRequestID(ctx context.Context, id string) context.Context {
	return withField(ctx, FieldRequestID, id)
}

// SetJobID tags later lines with the job being processed.
func SetJobID(ctx context.Context, id string) context.Context {
	return withField(ctx, FieldJobID, id)
}

// SetPageNumber tags later lines with the page a worker owns.
func SetPageNumber(ctx context.Context, n int) context.Context {
	return withField(ctx, FieldPageNumber, n)
}

// SetStage tags later lines with the pipeline stage.
func SetStage(ctx context.Context, stage string) context.Context {
	return withField(ctx, FieldStage, stage)
}

// SetAttempt tags later lines with the attempt of an external call.
func SetAttempt(ctx context.Context, attempt int) context.Context {
	return withField(ctx, FieldAttempt, attempt)
}

func GetRequestID(ctx context.Context) string {
	return stringField(ctx, FieldRequestID)
}

func GetJobID(ctx context.Context) string {
	return stringField(ctx, FieldJobID)
}

func GetStage(ctx context.Context) string {
	return stringField(ctx, FieldStage)
}

func stringField(ctx context.Context, key string) string {
	s, _ := FromContext(ctx).Data[key].(string)
	return s
}
