package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// ============================================
// Standard Tracing Fields (Context level)
// These fields are propagated through the call chain
// ============================================

const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldJobID is the batch job ID
	FieldJobID = "job_id"

	// FieldPageNumber is the 1-based page number within a job
	FieldPageNumber = "page_number"

	// FieldStage is the pipeline stage: extract, classify, summarize, persist
	FieldStage = "stage"

	// FieldAttempt is the 1-based attempt number of an external call
	FieldAttempt = "attempt"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldSource is the uploaded document name
	FieldSource = "source"
)

// ============================================
// Standard Metric Fields (Entry level)
// These fields are used for aggregation and alerting
// ============================================

const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldSize is the data size in bytes
	FieldSize = "size"

	// FieldStatus is the operation status
	FieldStatus = "status"
)
