package pipeline

import (
	"context"

	"github.com/timmy/pagepipe/internal/domain"
)

// Pipeline stage names used in logs and errors.
const (
	StageExtract   = "extract"
	StageClassify  = "classify"
	StageSummarize = "summarize"
	StagePersist   = "persist"
)

// Extractor turns one page input into raw text.
type Extractor interface {
	Extract(ctx context.Context, in domain.PageInput) (string, error)
}

// Classifier turns a page's raw text into a structured record.
type Classifier interface {
	Classify(ctx context.Context, text string) (domain.StructuredRecord, error)
}

// Summarizer writes a document-level narrative from merged page content.
type Summarizer interface {
	SummarizeDocument(ctx context.Context, merged string) (string, error)
}
