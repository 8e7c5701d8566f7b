package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/timmy/pagepipe/internal/config"
	"github.com/timmy/pagepipe/internal/domain"
	"github.com/timmy/pagepipe/internal/prompts"
	"github.com/timmy/pagepipe/internal/storage"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// VertexClient calls a Gemini model on Vertex AI. Like OpenAIClient it serves
// one stage and implements all three collaborator interfaces.
type VertexClient struct {
	baseClient *genai.Client
	storage    storage.ObjectStorage
	name       string
	modelName  string
	cfg        *config.ProviderConfig
}

// NewVertexClient creates a Vertex AI client for one provider config.
func NewVertexClient(ctx context.Context, vcfg config.VertexConfig, cfg *config.ProviderConfig, store storage.ObjectStorage) (*VertexClient, error) {
	if vcfg.ProjectID == "" || vcfg.Location == "" {
		return nil, fmt.Errorf("vertex provider %q: project_id and location cannot be empty", cfg.Name)
	}

	baseClient, err := genai.NewClient(ctx, vcfg.ProjectID, vcfg.Location)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	return &VertexClient{
		baseClient: baseClient,
		storage:    store,
		name:       cfg.Name,
		modelName:  cfg.Model,
		cfg:        cfg,
	}, nil
}

// GetModel returns the model name being used.
func (c *VertexClient) GetModel() string {
	return c.modelName
}

// Close releases the underlying gRPC connection.
func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}

func (c *VertexClient) model(systemPrompt string, jsonOutput bool, maxTokens int) *genai.GenerativeModel {
	m := c.baseClient.GenerativeModel(c.modelName)
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:     genai.Ptr(float32(c.cfg.Temperature)),
		MaxOutputTokens: genai.Ptr(int32(maxTokens)),
	}
	if c.cfg.MaxTokens > 0 {
		m.GenerationConfig.MaxOutputTokens = genai.Ptr(int32(c.cfg.MaxTokens))
	}
	if jsonOutput {
		m.GenerationConfig.ResponseMIMEType = "application/json"
	}
	return m
}

// Extract transcribes one page image or single-page PDF.
func (c *VertexClient) Extract(ctx context.Context, in domain.PageInput) (string, error) {
	if c.storage == nil {
		return "", domain.NewPermanentError("extract", fmt.Errorf("no object storage configured for %s", c.name))
	}
	if !strings.HasPrefix(in.MIMEType, "image/") && in.MIMEType != "application/pdf" {
		return "", domain.NewPermanentError("extract", fmt.Errorf("unsupported page MIME type %q", in.MIMEType))
	}

	data, err := storage.ReadAll(ctx, c.storage, in.StorageKey)
	if err != nil {
		return "", domain.NewTransientError("extract", fmt.Errorf("failed to load page %d: %w", in.PageNumber, err))
	}

	m := c.model(prompts.ExtractionSystemPrompt, false, defaultExtractMaxTokens)
	text, err := c.generate(ctx, "extract", m,
		genai.Blob{MIMEType: in.MIMEType, Data: data},
		genai.Text(prompts.ExtractionUserPrompt),
	)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", domain.NewTransientError("extract", fmt.Errorf("empty transcription for page %d", in.PageNumber))
	}
	return text, nil
}

// Classify turns a page transcription into a structured record.
func (c *VertexClient) Classify(ctx context.Context, text string) (domain.StructuredRecord, error) {
	m := c.model(prompts.ClassificationSystemPrompt, true, defaultClassifyMaxTokens)
	content, err := c.generate(ctx, "classify", m, genai.Text(fmt.Sprintf(prompts.ClassificationUserPrompt, text)))
	if err != nil {
		return domain.StructuredRecord{}, err
	}
	return ParseRecord(content)
}

// SummarizeDocument writes the document narrative from merged page content.
func (c *VertexClient) SummarizeDocument(ctx context.Context, merged string) (string, error) {
	m := c.model(prompts.SummarySystemPrompt, false, defaultSummarizeMaxTokens)
	narrative, err := c.generate(ctx, "summarize", m, genai.Text(fmt.Sprintf(prompts.SummaryUserPrompt, merged)))
	if err != nil {
		return "", err
	}
	if narrative == "" {
		return "", domain.NewTransientError("summarize", fmt.Errorf("empty summary"))
	}
	return narrative, nil
}

func (c *VertexClient) generate(ctx context.Context, op string, m *genai.GenerativeModel, parts ...genai.Part) (string, error) {
	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return "", classifyGRPCError(op, fmt.Errorf("%s generate content: %w", c.name, err))
	}
	return responseText(resp), nil
}

// responseText joins the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(sb.String())
}

// classifyGRPCError maps gRPC status codes onto the retry taxonomy.
// Context errors stay transient so the stage timeout can be retried.
func classifyGRPCError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.NewTransientError(op, err)
	}
	st, ok := status.FromError(err)
	if !ok {
		return domain.NewTransientError(op, err)
	}
	switch st.Code() {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Internal, codes.Aborted:
		return domain.NewTransientError(op, err)
	default:
		return domain.NewPermanentError(op, err)
	}
}
