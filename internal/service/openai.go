package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/pagepipe/internal/config"
	"github.com/timmy/pagepipe/internal/domain"
	"github.com/timmy/pagepipe/internal/prompts"
	"github.com/timmy/pagepipe/internal/storage"
)

const (
	defaultExtractMaxTokens   = 4096
	defaultClassifyMaxTokens  = 4096
	defaultSummarizeMaxTokens = 1024
)

// OpenAIClient talks to an OpenAI-compatible chat completions endpoint.
// One client serves one pipeline stage; it implements Extractor, Classifier
// and Summarizer so any stage can be pointed at it.
type OpenAIClient struct {
	client      *resty.Client
	storage     storage.ObjectStorage
	name        string
	model       string
	endpoint    string
	temperature float64
	maxTokens   int
}

// NewOpenAIClient creates a client for one provider config. store is only
// needed by the extraction stage, which downloads page inputs.
func NewOpenAIClient(cfg *config.ProviderConfig, store storage.ObjectStorage) *OpenAIClient {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	return &OpenAIClient{
		client:      client,
		storage:     store,
		name:        cfg.Name,
		model:       cfg.Model,
		endpoint:    baseURL + "/chat/completions",
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

// GetModel returns the model name being used.
func (c *OpenAIClient) GetModel() string {
	return c.model
}

// OpenAI-compatible Chat Completion API request/response structures
type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	Temperature    float64               `json:"temperature"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string, or []any of content parts
}

type openAITextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type openAIImageContent struct {
	Type     string         `json:"type"`
	ImageURL openAIImageURL `json:"image_url"`
}

type openAIImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type openAIFileContent struct {
	Type string         `json:"type"`
	File openAIFileData `json:"file"`
}

type openAIFileData struct {
	Filename string `json:"filename"`
	FileData string `json:"file_data"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Extract transcribes one page image or single-page PDF.
func (c *OpenAIClient) Extract(ctx context.Context, in domain.PageInput) (string, error) {
	part, err := c.pagePart(ctx, in)
	if err != nil {
		return "", err
	}

	req := openAIRequest{
		Model: c.model,
		Messages: []openAIMessage{
			{Role: "system", Content: prompts.ExtractionSystemPrompt},
			{
				Role: "user",
				Content: []any{
					openAITextContent{Type: "text", Text: prompts.ExtractionUserPrompt},
					part,
				},
			},
		},
		MaxTokens:   c.tokens(defaultExtractMaxTokens),
		Temperature: c.temperature,
	}

	text, err := c.complete(ctx, "extract", req)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", domain.NewTransientError("extract", fmt.Errorf("empty transcription for page %d", in.PageNumber))
	}
	return text, nil
}

// Classify turns a page transcription into a structured record.
func (c *OpenAIClient) Classify(ctx context.Context, text string) (domain.StructuredRecord, error) {
	req := openAIRequest{
		Model: c.model,
		Messages: []openAIMessage{
			{Role: "system", Content: prompts.ClassificationSystemPrompt},
			{Role: "user", Content: fmt.Sprintf(prompts.ClassificationUserPrompt, text)},
		},
		MaxTokens:      c.tokens(defaultClassifyMaxTokens),
		Temperature:    c.temperature,
		ResponseFormat: &openAIResponseFormat{Type: "json_object"},
	}

	content, err := c.complete(ctx, "classify", req)
	if err != nil {
		return domain.StructuredRecord{}, err
	}
	return ParseRecord(content)
}

// SummarizeDocument writes the document narrative from merged page content.
func (c *OpenAIClient) SummarizeDocument(ctx context.Context, merged string) (string, error) {
	req := openAIRequest{
		Model: c.model,
		Messages: []openAIMessage{
			{Role: "system", Content: prompts.SummarySystemPrompt},
			{Role: "user", Content: fmt.Sprintf(prompts.SummaryUserPrompt, merged)},
		},
		MaxTokens:   c.tokens(defaultSummarizeMaxTokens),
		Temperature: c.temperature,
	}

	narrative, err := c.complete(ctx, "summarize", req)
	if err != nil {
		return "", err
	}
	narrative = strings.TrimSpace(narrative)
	if narrative == "" {
		return "", domain.NewTransientError("summarize", fmt.Errorf("empty summary"))
	}
	return narrative, nil
}

// pagePart downloads the page input and wraps it as a message content part.
func (c *OpenAIClient) pagePart(ctx context.Context, in domain.PageInput) (any, error) {
	if c.storage == nil {
		return nil, domain.NewPermanentError("extract", fmt.Errorf("no object storage configured for %s", c.name))
	}

	isImage := strings.HasPrefix(in.MIMEType, "image/")
	if !isImage && in.MIMEType != "application/pdf" {
		return nil, domain.NewPermanentError("extract", fmt.Errorf("unsupported page MIME type %q", in.MIMEType))
	}

	data, err := storage.ReadAll(ctx, c.storage, in.StorageKey)
	if err != nil {
		return nil, domain.NewTransientError("extract", fmt.Errorf("failed to load page %d: %w", in.PageNumber, err))
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", in.MIMEType, base64.StdEncoding.EncodeToString(data))

	if isImage {
		return openAIImageContent{
			Type:     "image_url",
			ImageURL: openAIImageURL{URL: dataURL, Detail: "high"},
		}, nil
	}
	return openAIFileContent{
		Type: "file",
		File: openAIFileData{Filename: path.Base(in.StorageKey), FileData: dataURL},
	}, nil
}

// complete sends one chat completion and classifies any failure.
func (c *OpenAIClient) complete(ctx context.Context, op string, req openAIRequest) (string, error) {
	var resp openAIResponse
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		SetError(&resp).
		Post(c.endpoint)

	if err != nil {
		return "", domain.NewTransientError(op, fmt.Errorf("failed to call %s API: %w", c.name, err))
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		errorMsg := fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), string(httpResp.Body()))
		if resp.Error != nil {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), resp.Error.Message)
		}
		return "", classifyHTTPStatus(op, httpResp.StatusCode(), fmt.Errorf("%s API returned error: %s", c.name, errorMsg))
	}

	if resp.Error != nil {
		return "", domain.NewTransientError(op, fmt.Errorf("%s API error: %s", c.name, resp.Error.Message))
	}

	if len(resp.Choices) == 0 {
		return "", domain.NewTransientError(op, fmt.Errorf("no choices in %s response (status: %d)", c.name, httpResp.StatusCode()))
	}

	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) tokens(fallback int) int {
	if c.maxTokens > 0 {
		return c.maxTokens
	}
	return fallback
}

// classifyHTTPStatus marks timeouts, rate limits and server errors as
// transient; any other client error will not improve on retry.
func classifyHTTPStatus(op string, code int, err error) error {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		return domain.NewTransientError(op, err)
	default:
		return domain.NewPermanentError(op, err)
	}
}
