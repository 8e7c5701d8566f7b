package service

import (
	"context"
	"fmt"
	"io"

	"github.com/timmy/pagepipe/internal/config"
	"github.com/timmy/pagepipe/internal/pipeline"
	"github.com/timmy/pagepipe/internal/storage"
)

// Collaborators bundles the model clients of the three pipeline stages.
type Collaborators struct {
	Extractor  pipeline.Extractor
	Classifier pipeline.Classifier
	Summarizer pipeline.Summarizer

	closers []io.Closer
}

// Close releases every client that holds a connection.
func (c *Collaborators) Close() error {
	var firstErr error
	for _, cl := range c.closers {
		if err := cl.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewCollaborators builds one client per stage from configuration.
func NewCollaborators(ctx context.Context, cfg *config.Config, store storage.ObjectStorage) (*Collaborators, error) {
	c := &Collaborators{}

	stages := []struct {
		pc  *config.ProviderConfig
		set func(client any)
	}{
		{&cfg.Extractor, func(client any) { c.Extractor = client.(pipeline.Extractor) }},
		{&cfg.Classifier, func(client any) { c.Classifier = client.(pipeline.Classifier) }},
		{&cfg.Summarizer, func(client any) { c.Summarizer = client.(pipeline.Summarizer) }},
	}

	for _, st := range stages {
		client, err := newProviderClient(ctx, cfg, st.pc, store)
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		if cl, ok := client.(io.Closer); ok {
			c.closers = append(c.closers, cl)
		}
		st.set(client)
	}

	return c, nil
}

// stageClient is satisfied by every provider implementation.
type stageClient interface {
	pipeline.Extractor
	pipeline.Classifier
	pipeline.Summarizer
}

func newProviderClient(ctx context.Context, cfg *config.Config, pc *config.ProviderConfig, store storage.ObjectStorage) (stageClient, error) {
	if err := pc.ValidateWithAPIKey(); err != nil {
		return nil, err
	}
	switch pc.Provider {
	case config.ProviderOpenAI:
		return NewOpenAIClient(pc, store), nil
	case config.ProviderVertex:
		return NewVertexClient(ctx, cfg.Vertex, pc, store)
	default:
		return nil, fmt.Errorf("provider %q: unknown provider %q", pc.Name, pc.Provider)
	}
}
