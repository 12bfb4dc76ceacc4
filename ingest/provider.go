package ingest

import (
	"context"
	"fmt"
	"log"

	"github.com/TFMV/echoes/client"
	"github.com/TFMV/echoes/models"
)

// Provider loads a concept and its timeline
type Provider interface {
	Load(ctx context.Context, concept string) (*models.Concept, error)
}

// BackendProvider fetches concepts from the backend, falling back to the
// bundled offline datasets when the backend cannot serve them
type BackendProvider struct {
	client   *client.Client
	topN     int
	fallback bool
}

// NewBackendProvider creates a provider over c. With fallback set, backend
// failures are logged and answered from the offline datasets.
func NewBackendProvider(c *client.Client, topN int, fallback bool) *BackendProvider {
	if topN <= 0 {
		topN = 10
	}
	return &BackendProvider{client: c, topN: topN, fallback: fallback}
}

// Load fetches the timeline and, optionally, the symbol pairs for concept
func (p *BackendProvider) Load(ctx context.Context, concept string) (*models.Concept, error) {
	if concept == "" {
		return nil, fmt.Errorf("concept must not be empty")
	}

	tl, err := p.client.Timeline(ctx, concept, p.topN)
	if err == nil {
		// Symbol pairs are optional
		symbols, serr := p.client.SymbolPairs(ctx, concept)
		if serr != nil {
			symbols = nil
		}
		var c *models.Concept
		if c, err = TransformTimeline(concept, tl, symbols); err == nil {
			return c, nil
		}
	}

	if !p.fallback {
		return nil, err
	}
	log.Printf("Backend unavailable - using offline mode for %q: %v", concept, err)
	return Offline(concept)
}

// OfflineProvider serves only the bundled datasets
type OfflineProvider struct{}

// Load returns the offline dataset for concept
func (OfflineProvider) Load(_ context.Context, concept string) (*models.Concept, error) {
	return Offline(concept)
}

// FileProvider serves a single dataset file regardless of the concept asked for
type FileProvider struct {
	Path string
}

// Load reads and processes the file
func (p FileProvider) Load(_ context.Context, _ string) (*models.Concept, error) {
	return ProcessFile(p.Path)
}
