package artifact

import (
	"context"

	"github.com/hupe1980/llmflow/core"
)

// NullStore persists nothing: every lookup misses and saves are accepted
// without being retained. Runs against it always recompute.
type NullStore struct{}

// LatestMetadata always returns ErrNotFound.
func (NullStore) LatestMetadata(context.Context, string) (*core.ArtifactMetadata, error) {
	return nil, ErrNotFound
}

// Latest always returns ErrNotFound.
func (NullStore) Latest(context.Context, string) (*core.Artifact, error) {
	return nil, ErrNotFound
}

// Save returns the metadata the artifact would have had as a first version.
func (NullStore) Save(_ context.Context, a core.Artifact) (*core.ArtifactMetadata, error) {
	md := a.Metadata.Clone()
	md.Version = 1
	md.SizeBytes = len(a.Content)
	return &md, nil
}

// Delete is a no-op.
func (NullStore) Delete(context.Context, string) error { return nil }

// List always returns an empty slice.
func (NullStore) List(context.Context, string) ([]string, error) { return []string{}, nil }
