package artifact

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/hupe1980/llmflow/core"
)

// InMemoryStore is an in-process core.ArtifactStore useful for tests,
// examples and single-process workflows. It keeps the latest version of every
// artifact in a map guarded by an RWMutex. Artifacts are deep copied on save
// and retrieval to avoid accidental external mutation of internal buffers.
type InMemoryStore struct {
	mu        sync.RWMutex
	artifacts map[string]core.Artifact
	clock     *core.Clock
}

// NewInMemoryStore returns an empty in-memory artifact store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{artifacts: make(map[string]core.Artifact), clock: core.NewClock()}
}

// LatestMetadata returns a copy of the stored metadata or ErrNotFound.
func (s *InMemoryStore) LatestMetadata(_ context.Context, name string) (*core.ArtifactMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.artifacts[name]
	if !ok {
		return nil, ErrNotFound
	}
	md := a.Metadata.Clone()
	return &md, nil
}

// Latest returns a copy of the stored artifact or ErrNotFound.
func (s *InMemoryStore) Latest(_ context.Context, name string) (*core.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.artifacts[name]
	if !ok {
		return nil, ErrNotFound
	}
	cp := a.Clone()
	return &cp, nil
}

// Save stores a copy of a when a.Metadata.Version matches the stored version.
func (s *InMemoryStore) Save(_ context.Context, a core.Artifact) (*core.ArtifactMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current core.ArtifactMetadata
	if prev, ok := s.artifacts[a.Metadata.Name]; ok {
		current = prev.Metadata
	}
	if current.Version != a.Metadata.Version {
		return nil, &core.WriteConflictError{Name: a.Metadata.Name, Expected: a.Metadata.Version, Actual: current.Version}
	}

	cp := a.Clone()
	cp.Metadata.Version = current.Version + 1
	cp.Metadata.Timestamp = s.clock.After(current.Timestamp)
	cp.Metadata.SizeBytes = len(cp.Content)
	s.artifacts[cp.Metadata.Name] = cp

	md := cp.Metadata.Clone()
	return &md, nil
}

// Delete removes the artifact if present or returns ErrNotFound.
func (s *InMemoryStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.artifacts[name]; !ok {
		return ErrNotFound
	}
	delete(s.artifacts, name)
	return nil
}

// List returns the sorted names starting with prefix. The slice is a
// snapshot and safe for caller mutation.
func (s *InMemoryStore) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.artifacts))
	for name := range s.artifacts {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}
