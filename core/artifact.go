package core

import (
	"context"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ContentType describes how artifact content is encoded.
type ContentType string

const (
	ContentText     ContentType = "text"
	ContentJSON     ContentType = "json"
	ContentMarkdown ContentType = "markdown"
	ContentYAML     ContentType = "yaml"
	ContentBinary   ContentType = "binary"
)

// ArtifactMetadata describes a stored artifact version.
type ArtifactMetadata struct {
	UUID        string          `json:"uuid,omitempty"`
	Name        string          `json:"name"`
	ContentType ContentType     `json:"contentType"`
	Version     int             `json:"version"`
	Timestamp   int64           `json:"timestamp"`
	SizeBytes   int             `json:"sizeBytes"`
	SizeTokens  int             `json:"sizeTokens,omitempty"`
	InputHash   string          `json:"inputHash,omitempty"`
	ChatResult  json.RawMessage `json:"chatResult,omitempty"` // raw model response
}

// Artifact is a named, versioned unit of persisted output.
type Artifact struct {
	Metadata ArtifactMetadata
	Content  []byte
}

// NewArtifact builds an unsaved artifact (version 0).
func NewArtifact(name string, content []byte, contentType ContentType) Artifact {
	return Artifact{
		Metadata: ArtifactMetadata{Name: name, ContentType: contentType, SizeBytes: len(content)},
		Content:  content,
	}
}

// Text returns the content as a string.
func (a Artifact) Text() string { return string(a.Content) }

// Decode unmarshals json or yaml content into v.
func (a Artifact) Decode(v any) error {
	switch a.Metadata.ContentType {
	case ContentJSON:
		return json.Unmarshal(a.Content, v)
	case ContentYAML:
		return yaml.Unmarshal(a.Content, v)
	default:
		return fmt.Errorf("artifact %s: cannot decode content type %q", a.Metadata.Name, a.Metadata.ContentType)
	}
}

// Clone returns a deep copy.
func (a Artifact) Clone() Artifact {
	out := Artifact{Metadata: a.Metadata.Clone()}
	if a.Content != nil {
		out.Content = append([]byte(nil), a.Content...)
	}
	return out
}

// Clone returns a deep copy.
func (m ArtifactMetadata) Clone() ArtifactMetadata {
	if m.ChatResult != nil {
		m.ChatResult = append(json.RawMessage(nil), m.ChatResult...)
	}
	return m
}

// ArtifactStore persists artifacts keyed by name. Implementations must be
// safe for concurrent use and atomic per name.
//
// Save uses optimistic concurrency: Metadata.Version carries the version the
// caller observed (0 when it expects no artifact). When the stored version
// differs the store returns a *WriteConflictError. On success the store
// writes Version+1, assigns a timestamp that is strictly greater than the
// previous timestamp of that name and returns the stored metadata.
type ArtifactStore interface {
	LatestMetadata(ctx context.Context, name string) (*ArtifactMetadata, error)
	Latest(ctx context.Context, name string) (*Artifact, error)
	Save(ctx context.Context, a Artifact) (*ArtifactMetadata, error)
	Delete(ctx context.Context, name string) error
	List(ctx context.Context, prefix string) ([]string, error)
}
