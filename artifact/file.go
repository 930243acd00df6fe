package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/hupe1980/llmflow/core"
)

const (
	metadataSuffix = ".metadata"
	backupSuffix   = ".bak"
)

// FileStore persists artifacts below a root directory. The content of an
// artifact named "a/b.json" lives in <root>/a/b.json and its metadata in
// <root>/a/b.json.metadata. Overwritten and deleted content is kept as
// <file>.<timestamp base36>.bak next to the original.
//
// FileStore serializes writes within one process. Separate processes sharing
// a root are not coordinated.
type FileStore struct {
	root  string
	mu    *sync.Mutex
	clock *core.Clock
}

// NewFileStore creates root if needed and returns a store rooted there.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}
	return &FileStore{root: root, mu: &sync.Mutex{}, clock: core.NewClock()}, nil
}

// Root returns the directory backing the store.
func (s *FileStore) Root() string { return s.root }

// Sub returns a store rooted at dir below the current root. It shares the
// write lock and clock of its parent.
func (s *FileStore) Sub(dir string) (*FileStore, error) {
	if strings.HasPrefix(dir, ".") {
		return nil, fmt.Errorf("%w: sub directory %q", ErrInvalidPath, dir)
	}
	p, err := s.path(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(p, 0o755); err != nil {
		return nil, fmt.Errorf("create sub store: %w", err)
	}
	return &FileStore{root: p, mu: s.mu, clock: s.clock}, nil
}

func (s *FileStore) path(name string) (string, error) {
	if name == "" || strings.HasPrefix(name, "/") || filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}
	for _, seg := range strings.Split(filepath.ToSlash(name), "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, name)
		}
	}
	return filepath.Join(s.root, filepath.FromSlash(name)), nil
}

// LatestMetadata reads <name>.metadata. A content file without metadata is
// reported as version 0 text with its modification time as timestamp.
func (s *FileStore) LatestMetadata(_ context.Context, name string) (*core.ArtifactMetadata, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	return s.readMetadata(name, p)
}

func (s *FileStore) readMetadata(name, p string) (*core.ArtifactMetadata, error) {
	data, err := os.ReadFile(p + metadataSuffix)
	if err == nil {
		var md core.ArtifactMetadata
		if err := json.Unmarshal(data, &md); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", name, err)
		}
		md.Name = name
		return &md, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read metadata of %s: %w", name, err)
	}

	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", name, err)
	}
	if info.IsDir() {
		return nil, ErrNotFound
	}
	return &core.ArtifactMetadata{
		Name:        name,
		ContentType: core.ContentText,
		Timestamp:   info.ModTime().UnixMilli(),
		SizeBytes:   int(info.Size()),
	}, nil
}

// Latest returns metadata and content.
func (s *FileStore) Latest(ctx context.Context, name string) (*core.Artifact, error) {
	md, err := s.LatestMetadata(ctx, name)
	if err != nil {
		return nil, err
	}
	p, _ := s.path(name)
	content, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return &core.Artifact{Metadata: *md, Content: content}, nil
}

// Save writes content then metadata, backing up any previous content.
func (s *FileStore) Save(_ context.Context, a core.Artifact) (*core.ArtifactMetadata, error) {
	name := a.Metadata.Name
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var current core.ArtifactMetadata
	prev, err := s.readMetadata(name, p)
	switch {
	case err == nil:
		current = *prev
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}
	if current.Version != a.Metadata.Version {
		return nil, &core.WriteConflictError{Name: name, Expected: a.Metadata.Version, Actual: current.Version}
	}

	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, fmt.Errorf("create directory for %s: %w", name, err)
	}
	if prev != nil {
		if err := s.backup(p); err != nil {
			return nil, err
		}
	}

	md := a.Metadata.Clone()
	md.Name = name
	md.Version = current.Version + 1
	md.Timestamp = s.clock.After(current.Timestamp)
	md.SizeBytes = len(a.Content)

	if err := os.WriteFile(p, a.Content, 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", name, err)
	}
	data, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode metadata of %s: %w", name, err)
	}
	if err := os.WriteFile(p+metadataSuffix, data, 0o644); err != nil {
		return nil, fmt.Errorf("write metadata of %s: %w", name, err)
	}
	return &md, nil
}

func (s *FileStore) backup(p string) error {
	if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	bak := p + "." + strconv.FormatInt(s.clock.Next(), 36) + backupSuffix
	if err := os.Rename(p, bak); err != nil {
		return fmt.Errorf("backup %s: %w", p, err)
	}
	return nil
}

// Delete backs up the content and removes the metadata file.
func (s *FileStore) Delete(_ context.Context, name string) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.readMetadata(name, p); err != nil {
		return err
	}
	if err := s.backup(p); err != nil {
		return err
	}
	if err := os.Remove(p + metadataSuffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove metadata of %s: %w", name, err)
	}
	return nil
}

// List walks the root for metadata files whose artifact name starts with prefix.
func (s *FileStore) List(ctx context.Context, prefix string) ([]string, error) {
	names := []string{}
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !strings.HasSuffix(p, metadataSuffix) {
			return nil
		}
		rel, err := filepath.Rel(s.root, strings.TrimSuffix(p, metadataSuffix))
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	sort.Strings(names)
	return names, nil
}
