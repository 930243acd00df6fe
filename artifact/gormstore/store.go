// Package gormstore implements core.ArtifactStore on a relational database
// through GORM. SQLite (pure Go), PostgreSQL and MySQL are supported.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/hupe1980/llmflow/core"
)

// artifactRecord is the row layout of the artifacts table.
type artifactRecord struct {
	Name        string `gorm:"primaryKey;size:512"`
	UUID        string `gorm:"size:64"`
	ContentType string `gorm:"size:32"`
	Version     int    `gorm:"not null"`
	Timestamp   int64  `gorm:"not null"`
	SizeBytes   int
	SizeTokens  int
	InputHash   string `gorm:"size:128;index"`
	ChatResult  []byte
	Content     []byte
}

func (artifactRecord) TableName() string { return "artifacts" }

func (r artifactRecord) metadata() core.ArtifactMetadata {
	return core.ArtifactMetadata{
		UUID:        r.UUID,
		Name:        r.Name,
		ContentType: core.ContentType(r.ContentType),
		Version:     r.Version,
		Timestamp:   r.Timestamp,
		SizeBytes:   r.SizeBytes,
		SizeTokens:  r.SizeTokens,
		InputHash:   r.InputHash,
		ChatResult:  r.ChatResult,
	}
}

// Store implements core.ArtifactStore with GORM.
type Store struct {
	db    *gorm.DB
	clock *core.Clock
}

// Open connects to the database named by driver ("sqlite", "postgres" or
// "mysql") and migrates the artifacts table.
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite", "":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return New(db)
}

// New wraps an existing connection and migrates the artifacts table.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&artifactRecord{}); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}
	return &Store{db: db, clock: core.NewClock()}, nil
}

// LatestMetadata loads the row without its content column.
func (s *Store) LatestMetadata(ctx context.Context, name string) (*core.ArtifactMetadata, error) {
	var rec artifactRecord
	err := s.db.WithContext(ctx).Omit("content").Where("name = ?", name).Take(&rec).Error
	if err != nil {
		return nil, notFound(err)
	}
	md := rec.metadata()
	return &md, nil
}

// Latest loads the full row.
func (s *Store) Latest(ctx context.Context, name string) (*core.Artifact, error) {
	var rec artifactRecord
	if err := s.db.WithContext(ctx).Where("name = ?", name).Take(&rec).Error; err != nil {
		return nil, notFound(err)
	}
	return &core.Artifact{Metadata: rec.metadata(), Content: rec.Content}, nil
}

// Save inserts version 1 or updates the row guarded by the observed version.
func (s *Store) Save(ctx context.Context, a core.Artifact) (*core.ArtifactMetadata, error) {
	name := a.Metadata.Name
	expected := a.Metadata.Version

	var saved core.ArtifactMetadata
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var prevTimestamp int64
		if expected > 0 {
			var prev artifactRecord
			if err := tx.Select("version", "timestamp").Where("name = ?", name).Take(&prev).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return &core.WriteConflictError{Name: name, Expected: expected, Actual: 0}
				}
				return err
			}
			prevTimestamp = prev.Timestamp
		}

		rec := artifactRecord{
			Name:        name,
			UUID:        a.Metadata.UUID,
			ContentType: string(a.Metadata.ContentType),
			Version:     expected + 1,
			Timestamp:   s.clock.After(prevTimestamp),
			SizeBytes:   len(a.Content),
			SizeTokens:  a.Metadata.SizeTokens,
			InputHash:   a.Metadata.InputHash,
			ChatResult:  a.Metadata.ChatResult,
			Content:     a.Content,
		}

		var res *gorm.DB
		if expected == 0 {
			res = tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
		} else {
			res = tx.Model(&artifactRecord{}).
				Where("name = ? AND version = ?", name, expected).
				Updates(map[string]any{
					"uuid":         rec.UUID,
					"content_type": rec.ContentType,
					"version":      rec.Version,
					"timestamp":    rec.Timestamp,
					"size_bytes":   rec.SizeBytes,
					"size_tokens":  rec.SizeTokens,
					"input_hash":   rec.InputHash,
					"chat_result":  rec.ChatResult,
					"content":      rec.Content,
				})
		}
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			actual := 0
			var cur artifactRecord
			if err := tx.Select("version").Where("name = ?", name).Take(&cur).Error; err == nil {
				actual = cur.Version
			}
			return &core.WriteConflictError{Name: name, Expected: expected, Actual: actual}
		}
		saved = rec.metadata()
		return nil
	})
	if err != nil {
		var conflict *core.WriteConflictError
		if errors.As(err, &conflict) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to save artifact %s: %w", name, err)
	}
	return &saved, nil
}

// Delete removes the row.
func (s *Store) Delete(ctx context.Context, name string) error {
	res := s.db.WithContext(ctx).Where("name = ?", name).Delete(&artifactRecord{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete artifact %s: %w", name, res.Error)
	}
	if res.RowsAffected == 0 {
		return core.ErrNotFound
	}
	return nil
}

// List returns the names starting with prefix in lexical order.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	names := []string{}
	q := s.db.WithContext(ctx).Model(&artifactRecord{})
	if prefix != "" {
		q = q.Where("name LIKE ? ESCAPE '\\'", escapeLike(prefix)+"%")
	}
	if err := q.Order("name").Pluck("name", &names).Error; err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	return names, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.ErrNotFound
	}
	return err
}
