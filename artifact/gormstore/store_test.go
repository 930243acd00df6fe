package gormstore

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/hupe1980/llmflow/artifact/storetest"
	"github.com/hupe1980/llmflow/core"
)

var _ core.ArtifactStore = (*Store)(nil)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every pooled connection would otherwise see its own in-memory database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestStore_Contract(t *testing.T) {
	s, err := New(setupTestDB(t))
	require.NoError(t, err)
	storetest.RunContract(t, s)
}

func TestStore_ListEscapesWildcards(t *testing.T) {
	ctx := context.Background()
	s, err := New(setupTestDB(t))
	require.NoError(t, err)

	for _, n := range []string{"a_b/1.txt", "axb/1.txt"} {
		_, err := s.Save(ctx, core.NewArtifact(n, []byte("x"), core.ContentText))
		require.NoError(t, err)
	}
	names, err := s.List(ctx, "a_b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a_b/1.txt"}, names)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open("oracle", "")
	assert.Error(t, err)
}
