package artifact

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/hupe1980/llmflow/core"
)

func seeded(t *testing.T, hash string) (*InMemoryStore, *core.ArtifactMetadata) {
	t.Helper()
	s := NewInMemoryStore()
	a := core.NewArtifact("out.json", []byte(`{}`), core.ContentJSON)
	a.Metadata.InputHash = hash
	md, err := s.Save(context.Background(), a)
	require.NoError(t, err)
	return s, md
}

func TestCheckStaleness(t *testing.T) {
	ctx := context.Background()
	s, md := seeded(t, "h1")

	tests := []struct {
		name      string
		in        Staleness
		wantStale bool
		wantKind  core.ErrorKind
	}{
		{"missing is stale", Staleness{Name: "nope", Policy: core.OverwriteSkip}, true, core.KindUnknown},
		{"force", Staleness{Name: "out.json", Policy: core.OverwriteForce}, true, core.KindUnknown},
		{"skip", Staleness{Name: "out.json", Policy: core.OverwriteSkip, InputHash: "other"}, false, core.KindUnknown},
		{"exact same hash", Staleness{Name: "out.json", Policy: core.OverwriteExact, InputHash: "h1"}, false, core.KindUnknown},
		{"exact new hash", Staleness{Name: "out.json", Policy: core.OverwriteExact, InputHash: "h2"}, true, core.KindUnknown},
		{"timestamp newer", Staleness{Name: "out.json", Policy: core.OverwriteTimestamp, Timestamp: md.Timestamp + 1}, true, core.KindUnknown},
		{"timestamp older", Staleness{Name: "out.json", Policy: core.OverwriteTimestamp, Timestamp: md.Timestamp}, false, core.KindUnknown},
		{"timestamp unknown", Staleness{Name: "out.json", Policy: core.OverwriteTimestamp}, false, core.KindUnknown},
		{"fail", Staleness{Name: "out.json", Policy: core.OverwriteFail}, false, core.KindStrictOverwrite},
		{"empty policy is fail", Staleness{Name: "out.json"}, false, core.KindStrictOverwrite},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := CheckStaleness(ctx, s, tt.in)
			if tt.wantKind != core.KindUnknown {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, core.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStale, d.Stale)
		})
	}
}

func TestCheckStaleness_UnknownPolicy(t *testing.T) {
	s, _ := seeded(t, "h1")
	_, err := CheckStaleness(context.Background(), s, Staleness{Name: "out.json", Policy: "sometimes"})
	assert.Error(t, err)
}

func TestProperty_ExactPolicyFollowsHash(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		stored := rapid.StringMatching(`[a-f0-9]{1,8}`).Draw(rt, "stored")
		candidate := rapid.StringMatching(`[a-f0-9]{1,8}`).Draw(rt, "candidate")

		s := NewInMemoryStore()
		a := core.NewArtifact("p", nil, core.ContentText)
		a.Metadata.InputHash = stored
		if _, err := s.Save(context.Background(), a); err != nil {
			rt.Fatalf("save: %v", err)
		}
		d, err := CheckStaleness(context.Background(), s, Staleness{Name: "p", Policy: core.OverwriteExact, InputHash: candidate})
		if err != nil {
			rt.Fatalf("check: %v", err)
		}
		if d.Stale != (stored != candidate) {
			rt.Fatalf("stale=%v for stored=%q candidate=%q", d.Stale, stored, candidate)
		}
	})
}
