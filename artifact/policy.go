package artifact

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/llmflow/core"
)

// Staleness describes one cache decision.
type Staleness struct {
	Name      string
	Policy    core.OverwritePolicy
	InputHash string
	Timestamp int64 // freshness timestamp of the inputs; 0 when unknown
}

// Decision is the outcome of CheckStaleness. Existing is the metadata of the
// stored artifact (nil when none exists) and carries the version lineage a
// recompute must continue from.
type Decision struct {
	Stale    bool
	Existing *core.ArtifactMetadata
}

// CheckStaleness decides whether the artifact named in s must be recomputed.
// A missing artifact is always stale. Policy "fail" returns a
// *core.StrictOverwriteError when an artifact already exists.
func CheckStaleness(ctx context.Context, store core.ArtifactStore, s Staleness) (Decision, error) {
	existing, err := store.LatestMetadata(ctx, s.Name)
	if errors.Is(err, core.ErrNotFound) {
		return Decision{Stale: true}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("staleness check for %s: %w", s.Name, err)
	}

	d := Decision{Existing: existing}
	switch s.Policy {
	case core.OverwriteForce:
		d.Stale = true
	case core.OverwriteSkip:
	case core.OverwriteFail, "":
		return d, &core.StrictOverwriteError{Name: s.Name}
	case core.OverwriteTimestamp:
		d.Stale = s.Timestamp > 0 && s.Timestamp > existing.Timestamp
	case core.OverwriteExact:
		d.Stale = existing.InputHash != s.InputHash
	default:
		return Decision{}, fmt.Errorf("unknown overwrite policy %q", s.Policy)
	}
	return d, nil
}
