package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"
)

// filterBatchBytes is the serialized size above which items are split
// into batches that are filtered in parallel.
const filterBatchBytes = 5000

const filterSystem = "Output the _id field of selected items that fit the critera."

type indexedItem[T any] struct {
	ID   int `json:"_id"`
	Item T   `json:"item"`
}

// Filter asks the model which items fit the criteria given in the prompt
// of b and returns them in input order.
func Filter[T any](ctx context.Context, b Builder, items []T) ([]T, error) {
	if len(items) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("flow: serialize items: %w", err)
	}

	if len(items) > 1 && len(raw) > filterBatchBytes {
		splits := min((len(raw)+filterBatchBytes-1)/filterBatchBytes, len(items))
		per := (len(items) + splits - 1) / splits
		b.env.logger.Debug("flow.filter.split", "items", len(items), "batches", splits, "per_batch", per)

		var batches [][]T
		for start := 0; start < len(items); start += per {
			batches = append(batches, items[start:min(start+per, len(items))])
		}

		results := make([][]T, len(batches))
		g, gctx := errgroup.WithContext(ctx)
		for i, batch := range batches {
			g.Go(func() error {
				out, err := Filter(gctx, b, batch)
				if err != nil {
					return err
				}
				results[i] = out
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		var out []T
		for _, r := range results {
			out = append(out, r...)
		}
		return out, nil
	}

	indexed := make([]indexedItem[T], len(items))
	for i, it := range items {
		indexed[i] = indexedItem[T]{ID: i, Item: it}
	}
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"matching_items": map[string]any{
				"type":        "array",
				"description": "The _id of items that should be selected.",
				"items": map[string]any{
					"type":    "integer",
					"minimum": 0,
					"maximum": len(items) - 1,
				},
			},
		},
		"required": []string{"matching_items"},
	}

	var out struct {
		MatchingItems []int `json:"matching_items"`
	}
	// batches run concurrently, so each gets its own generated output name
	b.output = ""
	if _, err := b.AddObject(map[string]any{"indexed_items": indexed}, "").System(filterSystem).GenerateInto(ctx, schema, &out); err != nil {
		return nil, err
	}

	indices := slices.Compact(slices.Sorted(slices.Values(out.MatchingItems)))
	selected := make([]T, 0, len(indices))
	for _, i := range indices {
		selected = append(selected, items[i])
	}
	return selected, nil
}
