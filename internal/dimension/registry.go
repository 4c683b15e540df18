package dimension

import (
	"context"
	"fmt"
	"log"
	"strings"

	"golang.org/x/sync/singleflight"
)

// Store is the persistence surface the registry needs. InsertDimension must
// be insert-if-absent on the key: under a concurrent race exactly one insert
// wins and the others report inserted=false.
type Store interface {
	ListDimensions(ctx context.Context) ([]Dimension, error)
	InsertDimension(ctx context.Context, d Dimension) (inserted bool, err error)
}

// Registry maintains the dimension set. It is safe for concurrent use; all
// state lives in the store, the registry only collapses duplicate in-flight
// creations.
type Registry struct {
	store Store
	group singleflight.Group
}

// NewRegistry creates a registry backed by store.
func NewRegistry(store Store) *Registry {
	return &Registry{store: store}
}

// All returns every dimension in sort order.
func (r *Registry) All(ctx context.Context) ([]Dimension, error) {
	return r.store.ListDimensions(ctx)
}

// ShapeIndex returns the key→shape mapping used by merge validation.
func (r *Registry) ShapeIndex(ctx context.Context) (map[string]Shape, error) {
	dims, err := r.store.ListDimensions(ctx)
	if err != nil {
		return nil, err
	}
	index := make(map[string]Shape, len(dims))
	for _, d := range dims {
		index[d.Key] = d.Shape
	}
	return index, nil
}

// Ensure applies model-proposed dimensions idempotently. A proposal whose key
// already exists with the same shape is a no-op; a shape conflict is logged
// and dropped (the existing shape wins); a new key is created exactly once
// even when proposed concurrently. Ensure never fails the caller over a
// rejected proposal, only over store errors.
func (r *Registry) Ensure(ctx context.Context, proposals []Proposal) error {
	if len(proposals) == 0 {
		return nil
	}

	existing, err := r.store.ListDimensions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list dimensions: %w", err)
	}
	byKey := make(map[string]Dimension, len(existing))
	for _, d := range existing {
		byKey[d.Key] = d
	}
	nextOrder := len(existing)

	for _, p := range proposals {
		key := strings.TrimSpace(p.Key)
		if key == "" {
			continue
		}

		proposed := InferShape(p.Schema)
		if current, ok := byKey[key]; ok {
			if current.Shape != proposed {
				log.Printf("[dimension] %v", &ConflictError{Key: key, Existing: current.Shape, Proposed: proposed})
			}
			continue
		}

		dim := Dimension{
			Key:       key,
			Label:     p.Label,
			Schema:    p.Schema,
			Shape:     proposed,
			SortOrder: nextOrder,
		}
		if dim.Label == "" {
			dim.Label = key
		}

		// Collapse concurrent identical proposals in-process; the store's
		// insert-if-absent resolves cross-process races (first writer wins).
		_, err, _ := r.group.Do(key, func() (any, error) {
			inserted, err := r.store.InsertDimension(ctx, dim)
			if err != nil {
				return nil, err
			}
			if inserted {
				log.Printf("[dimension] new dimension added: %s (%s) shape=%s", dim.Key, dim.Label, dim.Shape)
			}
			return inserted, nil
		})
		if err != nil {
			return fmt.Errorf("failed to create dimension %s: %w", key, err)
		}

		byKey[key] = dim
		nextOrder++
	}
	return nil
}

// Seed installs the default dimensions iff the registry is empty.
func (r *Registry) Seed(ctx context.Context) error {
	existing, err := r.store.ListDimensions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list dimensions: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	for _, d := range Defaults() {
		if _, err := r.store.InsertDimension(ctx, d); err != nil {
			return fmt.Errorf("failed to seed dimension %s: %w", d.Key, err)
		}
	}
	return nil
}
