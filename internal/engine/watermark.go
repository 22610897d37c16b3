package engine

import (
	"context"
	"fmt"
)

// WatermarkStore persists watermarks. *store.Store implements it.
type WatermarkStore interface {
	Watermark(ctx context.Context, repository int64) (int64, bool, error)
	SetWatermark(ctx context.Context, repository, latest int64) error
}

// Watermarks tracks the newest fully-processed event id per repository.
//
// Get reflects committed progress only. Set never lowers a stored
// watermark, so overlapping runs cannot move it backwards.
type Watermarks struct {
	store WatermarkStore
}

// NewWatermarks creates a tracker over the store.
func NewWatermarks(s WatermarkStore) *Watermarks {
	return &Watermarks{store: s}
}

// Get returns the watermark; ok is false for a never-scanned repository.
func (w *Watermarks) Get(ctx context.Context, repository int64) (latest int64, ok bool, err error) {
	latest, ok, err = w.store.Watermark(ctx, repository)
	if err != nil {
		return 0, false, fmt.Errorf("get watermark: %w", err)
	}
	return latest, ok, nil
}

// Set records the watermark.
func (w *Watermarks) Set(ctx context.Context, repository, latest int64) error {
	if err := w.store.SetWatermark(ctx, repository, latest); err != nil {
		return fmt.Errorf("set watermark: %w", err)
	}
	return nil
}
