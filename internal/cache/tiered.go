package cache

import (
	"context"
	"errors"
	"fmt"
)

var _ Backend = (*Tiered)(nil)

// Tiered fronts a durable L2 with an in-process L1. An L2 hit is copied into
// L1 with its original StoredAt and TTL, so it expires at the same instant.
type Tiered struct {
	L1 Backend
	L2 Backend
}

// NewTiered returns a Tiered backend with a fresh Memory L1.
func NewTiered(l2 Backend) *Tiered {
	return &Tiered{L1: NewMemory(), L2: l2}
}

func (t *Tiered) Load(ctx context.Context, key string) (Entry, error) {
	if e, err := t.L1.Load(ctx, key); err == nil {
		return e, nil
	}

	e, err := t.L2.Load(ctx, key)
	if err != nil {
		return Entry{}, err
	}
	_ = t.L1.Save(ctx, e)
	return e, nil
}

func (t *Tiered) Save(ctx context.Context, e Entry) error {
	if err := t.L1.Save(ctx, e); err != nil {
		return fmt.Errorf("l1 save: %w", err)
	}
	if err := t.L2.Save(ctx, e); err != nil {
		return fmt.Errorf("l2 save: %w", err)
	}
	return nil
}

func (t *Tiered) Delete(ctx context.Context, key string) error {
	err1 := t.L1.Delete(ctx, key)
	err2 := t.L2.Delete(ctx, key)
	if err2 != nil && !errors.Is(err2, ErrNotFound) {
		return fmt.Errorf("l2 delete: %w", err2)
	}
	if err1 != nil && !errors.Is(err1, ErrNotFound) {
		return fmt.Errorf("l1 delete: %w", err1)
	}
	return nil
}

func (t *Tiered) Close() error {
	return errors.Join(t.L1.Close(), t.L2.Close())
}
