package mithermometer

import "context"

// slot is a mutex whose acquisition can be abandoned with a context.
type slot chan struct{}

func newSlot() slot { return make(slot, 1) }

// acquire blocks until the slot is free or ctx is done.
func (s slot) acquire(ctx context.Context) error {
	select {
	case s <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s slot) release() { <-s }
