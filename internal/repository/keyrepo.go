// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/adscale-labs/convgate/internal/model"
)

// KeyRepository stores beacon encryption key pairs across rotations.
type KeyRepository interface {
	// Create inserts a freshly generated key pair.
	Create(ctx context.Context, k *model.KeyPair) error
	// Get loads a key pair by its identifier.
	Get(ctx context.Context, kid uuid.UUID) (*model.KeyPair, error)
	// Delete removes a key pair (rotation rollback).
	Delete(ctx context.Context, kid uuid.UUID) error
	// PruneOldest deletes all but the keep most recently created pairs
	// and returns how many were removed.
	PruneOldest(ctx context.Context, keep int) (int64, error)
}
