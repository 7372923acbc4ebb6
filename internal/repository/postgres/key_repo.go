package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/adscale-labs/convgate/internal/errs"
	"github.com/adscale-labs/convgate/internal/model"
)

// KeyRepo implements KeyRepository using PostgreSQL.
type KeyRepo struct{ db *DB }

// NewKeyRepo constructs a key repository.
func NewKeyRepo(db *DB) *KeyRepo { return &KeyRepo{db: db} }

// Create inserts a freshly generated key pair.
func (r *KeyRepo) Create(ctx context.Context, k *model.KeyPair) error {
	const q = `
INSERT INTO keys (kid, public_pem, private_pem, created_at)
VALUES ($1, $2, $3, $4)`
	_, err := r.db.Pool.Exec(ctx, q, k.KID, k.PublicPEM, k.PrivatePEM, k.CreatedAt)
	return err
}

// Get loads a key pair by its identifier.
func (r *KeyRepo) Get(ctx context.Context, kid uuid.UUID) (*model.KeyPair, error) {
	const q = `
SELECT kid, public_pem, private_pem, created_at
FROM keys WHERE kid=$1`
	row := r.db.Pool.QueryRow(ctx, q, kid)
	var k model.KeyPair
	if err := row.Scan(&k.KID, &k.PublicPEM, &k.PrivatePEM, &k.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &k, nil
}

// Delete removes a key pair (rotation rollback).
func (r *KeyRepo) Delete(ctx context.Context, kid uuid.UUID) error {
	const q = `DELETE FROM keys WHERE kid=$1`
	tag, err := r.db.Pool.Exec(ctx, q, kid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// PruneOldest deletes all but the keep most recently created pairs.
func (r *KeyRepo) PruneOldest(ctx context.Context, keep int) (int64, error) {
	const q = `
DELETE FROM keys
WHERE kid NOT IN (
    SELECT kid FROM keys ORDER BY created_at DESC LIMIT $1
)`
	tag, err := r.db.Pool.Exec(ctx, q, keep)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
