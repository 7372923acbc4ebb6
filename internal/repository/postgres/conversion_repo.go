package postgres

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/adscale-labs/convgate/internal/errs"
	"github.com/adscale-labs/convgate/internal/model"
	"github.com/adscale-labs/convgate/internal/repository"
)

// ConversionRepo implements ConversionRepository using PostgreSQL.
type ConversionRepo struct{ db *DB }

// NewConversionRepo constructs a conversion repository.
func NewConversionRepo(db *DB) *ConversionRepo { return &ConversionRepo{db: db} }

// ClaimDelivery inserts the nonce and checks order-id uniqueness in one
// transaction. The replay_tokens primary key and the conversions order_id
// unique index carry the whole concurrency argument: of N concurrent
// deliveries with the same nonce or order id, exactly one claim commits.
func (r *ConversionRepo) ClaimDelivery(ctx context.Context, nonce, orderID string) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const ins = `INSERT INTO replay_tokens (nonce, received_at) VALUES ($1, now())`
	if _, err = tx.Exec(ctx, ins, nonce); err != nil {
		if isUniqueViolation(err) {
			err = errs.ErrDuplicate
		}
		return err
	}

	const sel = `SELECT EXISTS (SELECT 1 FROM conversions WHERE order_id=$1)`
	var exists bool
	if err = tx.QueryRow(ctx, sel, orderID).Scan(&exists); err != nil {
		return err
	}
	if exists {
		err = errs.ErrDuplicate
	}
	return err
}

// Insert persists an accepted conversion with processed=false.
func (r *ConversionRepo) Insert(ctx context.Context, c *model.Conversion) error {
	const q = `
INSERT INTO conversions (id, order_id, click_id, amount, visited_at, conversioned_at, processed)
VALUES ($1, $2, $3, $4, $5, $6, false)`
	_, err := r.db.Pool.Exec(ctx, q,
		c.ID, c.OrderID, c.ClickID, c.Amount, c.VisitedAt, c.ConversionedAt)
	if isUniqueViolation(err) {
		return errs.ErrDuplicate
	}
	return err
}

// SelectExportable returns unprocessed conversions inside the window whose
// click id carries the requested network prefix.
func (r *ConversionRepo) SelectExportable(ctx context.Context, w repository.ExportWindow) ([]model.Conversion, error) {
	const q = `
SELECT id, order_id, click_id, amount, visited_at, conversioned_at, processed, created_at
FROM conversions
WHERE processed = false
  AND click_id LIKE $1 || '%'
  AND conversioned_at >= $2 AND conversioned_at < $3
ORDER BY conversioned_at ASC`
	rows, err := r.db.Pool.Query(ctx, q, w.ClickIDPrefix, w.ConvertedAfter, w.ConvertedBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Conversion
	for rows.Next() {
		var c model.Conversion
		if err = rows.Scan(&c.ID, &c.OrderID, &c.ClickID, &c.Amount,
			&c.VisitedAt, &c.ConversionedAt, &c.Processed, &c.CreatedAt); err != nil {
			return nil, err
		}
		// The visit timestamp lives inside the click id (second dot
		// segment), so the visit window is applied here rather than in SQL.
		ts, ok := model.ClickVisitTime(c.ClickID)
		if !ok {
			continue
		}
		if ts.Before(w.VisitedAfter) || !ts.Before(w.VisitedBefore) {
			continue
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// MarkProcessed flips processed=true for the given ids in one bulk update.
func (r *ConversionRepo) MarkProcessed(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	const q = `UPDATE conversions SET processed=true WHERE id = ANY($1)`
	_, err := r.db.Pool.Exec(ctx, q, ids)
	return err
}

// PurgeReplayTokens deletes tokens received before the cutoff.
func (r *ConversionRepo) PurgeReplayTokens(ctx context.Context, before time.Time) (int64, error) {
	const q = `DELETE FROM replay_tokens WHERE received_at < $1`
	tag, err := r.db.Pool.Exec(ctx, q, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// PurgeConversions deletes conversions created before the cutoff.
func (r *ConversionRepo) PurgeConversions(ctx context.Context, before time.Time) (int64, error) {
	const q = `DELETE FROM conversions WHERE created_at < $1`
	tag, err := r.db.Pool.Exec(ctx, q, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
