package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/adscale-labs/convgate/internal/model"
)

// ExportWindow bounds the records an export pass may pick up.
type ExportWindow struct {
	ClickIDPrefix   string
	VisitedAfter    time.Time
	VisitedBefore   time.Time
	ConvertedAfter  time.Time
	ConvertedBefore time.Time
}

// ConversionRepository provides access to accepted conversions and the
// replay-token ledger backing duplicate detection.
type ConversionRepository interface {
	// ClaimDelivery atomically inserts the nonce as a replay token and
	// checks no conversion with the order id exists yet. It returns
	// errs.ErrDuplicate if either the nonce or the order id was already
	// seen. This transaction is the synchronization point making
	// acceptance at-most-once under concurrent delivery.
	ClaimDelivery(ctx context.Context, nonce, orderID string) error

	// Insert persists an accepted conversion with processed=false.
	// A unique violation on order id maps to errs.ErrDuplicate.
	Insert(ctx context.Context, c *model.Conversion) error

	// SelectExportable returns unprocessed conversions inside the window
	// whose click id carries the given network prefix.
	SelectExportable(ctx context.Context, w ExportWindow) ([]model.Conversion, error)

	// MarkProcessed flips processed=true for the given records in one
	// bulk update. Never called for a partially accepted batch.
	MarkProcessed(ctx context.Context, ids []uuid.UUID) error

	// PurgeReplayTokens deletes replay tokens received before the cutoff.
	PurgeReplayTokens(ctx context.Context, before time.Time) (int64, error)

	// PurgeConversions deletes conversions created before the cutoff.
	PurgeConversions(ctx context.Context, before time.Time) (int64, error)
}
