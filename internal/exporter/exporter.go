// Package exporter turns accepted conversions into signed batch uploads to
// the ad network, one destination account at a time.
package exporter

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/adscale-labs/convgate/internal/adnetwork"
	"github.com/adscale-labs/convgate/internal/errs"
	"github.com/adscale-labs/convgate/internal/model"
	"github.com/adscale-labs/convgate/internal/repository"
)

// ConversionFreshness is the fixed window on conversion time: records older
// than this are presumed already attempted (or arrived too late) and are
// left alone until the retention purge takes them.
const ConversionFreshness = time.Hour

// TokenSource supplies a usable access token for an account.
type TokenSource interface {
	Token(ctx context.Context, account model.Account) (string, error)
}

// Exporter runs one batch pass per scheduler invocation.
type Exporter struct {
	accounts repository.AccountRepository
	conv     repository.ConversionRepository
	uploader adnetwork.Uploader
	tokens   TokenSource
	currency string
	log      *zap.Logger
	now      func() time.Time
}

// New constructs an Exporter. currency fills the search-network schema's
// currency column.
func New(
	accounts repository.AccountRepository,
	conv repository.ConversionRepository,
	uploader adnetwork.Uploader,
	tokens TokenSource,
	currency string,
	log *zap.Logger,
) *Exporter {
	return &Exporter{
		accounts: accounts,
		conv:     conv,
		uploader: uploader,
		tokens:   tokens,
		currency: currency,
		log:      log,
		now:      time.Now,
	}
}

// Run processes every configured destination account sequentially. A
// failure on one account is logged and must not block the rest; the failed
// account's records stay unprocessed and are retried next pass.
func (e *Exporter) Run(ctx context.Context) error {
	accounts, err := e.accounts.List(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}
	for _, acc := range accounts {
		if err := e.exportAccount(ctx, acc); err != nil {
			e.log.Error("account export failed",
				zap.Int64("account", acc.ID),
				zap.String("label", acc.Label),
				zap.Error(err),
			)
		}
	}
	return nil
}

// exportAccount selects, renders, uploads, and marks one account's batch.
// Whole-batch semantics: nothing is marked processed unless the API
// accepted every row.
func (e *Exporter) exportAccount(ctx context.Context, acc model.Account) error {
	now := e.now()
	w := repository.ExportWindow{
		ClickIDPrefix:   acc.Network.ClickIDPrefix(),
		VisitedAfter:    now.Add(-acc.Window),
		VisitedBefore:   now,
		ConvertedAfter:  now.Add(-ConversionFreshness),
		ConvertedBefore: now,
	}
	recs, err := e.conv.SelectExportable(ctx, w)
	if err != nil {
		return fmt.Errorf("select: %w", err)
	}
	if len(recs) == 0 {
		return nil
	}

	data, err := renderBatch(acc.Network, e.currency, recs)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}

	token, err := e.tokens.Token(ctx, acc)
	if err != nil {
		return fmt.Errorf("token: %w", err)
	}

	res, err := e.uploader.Upload(ctx, acc.DestAccountID, batchFilename(acc.Network, now), data, token)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	if len(res.RowErrors) > 0 {
		for _, re := range res.RowErrors {
			e.log.Warn("upload row error",
				zap.Int64("account", acc.ID),
				zap.Int("line", re.Line),
				zap.String("message", re.Message),
			)
		}
		return fmt.Errorf("%w: %d rows", errs.ErrRowErrors, len(res.RowErrors))
	}

	ids := make([]uuid.UUID, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	if err := e.conv.MarkProcessed(ctx, ids); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}

	e.log.Info("batch exported",
		zap.Int64("account", acc.ID),
		zap.String("network", string(acc.Network)),
		zap.Int("rows", len(recs)),
	)
	return nil
}
