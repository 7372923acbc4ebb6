// Package maintenance purges expired replay tokens and aged-out conversions.
package maintenance

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/adscale-labs/convgate/internal/repository"
)

// Retention windows. The ingest path never deletes; only this job does.
const (
	ReplayTokenRetention = 24 * time.Hour
	ConversionRetention  = 90 * 24 * time.Hour
)

// Purger runs the daily retention pass.
type Purger struct {
	conv repository.ConversionRepository
	log  *zap.Logger
	now  func() time.Time
}

// New constructs a Purger.
func New(conv repository.ConversionRepository, log *zap.Logger) *Purger {
	return &Purger{conv: conv, log: log, now: time.Now}
}

// Run deletes replay tokens and conversions past their retention windows.
func (p *Purger) Run(ctx context.Context) error {
	now := p.now()

	tokens, err := p.conv.PurgeReplayTokens(ctx, now.Add(-ReplayTokenRetention))
	if err != nil {
		return err
	}
	conversions, err := p.conv.PurgeConversions(ctx, now.Add(-ConversionRetention))
	if err != nil {
		return err
	}

	p.log.Info("maintenance pass",
		zap.Int64("replay_tokens_purged", tokens),
		zap.Int64("conversions_purged", conversions),
	)
	return nil
}
