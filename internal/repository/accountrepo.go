package repository

import (
	"context"

	"github.com/adscale-labs/convgate/internal/model"
)

// AccountRepository reads operator-configured upload destinations.
// The core never writes accounts; operator tooling owns them.
type AccountRepository interface {
	// List returns all configured destination accounts.
	List(ctx context.Context) ([]model.Account, error)
}

// CredentialRepository stores OAuth state per destination account.
type CredentialRepository interface {
	// Get loads the credential for an account.
	Get(ctx context.Context, accountID int64) (*model.Credential, error)
	// SaveTokens updates access/refresh tokens after exchange or refresh.
	SaveTokens(ctx context.Context, accountID int64, access, refresh string) error
}

// SessionRepository is the durable side of the merchant identity store
// that the 5-minute identity cache refreshes from.
type SessionRepository interface {
	// FindCurrent returns the current merchant session.
	FindCurrent(ctx context.Context) (*model.Session, error)
}
