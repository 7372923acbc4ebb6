package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/adscale-labs/convgate/internal/errs"
	"github.com/adscale-labs/convgate/internal/model"
)

// AccountRepo implements AccountRepository using PostgreSQL.
type AccountRepo struct{ db *DB }

// NewAccountRepo constructs an account repository.
func NewAccountRepo(db *DB) *AccountRepo { return &AccountRepo{db: db} }

// List returns all configured destination accounts.
func (r *AccountRepo) List(ctx context.Context) ([]model.Account, error) {
	const q = `
SELECT id, network, source_account_id, dest_account_id, window_seconds, label, always_refresh
FROM accounts ORDER BY id`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Account
	for rows.Next() {
		var (
			a       model.Account
			network string
			seconds int64
		)
		if err = rows.Scan(&a.ID, &network, &a.SourceAccountID, &a.DestAccountID,
			&seconds, &a.Label, &a.AlwaysRefresh); err != nil {
			return nil, err
		}
		a.Network = model.Network(network)
		a.Window = time.Duration(seconds) * time.Second
		out = append(out, a)
	}
	return out, rows.Err()
}

// CredentialRepo implements CredentialRepository using PostgreSQL.
type CredentialRepo struct{ db *DB }

// NewCredentialRepo constructs a credential repository.
func NewCredentialRepo(db *DB) *CredentialRepo { return &CredentialRepo{db: db} }

// Get loads the credential for an account.
func (r *CredentialRepo) Get(ctx context.Context, accountID int64) (*model.Credential, error) {
	const q = `
SELECT account_id, client_id, client_secret, redirect_uri, access_token, refresh_token, issued_at
FROM credentials WHERE account_id=$1`
	row := r.db.Pool.QueryRow(ctx, q, accountID)
	var c model.Credential
	if err := row.Scan(&c.AccountID, &c.ClientID, &c.ClientSecret, &c.RedirectURI,
		&c.AccessToken, &c.RefreshToken, &c.IssuedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// SaveTokens updates access/refresh tokens after exchange or refresh.
func (r *CredentialRepo) SaveTokens(ctx context.Context, accountID int64, access, refresh string) error {
	const q = `
UPDATE credentials
SET access_token=$2, refresh_token=$3, issued_at=now()
WHERE account_id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, accountID, access, refresh)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// SessionRepo implements SessionRepository using PostgreSQL.
type SessionRepo struct{ db *DB }

// NewSessionRepo constructs a session repository.
func NewSessionRepo(db *DB) *SessionRepo { return &SessionRepo{db: db} }

// FindCurrent returns the current merchant session.
func (r *SessionRepo) FindCurrent(ctx context.Context) (*model.Session, error) {
	const q = `SELECT shop_domain, access_token, primary_domain FROM sessions WHERE id`
	row := r.db.Pool.QueryRow(ctx, q)
	var s model.Session
	if err := row.Scan(&s.ShopDomain, &s.AccessToken, &s.PrimaryDomain); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}
