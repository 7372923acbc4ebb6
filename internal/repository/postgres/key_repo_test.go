package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/adscale-labs/convgate/internal/errs"
	"github.com/adscale-labs/convgate/internal/model"
)

func TestKeyRepo_CreateGet(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewKeyRepo(db)

	k := &model.KeyPair{
		KID:        uuid.Must(uuid.NewV4()),
		PublicPEM:  []byte("pub"),
		PrivatePEM: []byte("priv"),
		CreatedAt:  time.Unix(1_690_000_000, 0),
	}

	mock.ExpectExec(`INSERT INTO keys`).
		WithArgs(k.KID, k.PublicPEM, k.PrivatePEM, k.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.Create(context.Background(), k))

	mock.ExpectQuery(`SELECT kid, public_pem, private_pem, created_at`).
		WithArgs(k.KID).
		WillReturnRows(pgxmock.NewRows([]string{"kid", "public_pem", "private_pem", "created_at"}).
			AddRow(k.KID, k.PublicPEM, k.PrivatePEM, k.CreatedAt))

	got, err := r.Get(context.Background(), k.KID)
	require.NoError(t, err)
	require.Equal(t, k.PrivatePEM, got.PrivatePEM)
}

func TestKeyRepo_Get_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewKeyRepo(db)

	kid := uuid.Must(uuid.NewV4())
	mock.ExpectQuery(`SELECT kid, public_pem, private_pem, created_at`).
		WithArgs(kid).
		WillReturnError(pgx.ErrNoRows)

	_, err := r.Get(context.Background(), kid)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestKeyRepo_Delete_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewKeyRepo(db)

	kid := uuid.Must(uuid.NewV4())
	mock.ExpectExec(`DELETE FROM keys WHERE kid=\$1`).
		WithArgs(kid).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.ErrorIs(t, r.Delete(context.Background(), kid), errs.ErrNotFound)
}

func TestKeyRepo_PruneOldest(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewKeyRepo(db)

	mock.ExpectExec(`DELETE FROM keys`).
		WithArgs(3).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	n, err := r.PruneOldest(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}
