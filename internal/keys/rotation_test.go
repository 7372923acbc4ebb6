package keys

import (
	"context"
	"errors"
	"testing"

	"github.com/go-jose/go-jose/v4"
	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/adscale-labs/convgate/internal/clientconfig"
	"github.com/adscale-labs/convgate/internal/errs"
	"github.com/adscale-labs/convgate/internal/model"
)

type fakeKeyRepo struct {
	created []*model.KeyPair
	deleted []uuid.UUID
	pruned  int

	createErr error
	pruneErr  error
}

func (f *fakeKeyRepo) Create(_ context.Context, k *model.KeyPair) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, k)
	return nil
}

func (f *fakeKeyRepo) Get(_ context.Context, kid uuid.UUID) (*model.KeyPair, error) {
	for _, k := range f.created {
		if k.KID == kid {
			return k, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeKeyRepo) Delete(_ context.Context, kid uuid.UUID) error {
	f.deleted = append(f.deleted, kid)
	return nil
}

func (f *fakeKeyRepo) PruneOldest(_ context.Context, keep int) (int64, error) {
	if f.pruneErr != nil {
		return 0, f.pruneErr
	}
	f.pruned++
	var removed int64
	for len(f.created) > keep {
		f.created = f.created[1:] // creation order, oldest first
		removed++
	}
	return removed, nil
}

type fakePublisher struct {
	cfgs []clientconfig.BeaconConfig
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, cfg clientconfig.BeaconConfig) error {
	if f.err != nil {
		return f.err
	}
	f.cfgs = append(f.cfgs, cfg)
	return nil
}

type fakeInvalidator struct{ n int }

func (f *fakeInvalidator) Invalidate() { f.n++ }

func TestRotator_Rotate_PublishesNewKey(t *testing.T) {
	repo := &fakeKeyRepo{}
	pub := &fakePublisher{}
	inv := &fakeInvalidator{}
	r := NewRotator(repo, pub, "https://gw.example.com/v1/conversion", inv, zap.NewNop())

	require.NoError(t, r.Rotate(context.Background()))

	require.Len(t, repo.created, 1)
	require.Equal(t, 1, repo.pruned)
	require.Len(t, pub.cfgs, 1)
	require.Equal(t, repo.created[0].KID.String(), pub.cfgs[0].Key.KeyID)
	require.Equal(t, "enc", pub.cfgs[0].Key.Use)
	require.Equal(t, "RSA-OAEP-256", pub.cfgs[0].Key.Algorithm)
	require.Equal(t, "https://gw.example.com/v1/conversion", pub.cfgs[0].Endpoint)
	require.Equal(t, 1, inv.n, "private-key cache must be invalidated")

	// Persisted PEM must round-trip back to a usable private key.
	priv, err := ParsePrivate(repo.created[0].PrivatePEM)
	require.NoError(t, err)
	require.NoError(t, priv.Validate())
}

func TestRotator_Rotate_RetainsThreeGenerations(t *testing.T) {
	repo := &fakeKeyRepo{}
	pub := &fakePublisher{}
	inv := &fakeInvalidator{}
	r := NewRotator(repo, pub, "https://gw.example.com/v1/conversion", inv, zap.NewNop())

	for i := 0; i < 4; i++ {
		require.NoError(t, r.Rotate(context.Background()))
	}
	require.Len(t, repo.created, 3)

	// A message sealed for the second most recent key must still decrypt:
	// a page loaded before the last rotation keeps using the key it saw.
	prev := repo.created[1]
	priv, err := ParsePrivate(prev.PrivatePEM)
	require.NoError(t, err)

	enc, err := jose.NewEncrypter(jose.A256GCM,
		jose.Recipient{Algorithm: jose.RSA_OAEP_256, Key: &priv.PublicKey, KeyID: prev.KID.String()}, nil)
	require.NoError(t, err)
	obj, err := enc.Encrypt([]byte(`{"orderId":"1"}`))
	require.NoError(t, err)
	compact, err := obj.CompactSerialize()
	require.NoError(t, err)

	parsed, err := jose.ParseEncrypted(compact,
		[]jose.KeyAlgorithm{jose.RSA_OAEP_256}, []jose.ContentEncryption{jose.A256GCM})
	require.NoError(t, err)

	stored, err := repo.Get(context.Background(), prev.KID)
	require.NoError(t, err)
	storedPriv, err := ParsePrivate(stored.PrivatePEM)
	require.NoError(t, err)

	plain, err := parsed.Decrypt(storedPriv)
	require.NoError(t, err)
	require.JSONEq(t, `{"orderId":"1"}`, string(plain))
}

func TestRotator_Rotate_RollsBackOnPushFailure(t *testing.T) {
	repo := &fakeKeyRepo{}
	pub := &fakePublisher{err: errors.New("host down")}
	inv := &fakeInvalidator{}
	r := NewRotator(repo, pub, "https://gw.example.com/v1/conversion", inv, zap.NewNop())

	err := r.Rotate(context.Background())
	require.Error(t, err)

	// The stranded key is deleted and the cache untouched.
	require.Len(t, repo.created, 1)
	require.Len(t, repo.deleted, 1)
	require.Equal(t, repo.created[0].KID, repo.deleted[0])
	require.Zero(t, inv.n)
}
