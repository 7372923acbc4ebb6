// Package keys owns the beacon encryption key lifecycle: generation,
// retention, rotation, and the client-config push that advertises the
// current public key.
package keys

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/adscale-labs/convgate/internal/clientconfig"
	"github.com/adscale-labs/convgate/internal/model"
	"github.com/adscale-labs/convgate/internal/repository"
)

// RetainedKeys is how many generations stay decryptable after a rotation.
const RetainedKeys = 3

const rsaBits = 2048

// Invalidator is notified after a successful rotation so cached private
// keys are dropped. Satisfied by cache.Slot.
type Invalidator interface {
	Invalidate()
}

// Rotator generates, persists, and retires key pairs.
type Rotator struct {
	repo      repository.KeyRepository
	publisher clientconfig.Publisher
	endpoint  string
	keyCache  Invalidator
	log       *zap.Logger
}

// NewRotator constructs a Rotator. endpoint is the ingestion URL advertised
// alongside the public key.
func NewRotator(repo repository.KeyRepository, pub clientconfig.Publisher, endpoint string, keyCache Invalidator, log *zap.Logger) *Rotator {
	return &Rotator{repo: repo, publisher: pub, endpoint: endpoint, keyCache: keyCache, log: log}
}

// Rotate creates a fresh key pair, prunes retired generations, and pushes
// the new public key into the client beacon configuration. If the push
// fails the new pair is rolled back so no key is stranded without a
// matching client config; the scheduler retries on its own cadence.
// Previously issued keys stay decryptable by kid until pruned, so rotation
// never invalidates messages already in flight.
func (r *Rotator) Rotate(ctx context.Context) error {
	priv, err := rsa.GenerateKey(rand.Reader, rsaBits)
	if err != nil {
		return fmt.Errorf("generate rsa: %w", err)
	}
	kid, err := uuid.NewV4()
	if err != nil {
		return err
	}

	pair := &model.KeyPair{
		KID:        kid,
		PublicPEM:  MarshalPublic(&priv.PublicKey),
		PrivatePEM: MarshalPrivate(priv),
		CreatedAt:  time.Now(),
	}
	if err := r.repo.Create(ctx, pair); err != nil {
		return fmt.Errorf("persist key: %w", err)
	}

	pruned, err := r.repo.PruneOldest(ctx, RetainedKeys)
	if err != nil {
		return fmt.Errorf("prune keys: %w", err)
	}

	cfg := clientconfig.BeaconConfig{
		Key:      PublicJWK(kid, &priv.PublicKey),
		Endpoint: r.endpoint,
	}
	if err := r.publisher.Publish(ctx, cfg); err != nil {
		if delErr := r.repo.Delete(ctx, kid); delErr != nil {
			r.log.Error("rollback of unpublished key failed",
				zap.String("kid", kid.String()), zap.Error(delErr))
		}
		return fmt.Errorf("publish client config: %w", err)
	}

	r.keyCache.Invalidate()
	r.log.Info("rotated beacon key",
		zap.String("kid", kid.String()),
		zap.Int64("pruned", pruned),
	)
	return nil
}

// PublicJWK renders the key-wrapping public key as a portable JWK.
func PublicJWK(kid uuid.UUID, pub *rsa.PublicKey) jose.JSONWebKey {
	return jose.JSONWebKey{
		KeyID:     kid.String(),
		Key:       pub,
		Use:       "enc",
		Algorithm: string(jose.RSA_OAEP_256),
	}
}

// MarshalPublic encodes a public key as PKIX PEM.
func MarshalPublic(pub *rsa.PublicKey) []byte {
	der, _ := x509.MarshalPKIXPublicKey(pub)
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
}

// MarshalPrivate encodes a private key as PKCS#8 PEM.
func MarshalPrivate(priv *rsa.PrivateKey) []byte {
	der, _ := x509.MarshalPKCS8PrivateKey(priv)
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}

// ParsePrivate decodes a PKCS#8 PEM private key.
func ParsePrivate(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no pem block")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("not an rsa key")
	}
	return priv, nil
}

// ParsePublic decodes a PKIX PEM public key.
func ParsePublic(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no pem block")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an rsa key")
	}
	return pub, nil
}
