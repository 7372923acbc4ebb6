// Package beacon implements the client side of the conversion wire
// contract: payload assembly, proof-of-work stamping, JWE encryption, and
// best-effort delivery. In production this logic runs in the buyer's
// browser; this package is the reference implementation of the contract and
// backs the cmd/beacon integration tool.
package beacon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/gofrs/uuid/v5"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/adscale-labs/convgate/internal/clientconfig"
	"github.com/adscale-labs/convgate/internal/model"
	"github.com/adscale-labs/convgate/internal/pow"
)

// Delivery policy: 3 total attempts, fixed 500 ms backoff, then give up
// silently. The gateway's dedup makes blind redelivery safe.
const (
	maxAttempts = 3
	backoff     = 500 * time.Millisecond
)

// ContentType identifies a compact encrypted message body.
const ContentType = "application/jose"

// PowHeader carries the proof-of-work token.
const PowHeader = "X-Pow"

// Purchase is the page-side input to the beacon: what the shop knows about
// the completed order.
type Purchase struct {
	OrderID   string
	Amount    int64 // minor units
	VisitedAt string
	Completed time.Time
}

// Sender executes the beacon protocol against a configured gateway.
type Sender struct {
	cfg        clientconfig.BeaconConfig
	client     *http.Client
	difficulty int
	log        *zap.Logger
}

// NewSender constructs a Sender from a published beacon configuration.
func NewSender(cfg clientconfig.BeaconConfig, client *http.Client, log *zap.Logger) *Sender {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Sender{cfg: cfg, client: client, difficulty: pow.DefaultDifficulty, log: log}
}

// Send runs the full protocol for one purchase: click-id selection, payload
// assembly, proof-of-work, encryption, delivery. A missing click id is not
// an error; the beacon just stays silent. Delivery failures after all
// attempts are logged and swallowed (fire-and-survive semantics).
func (s *Sender) Send(ctx context.Context, cookies []*http.Cookie, p Purchase) error {
	clickID, ok := ExtractClickID(cookies)
	if !ok {
		return nil
	}

	nonce, err := uuid.NewV4()
	if err != nil {
		return err
	}
	payload := model.Payload{
		YCLID:          clickID,
		VisitedAt:      p.VisitedAt,
		ConversionedAt: float64(p.Completed.Unix()),
		Amount:         float64(p.Amount),
		OrderID:        p.OrderID,
		Nonce:          nonce.String(),
	}

	body, err := Encrypt(s.cfg.Key, payload)
	if err != nil {
		return fmt.Errorf("encrypt payload: %w", err)
	}

	salt, err := uuid.NewV4()
	if err != nil {
		return err
	}
	token := pow.Generate(time.Now(), salt.String(), s.difficulty)

	err = s.deliver(ctx, body, token)
	if err != nil {
		s.log.Warn("beacon delivery abandoned",
			zap.String("orderId", p.OrderID), zap.Error(err))
	}
	return nil
}

// Encrypt produces the compact encrypted message for a payload under the
// advertised public key. The kid travels in the protected header so the
// gateway can pick the matching private key across rotations.
func Encrypt(key jose.JSONWebKey, payload model.Payload) (string, error) {
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	enc, err := jose.NewEncrypter(
		jose.A256GCM,
		jose.Recipient{Algorithm: jose.RSA_OAEP_256, Key: key.Key, KeyID: key.KeyID},
		nil,
	)
	if err != nil {
		return "", err
	}
	obj, err := enc.Encrypt(plaintext)
	if err != nil {
		return "", err
	}
	return obj.CompactSerialize()
}

// deliver POSTs the encrypted body with bounded retry on transport failure.
func (s *Sender) deliver(ctx context.Context, body, powToken string) error {
	b := retry.WithMaxRetries(maxAttempts-1, retry.NewConstant(backoff))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint,
			bytes.NewReader([]byte(body)))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", ContentType)
		req.Header.Set(PowHeader, powToken)

		resp, err := s.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()
		switch {
		case resp.StatusCode == http.StatusOK:
			return nil
		case resp.StatusCode >= 500:
			// Server-side trouble: redeliver from scratch, the gateway's
			// dedup absorbs the duplicate.
			return retry.RetryableError(fmt.Errorf("gateway status %d", resp.StatusCode))
		default:
			// Rejections are final: the gateway never changes its mind
			// about the same bytes.
			return fmt.Errorf("gateway status %d", resp.StatusCode)
		}
	})
}
