// Package gateway implements the server-side ingestion endpoint: it
// verifies proof-of-work, decrypts the beacon message, enforces replay and
// idempotency guarantees, cross-checks the order upstream, and persists
// accepted conversions.
package gateway

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-jose/go-jose/v4"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/adscale-labs/convgate/internal/cache"
	"github.com/adscale-labs/convgate/internal/errs"
	"github.com/adscale-labs/convgate/internal/identity"
	"github.com/adscale-labs/convgate/internal/keys"
	"github.com/adscale-labs/convgate/internal/model"
	"github.com/adscale-labs/convgate/internal/orders"
	"github.com/adscale-labs/convgate/internal/pow"
	"github.com/adscale-labs/convgate/internal/repository"
)

// PowHeader carries the proof-of-work token.
const PowHeader = "X-Pow"

// Handler is the ingestion gateway. Stateless per request; all concurrency
// correctness rests on the claim transaction's unique constraints.
type Handler struct {
	keys       repository.KeyRepository
	conv       repository.ConversionRepository
	identity   *identity.Resolver
	orders     orders.Client
	keySlot    *cache.Slot[*rsa.PrivateKey]
	difficulty int
	log        *zap.Logger
	now        func() time.Time
}

// New constructs the gateway handler.
func New(
	keyRepo repository.KeyRepository,
	conv repository.ConversionRepository,
	ident *identity.Resolver,
	orderClient orders.Client,
	keySlot *cache.Slot[*rsa.PrivateKey],
	difficulty int,
	log *zap.Logger,
) *Handler {
	return &Handler{
		keys:       keyRepo,
		conv:       conv,
		identity:   ident,
		orders:     orderClient,
		keySlot:    keySlot,
		difficulty: difficulty,
		log:        log,
		now:        time.Now,
	}
}

// KeySlot exposes the private-key cache so rotation can invalidate it.
func (h *Handler) KeySlot() *cache.Slot[*rsa.PrivateKey] { return h.keySlot }

// Register wires the ingestion route. A single Any route keeps the method
// check inside the state machine where its error code lives.
func (h *Handler) Register(r gin.IRouter) {
	r.Any("/v1/conversion", h.Ingest)
}

func (h *Handler) reject(c *gin.Context, code int, why string) {
	h.log.Info("beacon rejected",
		zap.Int("error_code", code),
		zap.String("reason", why),
		zap.String("remote", c.ClientIP()),
	)
	c.JSON(http.StatusMethodNotAllowed, gin.H{"error": why, "error_code": code})
}

func (h *Handler) setCORS(c *gin.Context) {
	if origin := h.identity.AllowedOrigin(c.Request.Context()); origin != "" {
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Vary", "Origin")
	}
	c.Header("Access-Control-Allow-Methods", "POST, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Content-Type, "+PowHeader)
}

// Ingest runs the per-request state machine, terminal at the first failing
// check. Every rejection carries a distinct stable error code.
func (h *Handler) Ingest(c *gin.Context) {
	h.setCORS(c)

	// 1. Method gate. Preflight is answered without further checks.
	if c.Request.Method == http.MethodOptions {
		c.Status(http.StatusNoContent)
		return
	}
	if c.Request.Method != http.MethodPost {
		h.reject(c, CodeMethodNotAllowed, "method not allowed")
		return
	}

	// 2. Proof-of-work. The difficulty recount runs over the literal
	// decoded token bytes with the same counting rule the client used.
	if err := pow.Verify(c.GetHeader(PowHeader), h.now(), h.difficulty); err != nil {
		h.reject(c, CodeBadProofOfWork, err.Error())
		return
	}

	// 3-4. Body and message header.
	body, err := io.ReadAll(c.Request.Body)
	if err != nil || len(body) == 0 {
		h.reject(c, CodeEmptyBody, "empty body")
		return
	}
	msg, err := jose.ParseEncrypted(string(body),
		[]jose.KeyAlgorithm{jose.RSA_OAEP_256},
		[]jose.ContentEncryption{jose.A256GCM},
	)
	if err != nil || msg.Header.KeyID == "" {
		h.reject(c, CodeUnsupportedMessage, "unsupported message")
		return
	}

	// 5-6. Resolve identity and private key in parallel.
	var (
		session model.Session
		priv    *rsa.PrivateKey
	)
	g, gctx := errgroup.WithContext(c.Request.Context())
	g.Go(func() error {
		var err error
		session, err = h.identity.Current(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		priv, err = h.privateKey(gctx, msg.Header.KeyID)
		return err
	})
	if err := g.Wait(); err != nil {
		switch {
		case errors.Is(err, errs.ErrIdentityUnavailable):
			h.reject(c, CodeIdentityUnavailable, "identity unavailable")
		case errors.Is(err, errs.ErrKeyUnavailable):
			h.reject(c, CodeKeyUnavailable, "key unavailable")
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		}
		return
	}

	// 7-8. Decrypt and validate shape.
	plain, err := msg.Decrypt(priv)
	if err != nil {
		h.reject(c, CodeDecryptFailed, "decrypt failed")
		return
	}
	payload, err := parsePayload(plain)
	if err != nil {
		if errors.Is(err, errNotJSON) {
			h.reject(c, CodeDecryptFailed, "decrypt failed")
		} else {
			h.reject(c, CodeBadPayload, err.Error())
		}
		return
	}
	orderID, err := strconv.ParseInt(payload.OrderID, 10, 64)
	if err != nil {
		h.reject(c, CodeBadPayload, "orderId not numeric")
		return
	}

	// 9. The synchronization point: claim nonce and order id atomically.
	// Duplicates are an expected outcome of client retries, not an alarm.
	if err := h.conv.ClaimDelivery(c.Request.Context(), payload.Nonce, payload.OrderID); err != nil {
		if errors.Is(err, errs.ErrDuplicate) {
			h.reject(c, CodeDuplicate, "duplicate")
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}

	// 10-11. Cross-check the order upstream within the freshness bound.
	if err := orders.VerifyFresh(c.Request.Context(), h.orders, session, orderID, h.now()); err != nil {
		switch {
		case errors.Is(err, errs.ErrNotFound):
			h.reject(c, CodeOrderNotFound, "order not found")
		case errors.Is(err, errs.ErrStaleOrder):
			h.reject(c, CodeOrderStale, "order outside freshness window")
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		}
		return
	}

	// 12. Persist. Not retried here: a redelivered beacon restarts the
	// machine from scratch and the claim above absorbs the duplicate.
	id, err := uuid.NewV4()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	rec := &model.Conversion{
		ID:             id,
		OrderID:        payload.OrderID,
		ClickID:        payload.YCLID,
		Amount:         int64(payload.Amount),
		VisitedAt:      payload.VisitedAt,
		ConversionedAt: time.Unix(int64(payload.ConversionedAt), 0),
	}
	if err := h.conv.Insert(c.Request.Context(), rec); err != nil {
		if errors.Is(err, errs.ErrDuplicate) {
			h.reject(c, CodeDuplicate, "duplicate")
			return
		}
		h.reject(c, CodePersistFailed, "persist failed")
		return
	}

	h.log.Info("conversion accepted",
		zap.String("orderId", payload.OrderID),
		zap.String("clickId", payload.YCLID),
		zap.Int64("amount", rec.Amount),
	)
	c.JSON(http.StatusOK, gin.H{"result": "success"})
}

// privateKey resolves the key for a kid through the single-slot cache,
// falling back to storage on miss. A rotation racing this load can at worst
// serve a just-retired key for one request window, which is fine: retired
// keys stay valid for messages already in flight.
func (h *Handler) privateKey(ctx context.Context, kid string) (*rsa.PrivateKey, error) {
	if priv, ok := h.keySlot.Get(kid); ok {
		return priv, nil
	}
	id, err := uuid.FromString(kid)
	if err != nil {
		return nil, errs.ErrKeyUnavailable
	}
	gen := h.keySlot.Generation()
	pair, err := h.keys.Get(ctx, id)
	if err != nil {
		return nil, errs.ErrKeyUnavailable
	}
	priv, err := keys.ParsePrivate(pair.PrivatePEM)
	if err != nil {
		return nil, errs.ErrKeyUnavailable
	}
	h.keySlot.Put(gen, kid, priv)
	return priv, nil
}

var errNotJSON = errors.New("plaintext is not a json object")

// parsePayload validates presence and primitive type of every field before
// binding. A struct unmarshal alone would mask missing fields as zeroes.
func parsePayload(plain []byte) (model.Payload, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(plain, &raw); err != nil {
		return model.Payload{}, errNotJSON
	}

	var p model.Payload
	stringFields := map[string]*string{
		"yclid":     &p.YCLID,
		"visitedAt": &p.VisitedAt,
		"orderId":   &p.OrderID,
		"nonce":     &p.Nonce,
	}
	for field, dst := range stringFields {
		v, ok := raw[field]
		if !ok {
			return model.Payload{}, errors.New("missing field " + field)
		}
		if err := json.Unmarshal(v, dst); err != nil || *dst == "" {
			return model.Payload{}, errors.New("bad field " + field)
		}
	}
	numberFields := map[string]*float64{
		"conversionedAt": &p.ConversionedAt,
		"amount":         &p.Amount,
	}
	for field, dst := range numberFields {
		v, ok := raw[field]
		if !ok {
			return model.Payload{}, errors.New("missing field " + field)
		}
		if err := json.Unmarshal(v, dst); err != nil {
			return model.Payload{}, errors.New("bad field " + field)
		}
	}
	return p, nil
}
