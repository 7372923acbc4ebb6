// Package orders talks to the merchant platform's order-lookup API.
package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/adscale-labs/convgate/internal/errs"
	"github.com/adscale-labs/convgate/internal/model"
)

// Order is the slice of the upstream order the pipeline cares about.
type Order struct {
	ID        int64
	CreatedAt time.Time
}

// Client fetches an order by numeric id. Implementations return
// errs.ErrNotFound when the order does not exist.
type Client interface {
	Get(ctx context.Context, session model.Session, id int64) (Order, error)
}

// Freshness is the maximum age an order may have at verification time;
// anything older (or unknown) is treated as stale or forged.
const Freshness = 2 * time.Minute

// lookupBackoff is the single wait before the one not-found retry that
// absorbs upstream eventual consistency.
const lookupBackoff = 500 * time.Millisecond

// VerifyFresh confirms the order exists and was created within Freshness of
// now. A missing order gets exactly one retry after lookupBackoff.
func VerifyFresh(ctx context.Context, c Client, session model.Session, id int64, now time.Time) error {
	b := retry.WithMaxRetries(1, retry.NewConstant(lookupBackoff))
	var ord Order
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		var err error
		ord, err = c.Get(ctx, session, id)
		if errors.Is(err, errs.ErrNotFound) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return err
	}
	if now.Sub(ord.CreatedAt) > Freshness {
		return errs.ErrStaleOrder
	}
	return nil
}

// HTTPClient implements Client against the shop admin REST API.
type HTTPClient struct {
	Client *http.Client
}

// NewHTTPClient constructs an order API client.
func NewHTTPClient(client *http.Client) *HTTPClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPClient{Client: client}
}

// Get fetches one order from the shop identified by the session.
func (h *HTTPClient) Get(ctx context.Context, session model.Session, id int64) (Order, error) {
	url := fmt.Sprintf("https://%s/admin/api/orders/%d.json", session.ShopDomain, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Order{}, err
	}
	req.Header.Set("X-Access-Token", session.AccessToken)

	resp, err := h.Client.Do(req)
	if err != nil {
		return Order{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return Order{}, errs.ErrNotFound
	default:
		return Order{}, fmt.Errorf("order api: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Order struct {
			ID        int64     `json:"id"`
			CreatedAt time.Time `json:"created_at"`
		} `json:"order"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Order{}, fmt.Errorf("order api: decode: %w", err)
	}
	return Order{ID: body.Order.ID, CreatedAt: body.Order.CreatedAt}, nil
}
