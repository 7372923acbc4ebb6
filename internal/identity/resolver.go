// Package identity resolves the current merchant session through a
// short-lived in-process cache in front of the durable session store.
package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/adscale-labs/convgate/internal/cache"
	"github.com/adscale-labs/convgate/internal/errs"
	"github.com/adscale-labs/convgate/internal/model"
	"github.com/adscale-labs/convgate/internal/repository"
)

// TTL for both the session and allowed-origin caches.
const TTL = 5 * time.Minute

// Resolver serves merchant identity and the CORS origin derived from it.
type Resolver struct {
	repo    repository.SessionRepository
	session *cache.TTLValue[model.Session]
	origin  *cache.TTLValue[string]
}

// NewResolver constructs a Resolver over the durable session store.
func NewResolver(repo repository.SessionRepository) *Resolver {
	return &Resolver{
		repo:    repo,
		session: cache.NewTTLValue[model.Session](TTL),
		origin:  cache.NewTTLValue[string](TTL),
	}
}

// Current returns the merchant session, cached for TTL.
func (r *Resolver) Current(ctx context.Context) (model.Session, error) {
	if s, ok := r.session.Get(); ok {
		return s, nil
	}
	s, err := r.repo.FindCurrent(ctx)
	if err != nil {
		return model.Session{}, fmt.Errorf("%w: %s", errs.ErrIdentityUnavailable, err)
	}
	r.session.Put(*s)
	return *s, nil
}

// AllowedOrigin returns the CORS origin computed from the merchant's
// primary domain, cached for TTL. Missing identity yields an empty origin;
// the gateway then sends no allow header.
func (r *Resolver) AllowedOrigin(ctx context.Context) string {
	if o, ok := r.origin.Get(); ok {
		return o
	}
	s, err := r.Current(ctx)
	if err != nil {
		return ""
	}
	o := "https://" + s.PrimaryDomain
	r.origin.Put(o)
	return o
}
