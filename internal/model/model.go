// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Network identifies the ad network surface a click came from.
type Network string

// Closed set of supported networks.
const (
	NetworkSearch  Network = "search"
	NetworkDisplay Network = "display"
)

// ClickIDPrefix returns the click-identifier prefix used by the network.
func (n Network) ClickIDPrefix() string {
	switch n {
	case NetworkSearch:
		return "YSS."
	case NetworkDisplay:
		return "YDN."
	}
	return ""
}

// KeyPair is one generation of the beacon encryption key. The private half
// never leaves the server; the public half is pushed into the client config.
type KeyPair struct {
	KID        uuid.UUID // key identifier, echoed by clients in the JWE header
	PublicPEM  []byte
	PrivatePEM []byte
	CreatedAt  time.Time
}

// Conversion is an accepted purchase-completion event staged for export.
// OrderID is the idempotency key: unique across all records, forever.
type Conversion struct {
	ID             uuid.UUID
	OrderID        string
	ClickID        string // carries the network prefix, e.g. "YSS.1690000000.abc"
	Amount         int64  // minor currency units
	VisitedAt      string // display string as sent by the client, uploaded verbatim
	ConversionedAt time.Time
	Processed      bool
	CreatedAt      time.Time
}

// ReplayToken records a beacon nonce so redelivery is detectable.
// Rows are insert-only on the ingest path; a maintenance job purges them.
type ReplayToken struct {
	Nonce      string
	ReceivedAt time.Time
}

// Account is an operator-configured upload destination. Read-only to the core.
type Account struct {
	ID              int64
	Network         Network
	SourceAccountID string // ad-network account the clicks belong to
	DestAccountID   string // sub-account receiving the offline conversions
	Window          time.Duration
	Label           string
	AlwaysRefresh   bool // refresh the access token before every upload
}

// Credential holds the OAuth client and token state for one account.
// Owned by the linking flow; the exporter only reads the access token.
type Credential struct {
	AccountID    int64
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AccessToken  string
	RefreshToken string
	IssuedAt     time.Time
}

// Session is the merchant identity needed for order lookups and CORS.
type Session struct {
	ShopDomain    string
	AccessToken   string
	PrimaryDomain string
}

// Payload is the decrypted beacon body. Field names are the wire contract.
type Payload struct {
	YCLID          string  `json:"yclid"`
	VisitedAt      string  `json:"visitedAt"`
	ConversionedAt float64 `json:"conversionedAt"` // unix seconds
	Amount         float64 `json:"amount"`         // minor units
	OrderID        string  `json:"orderId"`
	Nonce          string  `json:"nonce"`
}
