package adnetwork

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/adscale-labs/convgate/internal/model"
	"github.com/adscale-labs/convgate/internal/repository"
)

// stateTTL bounds how long an OAuth authorize redirect stays valid.
const stateTTL = 5 * time.Minute

// TokenSource manages OAuth tokens for destination accounts. The exporter
// only calls Token; the authorize/callback pair serves the linking flow.
type TokenSource struct {
	creds       repository.CredentialRepository
	tokenURL    string
	authURL     string
	stateSecret []byte
	client      *http.Client
}

// NewTokenSource constructs a TokenSource against the network's OAuth endpoints.
func NewTokenSource(creds repository.CredentialRepository, authURL, tokenURL string, stateSecret []byte, client *http.Client) *TokenSource {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &TokenSource{
		creds:       creds,
		tokenURL:    tokenURL,
		authURL:     authURL,
		stateSecret: stateSecret,
		client:      client,
	}
}

// Token returns a usable access token for the account, refreshing first
// when the account is configured to always refresh.
func (s *TokenSource) Token(ctx context.Context, account model.Account) (string, error) {
	cred, err := s.creds.Get(ctx, account.ID)
	if err != nil {
		return "", fmt.Errorf("credential for account %d: %w", account.ID, err)
	}
	if account.AlwaysRefresh && cred.RefreshToken != "" {
		return s.refresh(ctx, cred)
	}
	return cred.AccessToken, nil
}

// AuthorizeURL builds the redirect that starts account linking. The state
// parameter is a short-lived signed token carrying the account id, so the
// callback can bind the code to the right account and reject forgeries.
func (s *TokenSource) AuthorizeURL(accountID int64, clientID, redirectURI string) (string, error) {
	state, err := s.signState(accountID)
	if err != nil {
		return "", err
	}
	q := url.Values{
		"response_type": {"code"},
		"client_id":     {clientID},
		"redirect_uri":  {redirectURI},
		"state":         {state},
	}
	return s.authURL + "?" + q.Encode(), nil
}

// Exchange turns an authorization code into tokens after validating state.
func (s *TokenSource) Exchange(ctx context.Context, state, code string) error {
	accountID, err := s.verifyState(state)
	if err != nil {
		return fmt.Errorf("oauth state: %w", err)
	}
	cred, err := s.creds.Get(ctx, accountID)
	if err != nil {
		return err
	}
	access, refresh, err := s.tokenRequest(ctx, cred, url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {cred.RedirectURI},
	})
	if err != nil {
		return err
	}
	return s.creds.SaveTokens(ctx, accountID, access, refresh)
}

func (s *TokenSource) refresh(ctx context.Context, cred *model.Credential) (string, error) {
	access, refresh, err := s.tokenRequest(ctx, cred, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {cred.RefreshToken},
	})
	if err != nil {
		return "", err
	}
	if refresh == "" {
		refresh = cred.RefreshToken
	}
	if err := s.creds.SaveTokens(ctx, cred.AccountID, access, refresh); err != nil {
		return "", err
	}
	return access, nil
}

func (s *TokenSource) tokenRequest(ctx context.Context, cred *model.Credential, form url.Values) (access, refresh string, err error) {
	form.Set("client_id", cred.ClientID)
	form.Set("client_secret", cred.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("token endpoint: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", "", fmt.Errorf("token endpoint: decode: %w", err)
	}
	return body.AccessToken, body.RefreshToken, nil
}

func (s *TokenSource) signState(accountID int64) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(accountID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.stateSecret)
}

func (s *TokenSource) verifyState(state string) (int64, error) {
	tok, err := jwt.ParseWithClaims(state, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return s.stateSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return 0, err
	}
	claims, ok := tok.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return 0, fmt.Errorf("unexpected claims type")
	}
	return strconv.ParseInt(claims.Subject, 10, 64)
}
