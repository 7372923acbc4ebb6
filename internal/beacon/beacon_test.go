package beacon

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/adscale-labs/convgate/internal/clientconfig"
	"github.com/adscale-labs/convgate/internal/model"
	"github.com/adscale-labs/convgate/internal/pow"
)

func TestExtractClickID_PicksMostRecent(t *testing.T) {
	cookies := []*http.Cookie{
		{Name: "_uclid_s", Value: "YSS.1690000000.abc"},
		{Name: "_uclid_d", Value: "YDN.1690000500.def"},
		{Name: "session", Value: "unrelated"},
	}
	id, ok := ExtractClickID(cookies)
	require.True(t, ok)
	require.Equal(t, "YDN.1690000500.def", id, "newer embedded timestamp wins")
}

func TestExtractClickID_IgnoresMalformed(t *testing.T) {
	cookies := []*http.Cookie{
		{Name: "_uclid_s", Value: "garbage"},
		{Name: "_uclid_d", Value: "YDN.notatime.def"},
	}
	_, ok := ExtractClickID(cookies)
	require.False(t, ok)

	_, ok = ExtractClickID(nil)
	require.False(t, ok)
}

func testKey(t *testing.T) (*rsa.PrivateKey, jose.JSONWebKey) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pub := jose.JSONWebKey{
		KeyID:     "test-kid",
		Key:       &priv.PublicKey,
		Use:       "enc",
		Algorithm: string(jose.RSA_OAEP_256),
	}
	return priv, pub
}

func TestEncrypt_RoundTripWithKID(t *testing.T) {
	priv, pub := testKey(t)

	payload := model.Payload{
		YCLID:          "YSS.1690000000.abc",
		VisitedAt:      "2023-07-22 09:00:00",
		ConversionedAt: 1_690_000_500,
		Amount:         1000,
		OrderID:        "123",
		Nonce:          "n1",
	}
	compact, err := Encrypt(pub, payload)
	require.NoError(t, err)

	obj, err := jose.ParseEncrypted(compact,
		[]jose.KeyAlgorithm{jose.RSA_OAEP_256}, []jose.ContentEncryption{jose.A256GCM})
	require.NoError(t, err)
	require.Equal(t, "test-kid", obj.Header.KeyID)

	plain, err := obj.Decrypt(priv)
	require.NoError(t, err)

	var got model.Payload
	require.NoError(t, json.Unmarshal(plain, &got))
	require.Equal(t, payload, got)
}

func TestSender_Send_NoClickID_NoNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected without a click id")
	}))
	defer srv.Close()

	_, pub := testKey(t)
	s := NewSender(clientconfig.BeaconConfig{Key: pub, Endpoint: srv.URL}, srv.Client(), zap.NewNop())
	require.NoError(t, s.Send(context.Background(), nil, Purchase{OrderID: "1", Amount: 100}))
}

func TestSender_Send_DeliversEncryptedBody(t *testing.T) {
	priv, pub := testKey(t)

	var gotPow atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, ContentType, r.Header.Get("Content-Type"))
		gotPow.Store(r.Header.Get(PowHeader))

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		obj, err := jose.ParseEncrypted(string(raw),
			[]jose.KeyAlgorithm{jose.RSA_OAEP_256}, []jose.ContentEncryption{jose.A256GCM})
		require.NoError(t, err)
		plain, err := obj.Decrypt(priv)
		require.NoError(t, err)

		var p model.Payload
		require.NoError(t, json.Unmarshal(plain, &p))
		require.Equal(t, "42", p.OrderID)
		require.Equal(t, float64(1000), p.Amount)
		require.NotEmpty(t, p.Nonce)

		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"result":"success"}`)
	}))
	defer srv.Close()

	s := NewSender(clientconfig.BeaconConfig{Key: pub, Endpoint: srv.URL}, srv.Client(), zap.NewNop())
	cookies := []*http.Cookie{{Name: "_uclid_s", Value: "YSS.1690000000.abc"}}
	err := s.Send(context.Background(), cookies, Purchase{
		OrderID:   "42",
		Amount:    1000,
		VisitedAt: "2023-07-22 09:00:00",
		Completed: time.Now(),
	})
	require.NoError(t, err)

	// The stamp must verify server-side with the shared counting rule.
	require.NoError(t, pow.Verify(gotPow.Load().(string), time.Now(), pow.DefaultDifficulty))
}

func TestSender_Send_RetriesTransportThenGivesUp(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, pub := testKey(t)
	s := NewSender(clientconfig.BeaconConfig{Key: pub, Endpoint: srv.URL}, srv.Client(), zap.NewNop())
	cookies := []*http.Cookie{{Name: "_uclid_s", Value: "YSS.1690000000.abc"}}

	// Failures are swallowed; the page never sees them.
	err := s.Send(context.Background(), cookies, Purchase{OrderID: "42", Amount: 1, Completed: time.Now()})
	require.NoError(t, err)
	require.Equal(t, int32(3), hits.Load(), "3 total attempts")
}
