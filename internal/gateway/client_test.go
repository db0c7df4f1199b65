package gateway

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikiyas-z/bingo-wallet/internal/domain"
)

func testKeyPEM(t *testing.T) (string, *ecdsa.PublicKey) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	der, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
	return string(pemBytes), &key.PublicKey
}

func newTestClient(t *testing.T, baseURL, keyPEM string) *Client {
	t.Helper()
	c, err := NewClient(baseURL, "merchant-1", keyPEM, "https://example.test/callback", 2*time.Second, nil)
	require.NoError(t, err)
	return c
}

func TestInitiatePayout_SignsRequest(t *testing.T) {
	keyPEM, pubKey := testKeyPEM(t)

	var received payoutPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/payout-transfer", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ackResponse{Status: "PENDING", TxnID: "stp-900"})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, keyPEM)

	ack, err := client.InitiatePayout(context.Background(), PayoutRequest{
		TransactionID: "123456789",
		Amount:        5000,
		Kind:          "withdrawal",
		PayeePhone:    "+251911223344",
		Method:        "Telebirr",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, ack.Status)
	assert.Equal(t, "stp-900", ack.ExternalRef)

	assert.Equal(t, "123456789", received.ID)
	assert.Equal(t, 50.0, received.Amount)
	assert.Equal(t, "merchant-1", received.MerchantID)
	assert.Equal(t, "+251911223344", received.ReceiverPhone)
	assert.Equal(t, "https://example.test/callback", received.NotifyURL)

	// The signed token must verify against the merchant key and carry the
	// amount in ETB.
	parsed, err := jwt.Parse(received.SignedToken, func(tok *jwt.Token) (any, error) {
		return pubKey, nil
	}, jwt.WithValidMethods([]string{"ES256"}))
	require.NoError(t, err)

	claims, ok := parsed.Claims.(jwt.MapClaims)
	require.True(t, ok)
	assert.Equal(t, 50.0, claims["amount"])
	assert.Equal(t, "merchant-1", claims["merchantId"])
}

func TestCheckStatus_MapsResponse(t *testing.T) {
	keyPEM, _ := testKeyPEM(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/fetch-transaction-status", r.URL.Path)
		json.NewEncoder(w).Encode(statusResponse{Status: "FAILED", TxnID: "stp-1", Reason: "insufficient float"})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, keyPEM)

	res, err := client.CheckStatus(context.Background(), "123456789")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, "insufficient float", res.Reason)
}

func TestPost_GatewayUnavailable(t *testing.T) {
	keyPEM, _ := testKeyPEM(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, keyPEM)

	_, err := client.InitiateCharge(context.Background(), ChargeRequest{
		TransactionID: "1",
		Amount:        1000,
		Memo:          "deposit",
		PayerPhone:    "+251911000000",
		Method:        "Telebirr",
	})
	require.ErrorIs(t, err, domain.ErrGatewayUnavailable)
}

func TestPost_TransportErrorIsUnavailable(t *testing.T) {
	keyPEM, _ := testKeyPEM(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	client := newTestClient(t, srv.URL, keyPEM)

	_, err := client.CheckStatus(context.Background(), "1")
	require.ErrorIs(t, err, domain.ErrGatewayUnavailable)
}

func TestNewClient_BadKey(t *testing.T) {
	_, err := NewClient("http://x", "m", "not-a-key", "http://cb", time.Second, nil)
	require.Error(t, err)
}
