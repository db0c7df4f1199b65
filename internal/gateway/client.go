package gateway

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mikiyas-z/bingo-wallet/internal/domain"
	"github.com/mikiyas-z/bingo-wallet/internal/logging"
	"github.com/mikiyas-z/bingo-wallet/internal/metrics"
)

// Client talks to the SantimPay-style payment gateway. Every request carries
// a short-lived ES256-signed token over the merchant id and amount; the
// gateway verifies it against the merchant's registered public key.
type Client struct {
	baseURL     string
	merchantID  string
	callbackURL string
	signingKey  *ecdsa.PrivateKey
	httpClient  *http.Client
	metrics     *metrics.Metrics
}

func NewClient(baseURL, merchantID, privateKeyPEM, callbackURL string, timeout time.Duration, m *metrics.Metrics) (*Client, error) {
	key, err := jwt.ParseECPrivateKeyFromPEM([]byte(privateKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("gateway.NewClient: parse private key: %w", err)
	}

	return &Client{
		baseURL:     baseURL,
		merchantID:  merchantID,
		callbackURL: callbackURL,
		signingKey:  key,
		httpClient:  &http.Client{Timeout: timeout},
		metrics:     m,
	}, nil
}

func (c *Client) signedToken(amount int64, reason string) (string, error) {
	claims := jwt.MapClaims{
		"amount":        float64(amount) / 100, // gateway wants ETB
		"paymentReason": reason,
		"merchantId":    c.merchantID,
		"generated":     time.Now().Unix(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(c.signingKey)
	if err != nil {
		return "", fmt.Errorf("signedToken: %w", err)
	}
	return token, nil
}

type chargePayload struct {
	ID              string  `json:"id"`
	Amount          float64 `json:"amount"`
	Reason          string  `json:"reason"`
	MerchantID      string  `json:"merchantId"`
	SignedToken     string  `json:"signedToken"`
	PhoneNumber     string  `json:"phoneNumber"`
	PaymentMethod   string  `json:"paymentMethod"`
	NotifyURL       string  `json:"notifyUrl"`
	SuccessRedirect string  `json:"successRedirectUrl,omitempty"`
}

type payoutPayload struct {
	ID            string  `json:"id"`
	Amount        float64 `json:"amount"`
	Reason        string  `json:"paymentReason"`
	MerchantID    string  `json:"merchantId"`
	SignedToken   string  `json:"signedToken"`
	ReceiverPhone string  `json:"receiverAccountNumber"`
	PaymentMethod string  `json:"paymentMethod"`
	NotifyURL     string  `json:"notifyUrl"`
}

type ackResponse struct {
	Status  string `json:"status"`
	TxnID   string `json:"txnId"`
	Message string `json:"message"`
}

type statusResponse struct {
	Status  string `json:"status"`
	TxnID   string `json:"txnId"`
	Message string `json:"message"`
	Reason  string `json:"reason"`
}

// InitiateCharge starts collecting req.Amount from the payer. The ack is not
// authoritative; the final status arrives via callback or CheckStatus.
func (c *Client) InitiateCharge(ctx context.Context, req ChargeRequest) (*Ack, error) {
	token, err := c.signedToken(req.Amount, req.Memo)
	if err != nil {
		return nil, fmt.Errorf("InitiateCharge: %w", err)
	}

	payload := chargePayload{
		ID:            req.TransactionID,
		Amount:        float64(req.Amount) / 100,
		Reason:        req.Memo,
		MerchantID:    c.merchantID,
		SignedToken:   token,
		PhoneNumber:   req.PayerPhone,
		PaymentMethod: req.Method,
		NotifyURL:     c.callbackURL,
	}

	var resp ackResponse
	if err := c.post(ctx, "initiate-payment", payload, &resp); err != nil {
		return nil, fmt.Errorf("InitiateCharge: %w", err)
	}

	return &Ack{ExternalRef: resp.TxnID, Status: Status(resp.Status)}, nil
}

// InitiatePayout sends req.Amount to the payee.
func (c *Client) InitiatePayout(ctx context.Context, req PayoutRequest) (*Ack, error) {
	token, err := c.signedToken(req.Amount, req.Kind)
	if err != nil {
		return nil, fmt.Errorf("InitiatePayout: %w", err)
	}

	payload := payoutPayload{
		ID:            req.TransactionID,
		Amount:        float64(req.Amount) / 100,
		Reason:        req.Kind,
		MerchantID:    c.merchantID,
		SignedToken:   token,
		ReceiverPhone: req.PayeePhone,
		PaymentMethod: req.Method,
		NotifyURL:     c.callbackURL,
	}

	var resp ackResponse
	if err := c.post(ctx, "payout-transfer", payload, &resp); err != nil {
		return nil, fmt.Errorf("InitiatePayout: %w", err)
	}

	return &Ack{ExternalRef: resp.TxnID, Status: Status(resp.Status)}, nil
}

// CheckStatus polls the gateway for the current state of a transaction.
func (c *Client) CheckStatus(ctx context.Context, transactionID string) (*StatusResult, error) {
	token, err := c.signedToken(0, "status")
	if err != nil {
		return nil, fmt.Errorf("CheckStatus: %w", err)
	}

	payload := map[string]string{
		"id":          transactionID,
		"merchantId":  c.merchantID,
		"signedToken": token,
	}

	var resp statusResponse
	if err := c.post(ctx, "fetch-transaction-status", payload, &resp); err != nil {
		return nil, fmt.Errorf("CheckStatus: %w", err)
	}

	return &StatusResult{
		Status:      Status(resp.Status),
		ExternalRef: resp.TxnID,
		Reason:      resp.Reason,
	}, nil
}

func (c *Client) post(ctx context.Context, call string, payload, out any) error {
	log := logging.FromContext(ctx)

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("post %s: marshal: %w", call, err)
	}

	url := c.baseURL + "/" + call
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post %s: build request: %w", call, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if c.metrics != nil {
		c.metrics.GatewayDuration.WithLabelValues(call).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		c.countOutcome(call, "unavailable")
		return fmt.Errorf("post %s: %v: %w", call, err, domain.ErrGatewayUnavailable)
	}
	defer resp.Body.Close()

	log.Info("gateway response",
		"call", call,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode >= http.StatusInternalServerError {
		c.countOutcome(call, "unavailable")
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("post %s: status %d: %s: %w", call, resp.StatusCode, string(respBody), domain.ErrGatewayUnavailable)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		c.countOutcome(call, "rejected")
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("post %s: unexpected status %d: %s", call, resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.countOutcome(call, "malformed")
		return fmt.Errorf("post %s: decode: %w", call, err)
	}

	c.countOutcome(call, "ok")
	return nil
}

func (c *Client) countOutcome(call, outcome string) {
	if c.metrics != nil {
		c.metrics.GatewayRequests.WithLabelValues(call, outcome).Inc()
	}
}
