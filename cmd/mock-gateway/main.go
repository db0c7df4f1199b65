package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mikiyas-z/bingo-wallet/internal/logging"
)

// Local stand-in for SantimPay. Every initiate call is acknowledged as
// PENDING and, after a short delay, a signed COMPLETED callback is posted
// to CALLBACK_URL. Transactions whose id ends in "0" are declined instead,
// which gives the compensation path something to chew on during manual
// testing.

type mockGateway struct {
	mu          sync.Mutex
	txns        map[string]string // transaction id -> status
	callbackURL string
	secret      string
}

type initiateRequest struct {
	ID string `json:"id"`
}

type statusRequest struct {
	ID string `json:"id"`
}

func main() {
	logging.Init("mock-gateway", "info", os.Getenv("APP_ENV"))

	g := &mockGateway{
		txns:        make(map[string]string),
		callbackURL: os.Getenv("CALLBACK_URL"),
		secret:      os.Getenv("CALLBACK_SECRET"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("POST /initiate-payment", g.handleInitiate)
	mux.HandleFunc("POST /payout-transfer", g.handleInitiate)
	mux.HandleFunc("POST /fetch-transaction-status", g.handleStatus)

	slog.Info("mock gateway started", "addr", ":8081")
	if err := http.ListenAndServe(":8081", mux); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func (g *mockGateway) handleInitiate(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(w, map[string]string{"message": "id required"})
		return
	}

	finalStatus := "COMPLETED"
	if len(req.ID) > 0 && req.ID[len(req.ID)-1] == '0' {
		finalStatus = "DECLINED"
	}

	g.mu.Lock()
	g.txns[req.ID] = "PENDING"
	g.mu.Unlock()

	go g.settle(req.ID, finalStatus)

	slog.Info("transaction accepted", "transaction_id", req.ID, "final_status", finalStatus)
	writeJSON(w, map[string]string{
		"Status": "PENDING",
		"TxnId":  "MOCK-" + uuid.NewString()[:8],
	})
}

func (g *mockGateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(w, map[string]string{"message": "id required"})
		return
	}

	g.mu.Lock()
	status, ok := g.txns[req.ID]
	g.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]string{"message": "transaction not found"})
		return
	}
	writeJSON(w, map[string]string{"Status": status, "TxnId": req.ID})
}

func (g *mockGateway) settle(txnID, status string) {
	time.Sleep(2 * time.Second)

	g.mu.Lock()
	g.txns[txnID] = status
	g.mu.Unlock()

	if g.callbackURL == "" {
		return
	}

	body, _ := json.Marshal(map[string]string{
		"event_id": uuid.NewString(),
		"txnId":    txnID,
		"Status":   status,
	})

	mac := hmac.New(sha256.New, []byte(g.secret))
	mac.Write(body)
	sig := hex.EncodeToString(mac.Sum(nil))

	req, err := http.NewRequest(http.MethodPost, g.callbackURL, bytes.NewReader(body))
	if err != nil {
		slog.Error("failed to build callback request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Callback-Signature", sig)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		slog.Error("failed to deliver callback", "transaction_id", txnID, "error", err)
		return
	}
	resp.Body.Close()

	slog.Info("callback delivered", "transaction_id", txnID, "status", status, "http_status", resp.StatusCode)
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
