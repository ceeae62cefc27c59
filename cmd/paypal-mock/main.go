// Command paypal-mock serves the subset of the PayPal REST API the service
// calls, for local runs without sandbox credentials.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
)

type payoutRequest struct {
	SenderBatchHeader struct {
		SenderBatchID string `json:"sender_batch_id"`
	} `json:"sender_batch_header"`
	Items []json.RawMessage `json:"items"`
}

type mock struct {
	clientID     string
	clientSecret string
	token        string

	mu      sync.Mutex
	batches map[string]string // sender_batch_id -> payout_batch_id
}

func main() {
	var (
		port     = flag.String("port", "9099", "port to listen on")
		clientID = flag.String("client-id", "mock-client", "accepted client id")
		secret   = flag.String("client-secret", "mock-secret", "accepted client secret")
		verbose  = flag.Bool("log", false, "enable request logging")
	)
	flag.Parse()

	m := &mock{
		clientID:     *clientID,
		clientSecret: *secret,
		token:        uuid.NewString(),
		batches:      make(map[string]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", m.handleToken)
	mux.HandleFunc("/v1/payments/payouts", m.handlePayout)

	var handler http.Handler = mux
	if *verbose {
		handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("%s %s", r.Method, r.URL.Path)
			mux.ServeHTTP(w, r)
		})
	}

	addr := ":" + *port
	log.Printf("mock paypal listening on %s", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func (m *mock) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	user, pass, ok := r.BasicAuth()
	if !ok || user != m.clientID || pass != m.clientSecret {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token": m.token,
		"token_type":   "Bearer",
		"expires_in":   3600,
	})
}

func (m *mock) handlePayout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	if strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ") != m.token {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req payoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Items) == 0 || req.SenderBatchHeader.SenderBatchID == "" {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	// Repeated sender batch ids return the original batch, like PayPal's
	// idempotency handling.
	m.mu.Lock()
	batchID, ok := m.batches[req.SenderBatchHeader.SenderBatchID]
	if !ok {
		batchID = strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:13])
		m.batches[req.SenderBatchHeader.SenderBatchID] = batchID
	}
	m.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"batch_header": map[string]string{
			"payout_batch_id": batchID,
			"batch_status":    "PENDING",
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}
