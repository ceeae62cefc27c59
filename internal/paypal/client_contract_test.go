package paypal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePaypal struct {
	tokenCalls  atomic.Int32
	payoutCalls atomic.Int32
	payoutCode  int
	lastPayload payoutPayload
}

func (f *fakePaypal) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/v1/payments/payouts", func(w http.ResponseWriter, r *http.Request) {
		f.payoutCalls.Add(1)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&f.lastPayload))
		if f.payoutCode != 0 {
			w.WriteHeader(f.payoutCode)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"batch_header":{"payout_batch_id":"BATCH-1","batch_status":"PENDING"}}`))
	})
	return mux
}

func newTestClient(t *testing.T, fake *fakePaypal) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)
	client, err := NewHTTPClient(srv.URL, "client", "secret", 3*time.Second, nil)
	require.NoError(t, err)
	return client
}

func TestHTTPClient_Payout(t *testing.T) {
	fake := &fakePaypal{}
	client := newTestClient(t, fake)

	res, err := client.Payout(context.Background(), PayoutRequest{
		SenderBatchID: "ms-1",
		ReceiverEmail: "dev@example.com",
		Amount:        12_345,
		Currency:      "usd",
		Note:          "Milestone: Design",
	})
	require.NoError(t, err)
	assert.Equal(t, "BATCH-1", res.BatchID)
	assert.Equal(t, "PENDING", res.Status)

	require.Len(t, fake.lastPayload.Items, 1)
	item := fake.lastPayload.Items[0]
	assert.Equal(t, "123.45", item.Amount.Value)
	assert.Equal(t, "USD", item.Amount.Currency)
	assert.Equal(t, "dev@example.com", item.Receiver)
	assert.Equal(t, "ms-1", fake.lastPayload.SenderBatchHeader.SenderBatchID)

	_, err = client.Payout(context.Background(), PayoutRequest{SenderBatchID: "ms-2", ReceiverEmail: "dev@example.com", Amount: 100})
	require.NoError(t, err)
	assert.Equal(t, int32(1), fake.tokenCalls.Load(), "token should be cached")
	assert.Equal(t, int32(2), fake.payoutCalls.Load())
}

func TestHTTPClient_TokenRefreshAfterExpiry(t *testing.T) {
	fake := &fakePaypal{}
	client := newTestClient(t, fake)
	now := time.Now()
	client.now = func() time.Time { return now }

	_, err := client.Payout(context.Background(), PayoutRequest{SenderBatchID: "a", Amount: 1})
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = client.Payout(context.Background(), PayoutRequest{SenderBatchID: "b", Amount: 1})
	require.NoError(t, err)
	assert.Equal(t, int32(2), fake.tokenCalls.Load())
}

func TestHTTPClient_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		notFound bool
	}{
		{"not found", http.StatusNotFound, true},
		{"server error", http.StatusInternalServerError, false},
		{"unprocessable", http.StatusUnprocessableEntity, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakePaypal{payoutCode: tt.code}
			client := newTestClient(t, fake)
			_, err := client.Payout(context.Background(), PayoutRequest{SenderBatchID: "x", Amount: 1})
			require.Error(t, err)
			assert.Equal(t, tt.notFound, err == ErrNotFound)
		})
	}
}

func TestHTTPClient_BadCredentials(t *testing.T) {
	fake := &fakePaypal{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	client, err := NewHTTPClient(srv.URL, "client", "wrong", time.Second, nil)
	require.NoError(t, err)
	_, err = client.Payout(context.Background(), PayoutRequest{SenderBatchID: "x", Amount: 1})
	require.Error(t, err)
	assert.Equal(t, int32(0), fake.payoutCalls.Load())
}

func TestFormatMinorUnits(t *testing.T) {
	cases := []struct {
		amount   int64
		currency string
		want     string
	}{
		{0, "USD", "0.00"},
		{5, "USD", "0.05"},
		{100, "EUR", "1.00"},
		{1050, "usd", "10.50"},
		{-250, "GBP", "-2.50"},
		{1050, "JPY", "1050"},
		{1050, "jpy", "1050"},
		{0, "HUF", "0"},
		{-7, "TWD", "-7"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, formatMinorUnits(tc.amount, tc.currency), "%d %s", tc.amount, tc.currency)
	}
}

func TestSupportedCurrency(t *testing.T) {
	for _, code := range []string{"USD", "eur", "JPY", "twd"} {
		assert.True(t, SupportedCurrency(code), code)
	}
	for _, code := range []string{"", "XYZ", "BTC", "usdd"} {
		assert.False(t, SupportedCurrency(code), code)
	}
}

func TestHTTPClient_PayoutZeroDecimalCurrency(t *testing.T) {
	fake := &fakePaypal{}
	client := newTestClient(t, fake)

	_, err := client.Payout(context.Background(), PayoutRequest{SenderBatchID: "jp-1", ReceiverEmail: "a@example.com", Amount: 1050, Currency: "JPY"})
	require.NoError(t, err)
	require.Len(t, fake.lastPayload.Items, 1)
	item := fake.lastPayload.Items[0]
	assert.Equal(t, "1050", item.Amount.Value)
	assert.Equal(t, "JPY", item.Amount.Currency)
}

func TestHTTPClient_PayoutUnsupportedCurrency(t *testing.T) {
	fake := &fakePaypal{}
	client := newTestClient(t, fake)

	_, err := client.Payout(context.Background(), PayoutRequest{SenderBatchID: "x", Amount: 100, Currency: "XYZ"})
	require.ErrorIs(t, err, ErrUnsupportedCurrency)
	assert.Equal(t, int32(0), fake.payoutCalls.Load())
}
