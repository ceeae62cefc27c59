// Package paypal is a thin client for the PayPal Payouts REST API.
package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrNotFound is returned when PayPal reports the resource does not exist.
var ErrNotFound = errors.New("paypal: not found")

// tokenSkew renews access tokens slightly before PayPal expires them.
const tokenSkew = 30 * time.Second

// PayoutRequest describes a single-recipient payout. Amount is in minor units.
type PayoutRequest struct {
	SenderBatchID string
	ReceiverEmail string
	Amount        int64
	Currency      string
	Note          string
}

// PayoutResult is PayPal's acknowledgement of a payout batch.
type PayoutResult struct {
	BatchID string
	Status  string
}

// Client defines the contract for releasing milestone payments.
type Client interface {
	Payout(ctx context.Context, req PayoutRequest) (*PayoutResult, error)
}

// HTTPClient implements Client over HTTP.
type HTTPClient struct {
	baseURL      *url.URL
	clientID     string
	clientSecret string
	client       *http.Client
	logger       *zap.Logger
	tracer       trace.Tracer

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
	now         func() time.Time
}

// NewHTTPClient constructs a new HTTP-backed PayPal client.
func NewHTTPClient(baseURL, clientID, clientSecret string, timeout time.Duration, logger *zap.Logger) (*HTTPClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse paypal url: %w", err)
	}
	return &HTTPClient{
		baseURL:      parsed,
		clientID:     clientID,
		clientSecret: clientSecret,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   timeout,
				ResponseHeaderTimeout: timeout,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		logger: logger.Named("paypal"),
		tracer: otel.Tracer("paypal"),
		now:    time.Now,
	}, nil
}

// Payout creates a payout batch paying one recipient. SenderBatchID doubles
// as PayPal's idempotency key, so retrying with the same ID cannot pay twice.
func (c *HTTPClient) Payout(ctx context.Context, req PayoutRequest) (*PayoutResult, error) {
	ctx, span := c.tracer.Start(ctx, "paypal.Payout",
		trace.WithAttributes(
			attribute.String("payout.sender_batch_id", req.SenderBatchID),
			attribute.Int64("payout.amount", req.Amount),
			attribute.String("payout.currency", req.Currency),
		),
	)
	defer span.End()

	result, err := c.payout(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("payout.batch_id", result.BatchID))
	return result, nil
}

func (c *HTTPClient) payout(ctx context.Context, req PayoutRequest) (*PayoutResult, error) {
	if req.Currency != "" && !SupportedCurrency(req.Currency) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCurrency, req.Currency)
	}
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(buildPayoutPayload(req))
	if err != nil {
		return nil, fmt.Errorf("encode payout: %w", err)
	}

	endpoint := c.baseURL.ResolveReference(&url.URL{Path: "/v1/payments/payouts"})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("PayPal-Request-Id", req.SenderBatchID)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		var payload payoutResponse
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return nil, fmt.Errorf("decode payout response: %w", err)
		}
		return convertToResult(payload)
	case http.StatusUnauthorized:
		c.invalidateToken()
		return nil, fmt.Errorf("paypal: unauthorized")
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		c.logger.Warn("unexpected payout status",
			zap.Int("status", resp.StatusCode),
			zap.String("sender_batch_id", req.SenderBatchID),
		)
		return nil, fmt.Errorf("paypal: upstream returned %d", resp.StatusCode)
	}
}

func (c *HTTPClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && c.now().Before(c.expiresAt) {
		return c.accessToken, nil
	}

	endpoint := c.baseURL.ResolveReference(&url.URL{Path: "/v1/oauth2/token"})
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("paypal: token endpoint returned %d", resp.StatusCode)
	}

	var payload tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("paypal: empty access token")
	}

	c.accessToken = payload.AccessToken
	c.expiresAt = c.now().Add(time.Duration(payload.ExpiresIn)*time.Second - tokenSkew)
	c.logger.Debug("access token refreshed", zap.Time("expires_at", c.expiresAt))
	return c.accessToken, nil
}

func (c *HTTPClient) invalidateToken() {
	c.mu.Lock()
	c.accessToken = ""
	c.mu.Unlock()
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type payoutPayload struct {
	SenderBatchHeader senderBatchHeader `json:"sender_batch_header"`
	Items             []payoutItem      `json:"items"`
}

type senderBatchHeader struct {
	SenderBatchID string `json:"sender_batch_id"`
	EmailSubject  string `json:"email_subject,omitempty"`
}

type payoutItem struct {
	RecipientType string      `json:"recipient_type"`
	Amount        amountValue `json:"amount"`
	Receiver      string      `json:"receiver"`
	Note          string      `json:"note,omitempty"`
	SenderItemID  string      `json:"sender_item_id"`
}

type amountValue struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type payoutResponse struct {
	BatchHeader *struct {
		PayoutBatchID string `json:"payout_batch_id"`
		BatchStatus   string `json:"batch_status"`
	} `json:"batch_header"`
}

func buildPayoutPayload(req PayoutRequest) payoutPayload {
	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = "USD"
	}
	return payoutPayload{
		SenderBatchHeader: senderBatchHeader{
			SenderBatchID: req.SenderBatchID,
			EmailSubject:  "You have a payment",
		},
		Items: []payoutItem{{
			RecipientType: "EMAIL",
			Amount:        amountValue{Value: formatMinorUnits(req.Amount, currency), Currency: currency},
			Receiver:      req.ReceiverEmail,
			Note:          req.Note,
			SenderItemID:  req.SenderBatchID,
		}},
	}
}

func convertToResult(payload payoutResponse) (*PayoutResult, error) {
	if payload.BatchHeader == nil || payload.BatchHeader.PayoutBatchID == "" {
		return nil, fmt.Errorf("paypal: response missing payout_batch_id")
	}
	status := payload.BatchHeader.BatchStatus
	if status == "" {
		status = "PENDING"
	}
	return &PayoutResult{BatchID: payload.BatchHeader.PayoutBatchID, Status: status}, nil
}
