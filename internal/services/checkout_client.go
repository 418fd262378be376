package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/topup/upsell/internal/config"
	"github.com/topup/upsell/internal/models"
)

// Checkout endpoint failures
var (
	ErrCheckoutTimeout      = errors.New("checkout endpoint timed out")
	ErrCheckoutUnavailable  = errors.New("checkout endpoint unreachable")
	ErrCheckoutRejected     = errors.New("checkout endpoint rejected the charge")
	ErrMissingTransactionID = errors.New("checkout response has no transaction id")
)

// maxResponseBytes bounds how much of a checkout response is read
const maxResponseBytes = 1 << 20

// CheckoutClient creates instant-payment charges
type CheckoutClient interface {
	CreateCharge(ctx context.Context, req *ChargeRequest, idempotencyKey string) (*ChargeResponse, error)
}

// HTTPCheckoutClient implements CheckoutClient using HTTP
type HTTPCheckoutClient struct {
	config     *config.CheckoutConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewCheckoutClient creates a new checkout endpoint client
func NewCheckoutClient(cfg *config.CheckoutConfig, logger *zap.Logger) *HTTPCheckoutClient {
	return &HTTPCheckoutClient{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// ChargeRequest is the body sent to the checkout endpoint
type ChargeRequest struct {
	Amount      int64               `json:"amount"`
	OrderID     string              `json:"orderId"`
	Description string              `json:"description"`
	Payer       models.BuyerContext `json:"payer"`
}

// ChargeResponse is the checkout endpoint reply
type ChargeResponse struct {
	ID       string `json:"id"`
	Brcode   string `json:"brcode"`
	QRBase64 string `json:"qrBase64"`
}

// Charge converts the response to the domain type
func (r *ChargeResponse) Charge() models.Charge {
	return models.Charge{
		TransactionID: r.ID,
		Brcode:        r.Brcode,
		QRBase64:      r.QRBase64,
	}
}

// CreateCharge posts a single charge request. It does not retry.
func (c *HTTPCheckoutClient) CreateCharge(ctx context.Context, req *ChargeRequest, idempotencyKey string) (*ChargeResponse, error) {
	// Marshal request
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	// Create HTTP request
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.EndpointURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	}

	// Send request
	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if isTimeout(ctx, err) {
			c.logger.Warn("checkout request timed out",
				zap.String("order_id", req.OrderID),
				zap.Duration("elapsed", time.Since(start)),
			)
			return nil, fmt.Errorf("%w after %s", ErrCheckoutTimeout, time.Since(start).Round(time.Millisecond))
		}
		return nil, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}
	defer resp.Body.Close()

	// Read response body
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, fmt.Errorf("%w while reading response", ErrCheckoutTimeout)
		}
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrCheckoutUnavailable, err)
	}

	// Check status code
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("checkout endpoint error",
			zap.Int("status", resp.StatusCode),
			zap.String("order_id", req.OrderID),
			zap.ByteString("body", truncate(body, 512)),
		)
		return nil, fmt.Errorf("%w: status %d", ErrCheckoutRejected, resp.StatusCode)
	}

	// Parse response
	var chargeResp ChargeResponse
	if err := json.Unmarshal(body, &chargeResp); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response: %v", ErrCheckoutUnavailable, err)
	}
	if chargeResp.ID == "" {
		return nil, ErrMissingTransactionID
	}

	c.logger.Info("charge created",
		zap.Int("status", resp.StatusCode),
		zap.String("order_id", req.OrderID),
		zap.String("transaction_id", chargeResp.ID),
		zap.Duration("elapsed", time.Since(start)),
	)

	return &chargeResp, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
