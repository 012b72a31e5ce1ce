package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/hackgods/medivault/internal/config"
)

type OrderRequest struct {
	AmountMinor    int64
	Currency       string
	Receipt        string
	Notes          map[string]string
	IdempotencyKey string
}

type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// Gateway creates checkout orders. The shared secret never leaves this process
// except as the basic-auth credential of the order call.
type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
}

// GatewayError is a non-2xx answer from the gateway.
type GatewayError struct {
	StatusCode int
	Body       string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway returned status %d: %s", e.StatusCode, e.Body)
}

// RazorpayClient talks to the Razorpay orders API.
type RazorpayClient struct {
	baseURL    string
	keyID      string
	keySecret  string
	maxRetries uint64
	httpClient *http.Client
	logger     *zap.Logger
}

func NewRazorpayClient(cfg config.GatewayConfig, logger *zap.Logger) *RazorpayClient {
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &RazorpayClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		keyID:      cfg.KeyID,
		keySecret:  cfg.KeySecret,
		maxRetries: uint64(retries),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

type createOrderBody struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// CreateOrder retries network failures and 5xx answers with exponential
// backoff. 4xx answers are returned at once.
func (c *RazorpayClient) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	payload, err := json.Marshal(createOrderBody{
		Amount:   req.AmountMinor,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Notes:    req.Notes,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal order: %w", err)
	}

	attempt := 0
	op := func() (*Order, error) {
		attempt++
		order, err := c.post(ctx, payload, req.IdempotencyKey)
		if err != nil {
			c.logger.Warn("gateway order attempt failed",
				zap.String("receipt", req.Receipt),
				zap.Int("attempt", attempt),
				zap.Error(err))
		}
		return order, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = config.GatewayMaxBackoff

	order, err := backoff.RetryWithData(op, backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx))
	if err != nil {
		return nil, err
	}

	c.logger.Info("gateway order created",
		zap.String("receipt", req.Receipt),
		zap.String("order_id", order.ID),
		zap.Int64("amount_minor", order.Amount))
	return order, nil
}

func (c *RazorpayClient) post(ctx context.Context, payload []byte, idempotencyKey string) (*Order, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(payload))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(c.keyID, c.keySecret)
	if idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send order request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read order response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		gerr := &GatewayError{StatusCode: resp.StatusCode, Body: string(body)}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, gerr
		}
		return nil, backoff.Permanent(gerr)
	}

	var order Order
	if err := json.Unmarshal(body, &order); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode order response: %w", err))
	}
	if order.ID == "" {
		return nil, backoff.Permanent(fmt.Errorf("gateway response has no order id"))
	}
	return &order, nil
}
