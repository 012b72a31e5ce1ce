package payment

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
	"go.uber.org/zap"

	"github.com/hackgods/medivault/internal/config"
)

func newTestClient(url string, retries int) *RazorpayClient {
	return NewRazorpayClient(config.GatewayConfig{
		BaseURL:    url,
		KeyID:      "rzp_test_key",
		KeySecret:  testSecret,
		Timeout:    2 * time.Second,
		MaxRetries: retries,
	}, zap.NewNop())
}

func TestCreateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orders", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_test_key", user)
		assert.Equal(t, testSecret, pass)
		assert.Equal(t, "appt_1:500.00", r.Header.Get("Idempotency-Key"))

		var body createOrderBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, int64(50000), body.Amount)
		assert.Equal(t, "INR", body.Currency)
		assert.Equal(t, "appt_1", body.Receipt)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_abc","amount":50000,"currency":"INR","receipt":"appt_1","status":"created"}`))
	}))
	defer srv.Close()

	order, err := newTestClient(srv.URL+"/", 2).CreateOrder(context.Background(), OrderRequest{
		AmountMinor:    50000,
		Currency:       "INR",
		Receipt:        "appt_1",
		IdempotencyKey: "appt_1:500.00",
	})
	require.NoError(t, err)
	assert.Equal(t, "order_abc", order.ID)
	assert.Equal(t, "created", order.Status)
}

func TestCreateOrderRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"id":"order_retry","amount":100,"currency":"INR"}`))
	}))
	defer srv.Close()

	order, err := newTestClient(srv.URL, 3).CreateOrder(context.Background(), OrderRequest{AmountMinor: 100, Currency: "INR", Receipt: "r"})
	require.NoError(t, err)
	assert.Equal(t, "order_retry", order.ID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCreateOrderDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"amount exceeds maximum"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 3).CreateOrder(context.Background(), OrderRequest{AmountMinor: 1, Currency: "INR", Receipt: "r"})

	var gerr *GatewayError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, http.StatusBadRequest, gerr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCreateOrderGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 2).CreateOrder(context.Background(), OrderRequest{AmountMinor: 1, Currency: "INR", Receipt: "r"})
	assert.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCreateOrderMissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 2).CreateOrder(context.Background(), OrderRequest{AmountMinor: 1, Currency: "INR", Receipt: "r"})
	assert.Error(t, err)
}
