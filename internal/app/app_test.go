package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uniedit/paystatus/internal/domain/order"
	"github.com/uniedit/paystatus/internal/domain/s2s"
	"github.com/uniedit/paystatus/internal/infra/auth"
	"github.com/uniedit/paystatus/internal/infra/broker"
	"github.com/uniedit/paystatus/internal/infra/config"
	porthttp "github.com/uniedit/paystatus/internal/ports/http"
	"github.com/uniedit/paystatus/internal/utils/metrics"
)

type stubRepository struct {
	orders map[string]*order.Order
}

func (r *stubRepository) Find(_ context.Context, orderID string) (*order.Order, error) {
	o, ok := r.orders[orderID]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *stubRepository) UpdateStatus(_ context.Context, o *order.Order, status order.Status) error {
	r.orders[o.ID].Status = status
	o.Status = status
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Log:      config.LogConfig{Level: "info"},
		Consumer: config.ConsumerConfig{Queue: "payment-status", Prefetch: 1, Workers: 1},
		S2S: config.S2SConfig{
			APIKeys:      []string{"gateway-key-0001"},
			HMACSecrets:  []string{"secret-current"},
			MaxClockSkew: 5 * time.Minute,
		},
		Auth: config.AuthConfig{JWTSecret: "jwt-test-secret", Issuer: "paystatus"},
	}
}

func newTestApp(t *testing.T, pool *broker.Pool) (*App, *auth.JWTValidator) {
	t.Helper()
	cfg := testConfig()
	log := zap.NewNop()
	m := metrics.NewWithRegistry("app_test", prometheus.NewRegistry())

	verifier, err := ProvideS2SVerifier(cfg, nil)
	require.NoError(t, err)
	jwt := ProvideJWTValidator(cfg)

	repo := &stubRepository{orders: map[string]*order.Order{
		"ORD-1": {ID: "ORD-1", Status: order.StatusPaid},
	}}
	handler := order.NewStatusHandler(repo, log)
	webhook := porthttp.NewWebhookHandler(handler, nil, repo, log, m)

	return NewApp(cfg, log, m, verifier, jwt, webhook, pool), jwt
}

func TestApp_Health(t *testing.T) {
	a, _ := newTestApp(t, nil)

	w := httptest.NewRecorder()
	a.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestApp_WebhookRequiresSignature(t *testing.T) {
	a, jwt := newTestApp(t, nil)
	token, _, err := jwt.GenerateToken("ops-dashboard")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/notifications/status",
		strings.NewReader(`{"orderId":"ORD-1","status":"refunded"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	a.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code, "bearer tokens are not accepted on webhooks")
}

func TestApp_SignedWebhook(t *testing.T) {
	a, _ := newTestApp(t, nil)
	body := `{"orderId":"ORD-1","status":"refunded"}`
	sreq := s2s.Request{
		Method:       http.MethodPost,
		PathAndQuery: "/api/webhooks/notifications/status",
		APIKey:       "gateway-key-0001",
		Timestamp:    strconv.FormatInt(time.Now().Unix(), 10),
		Nonce:        "a1b2c3",
		Body:         []byte(body),
	}

	req := httptest.NewRequest(http.MethodPost, sreq.PathAndQuery, strings.NewReader(body))
	req.Header.Set(s2s.HeaderAPIKey, sreq.APIKey)
	req.Header.Set(s2s.HeaderTimestamp, sreq.Timestamp)
	req.Header.Set(s2s.HeaderNonce, sreq.Nonce)
	req.Header.Set(s2s.HeaderSignature, s2s.Sign("secret-current", sreq))
	w := httptest.NewRecorder()
	a.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestApp_OrderStatusAcceptsBearerToken(t *testing.T) {
	a, jwt := newTestApp(t, nil)
	token, _, err := jwt.GenerateToken("ops-dashboard")
	require.NoError(t, err)

	t.Run("with token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/orders/ORD-1/status", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		a.Router().ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"orderId":"ORD-1","status":"paid"}`, w.Body.String())
	})

	t.Run("without credentials", func(t *testing.T) {
		w := httptest.NewRecorder()
		a.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/orders/ORD-1/status", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestApp_RunWithoutConsumers(t *testing.T) {
	a, _ := newTestApp(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- a.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestApp_StopIsIdempotent(t *testing.T) {
	a, _ := newTestApp(t, nil)
	calls := 0
	a.cleanup = func() { calls++ }

	a.Stop()
	a.Stop()

	assert.Equal(t, 1, calls)
}

func TestProvideStatusQueue(t *testing.T) {
	cfg := testConfig()
	cfg.Consumer.Durable = true
	cfg.Consumer.Prefetch = 10
	cfg.Consumer.DeadLetterExchange = "paystatus.dlx"

	q := ProvideStatusQueue(cfg)

	assert.Equal(t, broker.QueueConfig{
		Name:               "payment-status",
		Durable:            true,
		Prefetch:           10,
		DeadLetterExchange: "paystatus.dlx",
	}, q)
}

func TestProvideConsumerPool(t *testing.T) {
	cfg := testConfig()
	consumer := ProvideStatusConsumer(nil, zap.NewNop(), nil)

	assert.Nil(t, ProvideConsumerPool(cfg, broker.Dial, broker.ConnectionConfig{}, ProvideStatusQueue(cfg), consumer, zap.NewNop(), nil))

	cfg.Consumer.Enabled = true
	cfg.Consumer.Workers = 3
	pool := ProvideConsumerPool(cfg, broker.Dial, broker.ConnectionConfig{}, ProvideStatusQueue(cfg), consumer, zap.NewNop(), nil)
	require.NotNil(t, pool)
	assert.Equal(t, 3, pool.Size())
}

func TestProvideMetrics_Disabled(t *testing.T) {
	assert.Nil(t, ProvideMetrics(testConfig()))
}

func TestProvideS2SVerifier_NoCredentials(t *testing.T) {
	cfg := testConfig()
	cfg.S2S.APIKeys = nil

	_, err := ProvideS2SVerifier(cfg, nil)
	assert.ErrorIs(t, err, s2s.ErrNoCredentials)
}
