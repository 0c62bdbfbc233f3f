package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uniedit/paystatus/internal/domain/s2s"
	"github.com/uniedit/paystatus/internal/utils/requestctx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const (
	testAPIKey  = "gateway-key-0001"
	testPath    = "/api/webhooks/notifications/status"
	testPayload = `{"OrderId":"ORD-1","Status":"paid"}`
)

var s2sNow = time.Unix(1_700_000_000, 0)

type authRecord struct {
	accepted bool
	reason   string
}

type fakeS2SRecorder struct {
	mu      sync.Mutex
	records []authRecord
}

func (r *fakeS2SRecorder) RecordS2SAuth(accepted bool, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, authRecord{accepted, reason})
}

func newS2SVerifier(t *testing.T) *s2s.Verifier {
	t.Helper()
	v, err := s2s.NewVerifier(s2s.Credentials{
		APIKeys: []string{testAPIKey},
		Secrets: []string{"secret-current", "secret-previous"},
	}, s2s.WithClock(func() time.Time { return s2sNow }))
	require.NoError(t, err)
	return v
}

// signedHTTPRequest builds a request signed with secret at ts.
func signedHTTPRequest(secret string, ts time.Time, body string) *http.Request {
	sreq := s2s.Request{
		Method:       http.MethodPost,
		PathAndQuery: testPath,
		APIKey:       testAPIKey,
		Timestamp:    strconv.FormatInt(ts.Unix(), 10),
		Nonce:        "6f1d0c1e",
		Body:         []byte(body),
	}
	sig := s2s.Sign(secret, sreq)

	req := httptest.NewRequest(http.MethodPost, testPath, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(s2s.HeaderAPIKey, sreq.APIKey)
	req.Header.Set(s2s.HeaderSignature, sig)
	req.Header.Set(s2s.HeaderTimestamp, sreq.Timestamp)
	req.Header.Set(s2s.HeaderNonce, sreq.Nonce)
	return req
}

type s2sHarness struct {
	router  *gin.Engine
	rec     *fakeS2SRecorder
	logs    *observer.ObservedLogs
	called  *bool
	orderID *string
	keyID   *string
}

func newS2SHarness(t *testing.T, mode S2SMode, pre ...gin.HandlerFunc) s2sHarness {
	t.Helper()
	core, logs := observer.New(zapcore.InfoLevel)
	rec := &fakeS2SRecorder{}
	called := false
	var orderID, keyID string

	router := gin.New()
	router.Use(pre...)
	router.Use(S2SAuth(newS2SVerifier(t), mode, zap.New(core), rec))
	router.POST(testPath, func(c *gin.Context) {
		called = true
		keyID = requestctx.S2SKeyID(c.Request.Context())
		var body struct {
			OrderID string `json:"OrderId"`
		}
		if err := c.ShouldBindBodyWith(&body, binding.JSON); err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		orderID = body.OrderID
		c.Status(http.StatusOK)
	})

	return s2sHarness{router: router, rec: rec, logs: logs, called: &called, orderID: &orderID, keyID: &keyID}
}

func (h s2sHarness) serve(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func TestS2SAuth_Accepts(t *testing.T) {
	h := newS2SHarness(t, ModeS2SOnly)

	w := h.serve(signedHTTPRequest("secret-current", s2sNow, testPayload))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, *h.called)
	assert.Equal(t, "ORD-1", *h.orderID, "body is still readable after verification")
	assert.Equal(t, "gatew***", *h.keyID)
	assert.Equal(t, []authRecord{{true, ""}}, h.rec.records)
	assert.Equal(t, 1, h.logs.FilterMessage("s2s request authenticated").Len())
}

func TestS2SAuth_AcceptsRotatedSecret(t *testing.T) {
	h := newS2SHarness(t, ModeS2SOnly)

	w := h.serve(signedHTTPRequest("secret-previous", s2sNow.Add(-299*time.Second), testPayload))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, *h.called)
}

func TestS2SAuth_MissingHeaders(t *testing.T) {
	headers := []string{s2s.HeaderAPIKey, s2s.HeaderSignature, s2s.HeaderTimestamp, s2s.HeaderNonce}

	for _, header := range headers {
		t.Run(header, func(t *testing.T) {
			h := newS2SHarness(t, ModeS2SOnly)
			req := signedHTTPRequest("secret-current", s2sNow, testPayload)
			req.Header.Del(header)

			w := h.serve(req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.JSONEq(t, `{"error":"unauthorized"}`, w.Body.String())
			assert.False(t, *h.called, "handler must not run")
			assert.Equal(t, []authRecord{{false, "missing_header"}}, h.rec.records)
		})
	}
}

func TestS2SAuth_Rejects(t *testing.T) {
	tests := []struct {
		name       string
		build      func() *http.Request
		wantReason string
	}{
		{
			name: "altered body",
			build: func() *http.Request {
				req := signedHTTPRequest("secret-current", s2sNow, testPayload)
				tampered := `{"OrderId":"ORD-1","Status":"refunded"}`
				req.Body = httptestBody(tampered)
				req.ContentLength = int64(len(tampered))
				return req
			},
			wantReason: "signature_mismatch",
		},
		{
			name: "stale timestamp",
			build: func() *http.Request {
				return signedHTTPRequest("secret-current", s2sNow.Add(-400*time.Second), testPayload)
			},
			wantReason: "timestamp_expired",
		},
		{
			name: "unknown secret",
			build: func() *http.Request {
				return signedHTTPRequest("not-a-secret", s2sNow, testPayload)
			},
			wantReason: "signature_mismatch",
		},
		{
			name: "unknown api key",
			build: func() *http.Request {
				req := signedHTTPRequest("secret-current", s2sNow, testPayload)
				req.Header.Set(s2s.HeaderAPIKey, "someone-else")
				return req
			},
			wantReason: "unknown_api_key",
		},
		{
			name: "garbage timestamp",
			build: func() *http.Request {
				req := signedHTTPRequest("secret-current", s2sNow, testPayload)
				req.Header.Set(s2s.HeaderTimestamp, "yesterday")
				return req
			},
			wantReason: "invalid_timestamp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newS2SHarness(t, ModeS2SOnly)

			w := h.serve(tt.build())

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.False(t, *h.called)
			assert.Equal(t, []authRecord{{false, tt.wantReason}}, h.rec.records)

			entries := h.logs.FilterMessage("s2s authentication rejected").All()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.wantReason, entries[0].ContextMap()["reason"])
		})
	}
}

func TestS2SAuth_JWTOrS2S(t *testing.T) {
	validator := fakeJWTValidator{subjects: map[string]string{"ops-token": "ops-dashboard"}}

	t.Run("bearer token skips signature check", func(t *testing.T) {
		h := newS2SHarness(t, ModeJWTOrS2S, OptionalAuth(validator))
		req := httptest.NewRequest(http.MethodPost, testPath, strings.NewReader(testPayload))
		req.Header.Set(AuthorizationHeader, "Bearer ops-token")

		w := h.serve(req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, *h.called)
		assert.Empty(t, h.rec.records)
	})

	t.Run("signature accepted without token", func(t *testing.T) {
		h := newS2SHarness(t, ModeJWTOrS2S, OptionalAuth(validator))

		w := h.serve(signedHTTPRequest("secret-current", s2sNow, testPayload))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, *h.called)
	})

	t.Run("neither credential", func(t *testing.T) {
		h := newS2SHarness(t, ModeJWTOrS2S, OptionalAuth(validator))
		req := httptest.NewRequest(http.MethodPost, testPath, strings.NewReader(testPayload))
		req.Header.Set(AuthorizationHeader, "Bearer expired")

		w := h.serve(req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.False(t, *h.called)
	})

	t.Run("s2s only ignores bearer token", func(t *testing.T) {
		h := newS2SHarness(t, ModeS2SOnly, OptionalAuth(validator))
		req := httptest.NewRequest(http.MethodPost, testPath, strings.NewReader(testPayload))
		req.Header.Set(AuthorizationHeader, "Bearer ops-token")

		w := h.serve(req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.False(t, *h.called)
	})
}

func TestS2SAuth_QueryIsSigned(t *testing.T) {
	h := newS2SHarness(t, ModeS2SOnly)
	req := signedHTTPRequest("secret-current", s2sNow, testPayload)
	req.URL.RawQuery = "source=gateway"
	req.RequestURI = testPath + "?source=gateway"

	w := h.serve(req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, []authRecord{{false, "signature_mismatch"}}, h.rec.records)
}

func httptestBody(s string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(s))
}
