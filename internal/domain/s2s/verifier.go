package s2s

import (
	"context"
	"crypto/hmac"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultMaxClockSkew is the accepted distance between the caller's
// timestamp and the local clock.
const DefaultMaxClockSkew = 300 * time.Second

// ErrUnauthorized is wrapped by every verification failure.
var ErrUnauthorized = errors.New("unauthorized")

// Verification errors.
var (
	ErrNoCredentials     = errors.New("s2s: at least one api key and one secret are required")
	ErrMissingHeader     = fmt.Errorf("%w: missing s2s header", ErrUnauthorized)
	ErrUnknownAPIKey     = fmt.Errorf("%w: unknown api key", ErrUnauthorized)
	ErrInvalidTimestamp  = fmt.Errorf("%w: invalid timestamp", ErrUnauthorized)
	ErrTimestampExpired  = fmt.Errorf("%w: timestamp outside allowed skew", ErrUnauthorized)
	ErrSignatureMismatch = fmt.Errorf("%w: signature mismatch", ErrUnauthorized)
	ErrNonceReplayed     = fmt.Errorf("%w: nonce already used", ErrUnauthorized)
	ErrNonceCheckFailed  = fmt.Errorf("%w: nonce check failed", ErrUnauthorized)
)

// NonceStore remembers nonces for replay detection.
type NonceStore interface {
	// Remember records key for ttl. It reports false when key was already
	// recorded.
	Remember(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// WithMaxClockSkew overrides DefaultMaxClockSkew.
func WithMaxClockSkew(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.maxSkew = d
		}
	}
}

// WithNonceStore enables nonce replay detection.
func WithNonceStore(store NonceStore) Option {
	return func(v *Verifier) {
		v.nonces = store
	}
}

// Verifier checks signed requests against a credential set.
type Verifier struct {
	creds   Credentials
	maxSkew time.Duration
	now     func() time.Time
	nonces  NonceStore
}

// NewVerifier creates a verifier for creds.
func NewVerifier(creds Credentials, opts ...Option) (*Verifier, error) {
	creds = creds.normalize()
	if len(creds.APIKeys) == 0 || len(creds.Secrets) == 0 {
		return nil, ErrNoCredentials
	}
	v := &Verifier{
		creds:   creds,
		maxSkew: DefaultMaxClockSkew,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// MaxClockSkew returns the configured skew window.
func (v *Verifier) MaxClockSkew() time.Duration {
	return v.maxSkew
}

// Verify authenticates req. Every returned error wraps ErrUnauthorized.
func (v *Verifier) Verify(ctx context.Context, req Request) (Identity, error) {
	if req.APIKey == "" || req.Signature == "" || req.Timestamp == "" || req.Nonce == "" {
		return Identity{}, ErrMissingHeader
	}

	apiKey, ok := v.matchAPIKey(req.APIKey)
	if !ok {
		return Identity{}, ErrUnknownAPIKey
	}

	ts, err := strconv.ParseInt(req.Timestamp, 10, 64)
	if err != nil {
		return Identity{}, ErrInvalidTimestamp
	}
	if skew := v.now().Unix() - ts; skew > int64(v.maxSkew/time.Second) || -skew > int64(v.maxSkew/time.Second) {
		return Identity{}, ErrTimestampExpired
	}

	if !v.matchSignature(req) {
		return Identity{}, ErrSignatureMismatch
	}

	if v.nonces != nil {
		// Entries must outlive the whole window a timestamp is accepted in.
		fresh, err := v.nonces.Remember(ctx, apiKey+":"+req.Nonce, 2*v.maxSkew)
		if err != nil {
			return Identity{}, fmt.Errorf("%w: %v", ErrNonceCheckFailed, err)
		}
		if !fresh {
			return Identity{}, ErrNonceReplayed
		}
	}

	return Identity{KeyID: keyID(apiKey)}, nil
}

// matchAPIKey compares against every configured key without returning early.
func (v *Verifier) matchAPIKey(candidate string) (string, bool) {
	matched := ""
	for _, key := range v.creds.APIKeys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(candidate)) == 1 {
			matched = key
		}
	}
	return matched, matched != ""
}

func (v *Verifier) matchSignature(req Request) bool {
	got := []byte(strings.ToLower(strings.TrimSpace(req.Signature)))
	ok := false
	for _, secret := range v.creds.Secrets {
		if hmac.Equal([]byte(Sign(secret, req)), got) {
			ok = true
		}
	}
	return ok
}

// Reason maps a verification error to a short label for logs and metrics.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingHeader):
		return "missing_header"
	case errors.Is(err, ErrUnknownAPIKey):
		return "unknown_api_key"
	case errors.Is(err, ErrInvalidTimestamp):
		return "invalid_timestamp"
	case errors.Is(err, ErrTimestampExpired):
		return "timestamp_expired"
	case errors.Is(err, ErrSignatureMismatch):
		return "signature_mismatch"
	case errors.Is(err, ErrNonceReplayed):
		return "nonce_replayed"
	case errors.Is(err, ErrNonceCheckFailed):
		return "nonce_check_failed"
	default:
		return "unknown"
	}
}
