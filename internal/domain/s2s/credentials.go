// Package s2s authenticates server-to-server calls signed with HMAC-SHA256.
//
// A caller sends four headers: an API key, a unix timestamp, a random nonce
// and the hex HMAC of the canonical string built from the request. Any of the
// configured secrets may produce the signature so secrets can be rotated
// without downtime.
package s2s

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Header names carried by a signed request.
const (
	HeaderAPIKey    = "x-api-key"
	HeaderSignature = "x-signature"
	HeaderTimestamp = "x-timestamp"
	HeaderNonce     = "x-nonce"
)

// Credentials is the set of accepted API keys and HMAC secrets.
type Credentials struct {
	APIKeys []string
	Secrets []string
}

// normalize trims entries and drops empty ones.
func (c Credentials) normalize() Credentials {
	return Credentials{
		APIKeys: compact(c.APIKeys),
		Secrets: compact(c.Secrets),
	}
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Request is the signed material extracted from an inbound call.
type Request struct {
	Method       string
	PathAndQuery string
	APIKey       string
	Signature    string
	Timestamp    string
	Nonce        string
	Body         []byte
}

// CanonicalString returns the string that is signed: the upper-cased method,
// the path with query, the timestamp, the nonce and the raw body, concatenated
// without separators.
func CanonicalString(req Request) string {
	var b strings.Builder
	b.Grow(len(req.Method) + len(req.PathAndQuery) + len(req.Timestamp) + len(req.Nonce) + len(req.Body))
	b.WriteString(strings.ToUpper(req.Method))
	b.WriteString(req.PathAndQuery)
	b.WriteString(req.Timestamp)
	b.WriteString(req.Nonce)
	b.Write(req.Body)
	return b.String()
}

// Sign returns the lowercase hex HMAC-SHA256 of the canonical string.
func Sign(secret string, req Request) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(CanonicalString(req)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Identity is the authenticated caller. KeyID is a display prefix of the
// matched API key, safe to log.
type Identity struct {
	KeyID string
}

// keyID masks all but a short prefix of an API key.
func keyID(apiKey string) string {
	n := len(apiKey) / 3
	if n > 6 {
		n = 6
	}
	return apiKey[:n] + "***"
}
