package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token errors.
var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidTokenClaims = errors.New("invalid token claims")
	ErrNoSecret           = errors.New("jwt secret is not configured")
)

// Claims represents JWT token claims. Only the subject is read; role claims
// are not mapped.
type Claims struct {
	jwt.RegisteredClaims
}

// JWTConfig holds JWT configuration.
type JWTConfig struct {
	Secret string
	Issuer string
	Expiry time.Duration
}

// DefaultJWTConfig returns default JWT configuration.
func DefaultJWTConfig() *JWTConfig {
	return &JWTConfig{
		Issuer: "paystatus",
		Expiry: 15 * time.Minute,
	}
}

// JWTValidator validates HS256 bearer tokens.
type JWTValidator struct {
	config *JWTConfig
}

// NewJWTValidator creates a new JWT validator.
func NewJWTValidator(config *JWTConfig) *JWTValidator {
	if config == nil {
		config = DefaultJWTConfig()
	}
	return &JWTValidator{config: config}
}

// Enabled reports whether a secret is configured.
func (v *JWTValidator) Enabled() bool {
	return v.config.Secret != ""
}

// GenerateToken issues a token for subject. Used by operators and tests to
// mint tokens for internal callers.
func (v *JWTValidator) GenerateToken(subject string) (string, time.Time, error) {
	if !v.Enabled() {
		return "", time.Time{}, ErrNoSecret
	}
	now := time.Now()
	expiresAt := now.Add(v.config.Expiry)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.config.Issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(v.config.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken validates a token and returns its subject.
func (v *JWTValidator) ValidateToken(tokenString string) (string, error) {
	if !v.Enabled() {
		return "", ErrNoSecret
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(v.config.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.config.Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", ErrInvalidTokenClaims
	}
	return claims.Subject, nil
}
