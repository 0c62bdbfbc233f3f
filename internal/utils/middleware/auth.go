package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/uniedit/paystatus/internal/utils/response"
)

const (
	// AuthorizationHeader is the header key for authorization.
	AuthorizationHeader = "Authorization"
	// BearerPrefix is the prefix for bearer tokens.
	BearerPrefix = "Bearer "
	// SubjectKey is the context key for the token subject.
	SubjectKey = "jwt_subject"
)

// JWTValidator validates a bearer token and returns its subject.
type JWTValidator interface {
	ValidateToken(token string) (string, error)
}

// Auth returns a middleware that validates JWT tokens.
// If the token is valid, it sets the subject in the context.
// If optional is true, the middleware will not abort on missing/invalid tokens.
func Auth(validator JWTValidator, optional bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		if token == "" || validator == nil {
			if !optional {
				response.Unauthorized(c)
				return
			}
			c.Next()
			return
		}

		subject, err := validator.ValidateToken(token)
		if err != nil {
			if !optional {
				response.Unauthorized(c)
				return
			}
			c.Next()
			return
		}

		c.Set(SubjectKey, subject)
		c.Next()
	}
}

// RequireAuth returns a middleware that requires a valid JWT token.
func RequireAuth(validator JWTValidator) gin.HandlerFunc {
	return Auth(validator, false)
}

// OptionalAuth returns a middleware that optionally validates JWT tokens.
func OptionalAuth(validator JWTValidator) gin.HandlerFunc {
	return Auth(validator, true)
}

// extractBearerToken extracts the bearer token from the Authorization header.
func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader(AuthorizationHeader)
	if authHeader == "" {
		return ""
	}

	if strings.HasPrefix(authHeader, BearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, BearerPrefix))
	}

	return ""
}

// GetSubject returns the token subject from context.
// Returns empty string if not found.
func GetSubject(c *gin.Context) string {
	return c.GetString(SubjectKey)
}

// IsAuthenticated returns true if a bearer token was accepted.
func IsAuthenticated(c *gin.Context) bool {
	return GetSubject(c) != ""
}
