package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/droplets-realm/api/internal/auth"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// UserContextKey is the key for storing user claims in request context
	UserContextKey contextKey = "user"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// TokenValidator validates bearer tokens issued by the auth service
type TokenValidator interface {
	Validate(tokenString string) (*auth.CustomClaims, error)
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message, Code: "UNAUTHORIZED"})
}

// RequireAuth returns a middleware that validates JWT tokens
func RequireAuth(validator TokenValidator) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			// Extract token from Authorization header
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w, "Missing authorization header")
				return
			}

			// Check if header has Bearer prefix
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				unauthorized(w, "Invalid authorization header format. Use: Bearer <token>")
				return
			}

			claims, err := validator.Validate(parts[1])
			if err != nil {
				unauthorized(w, "Invalid or expired token")
				return
			}

			// Add claims to request context
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		}
	}
}

// WithClaims stores claims in ctx
func WithClaims(ctx context.Context, claims *auth.CustomClaims) context.Context {
	return context.WithValue(ctx, UserContextKey, claims)
}

// GetUserClaims extracts user claims from request context
func GetUserClaims(r *http.Request) (*auth.CustomClaims, bool) {
	claims, ok := r.Context().Value(UserContextKey).(*auth.CustomClaims)
	return claims, ok
}
