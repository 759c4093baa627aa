// Package middleware holds cross-cutting HTTP middleware for the engine.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// OperatorClaims are the claims required on operator tokens. Circuit reset is
// an elevated-privilege operation; the token must carry the operator role.
type OperatorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type contextKeyOperator struct{}

// OperatorFrom retrieves the authenticated operator identity from the
// context.
func OperatorFrom(ctx context.Context) string {
	operator, _ := ctx.Value(contextKeyOperator{}).(string)
	return operator
}

// RequireOperator validates the bearer token and requires the operator role.
func RequireOperator(signingKey string, logger *slog.Logger) func(http.Handler) http.Handler {
	key := []byte(signingKey)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				http.Error(w, "operator token required", http.StatusUnauthorized)
				return
			}

			claims := &OperatorClaims{}
			parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return key, nil
			})
			if err != nil || !parsed.Valid {
				logger.Warn("operator token rejected", "error", err)
				http.Error(w, "invalid operator token", http.StatusUnauthorized)
				return
			}
			if claims.Role != "operator" {
				http.Error(w, "operator role required", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), contextKeyOperator{}, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
