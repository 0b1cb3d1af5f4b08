// Package auth guards function endpoints with a shared function key or an
// HMAC-signed JWT.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/promptfunc/promptfunc/internal/logging"
)

// FunctionKeyHeader carries the shared function key.
const FunctionKeyHeader = "x-functions-key"

type contextKey string

const claimsContextKey contextKey = "claims"

// Claims holds JWT token claims.
type Claims struct {
	jwt.RegisteredClaims
}

// Auth validates function keys and bearer tokens.
type Auth struct {
	functionKey []byte
	secret      []byte
}

// New creates an Auth. With both values empty every request is allowed.
func New(functionKey, jwtSecret string) *Auth {
	return &Auth{
		functionKey: []byte(functionKey),
		secret:      []byte(jwtSecret),
	}
}

// Enabled reports whether any credential is configured.
func (a *Auth) Enabled() bool {
	return len(a.functionKey) > 0 || len(a.secret) > 0
}

// Middleware rejects requests that carry neither a valid function key nor a valid token.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		if key := extractFunctionKey(r); key != "" && len(a.functionKey) > 0 {
			if subtle.ConstantTimeCompare([]byte(key), a.functionKey) == 1 {
				next.ServeHTTP(w, r)
				return
			}
			sendAuthError(w, http.StatusUnauthorized, "invalid function key")
			return
		}

		tokenStr := extractToken(r)
		if tokenStr == "" || len(a.secret) == 0 {
			sendAuthError(w, http.StatusUnauthorized, "missing credentials")
			return
		}

		claims, err := a.ValidateToken(tokenStr)
		if err != nil {
			logging.WithContext(r.Context()).Debug("token rejected", zap.Error(err))
			sendAuthError(w, http.StatusUnauthorized, "invalid token: "+err.Error())
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClaims extracts token claims from the request context.
func GetClaims(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsContextKey).(*Claims)
	return claims
}

// ValidateToken parses tokenStr and checks its HMAC signature and expiry.
func (a *Auth) ValidateToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

func extractFunctionKey(r *http.Request) string {
	if key := r.Header.Get(FunctionKeyHeader); key != "" {
		return key
	}
	return r.URL.Query().Get("code")
}

func extractToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func sendAuthError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"error": message,
		"code":  code,
	})
}
