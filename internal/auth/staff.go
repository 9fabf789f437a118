// Package auth issues and verifies staff access tokens for the fulfillment
// endpoints.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid staff token")

const tokenTTL = 12 * time.Hour

// StaffAuth signs and verifies HMAC staff tokens. The secret is shared
// between the server and the token-issuing CLI.
type StaffAuth struct {
	secret []byte
}

func NewStaffAuth(secret string) *StaffAuth {
	return &StaffAuth{secret: []byte(secret)}
}

// StaffClaims identifies the staff member acting on orders.
type StaffClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// IssueToken mints a short-lived staff token.
func (a *StaffAuth) IssueToken(email string) (string, error) {
	now := time.Now()
	claims := StaffClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// VerifyToken parses and validates a staff token.
func (a *StaffAuth) VerifyToken(tokenString string) (*StaffClaims, error) {
	claims := &StaffClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

type staffContextKey struct{}

// StaffFromContext returns the verified staff claims, if any.
func StaffFromContext(ctx context.Context) (*StaffClaims, bool) {
	claims, ok := ctx.Value(staffContextKey{}).(*StaffClaims)
	return claims, ok
}

// Middleware rejects requests without a valid bearer token and stores the
// verified claims on the request context.
func (a *StaffAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		claims, err := a.VerifyToken(tokenString)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), staffContextKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
