package session

import (
	"context"
	"net/http"
)

type contextKey string

const (
	idCtxKey   contextKey = "session_id"
	dataCtxKey contextKey = "session"
)

// Middleware ensures every storefront request carries a session, creating one
// (and its cart binding) for first-time visitors.
func (m *Manager) Middleware(newCartID func() string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID, data, err := m.GetSession(r.Context(), r)
			if err != nil {
				data = &Data{CartID: newCartID()}
				sessionID, err = m.CreateSession(r.Context(), w, data)
				if err != nil {
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
					return
				}
			}

			ctx := context.WithValue(r.Context(), idCtxKey, sessionID)
			ctx = context.WithValue(ctx, dataCtxKey, data)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FromContext retrieves session data from the request context.
func FromContext(ctx context.Context) *Data {
	if ctx == nil {
		return nil
	}
	data, ok := ctx.Value(dataCtxKey).(*Data)
	if !ok {
		return nil
	}
	return data
}

// IDFromContext retrieves the session ID from the request context.
func IDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, ok := ctx.Value(idCtxKey).(string)
	if !ok {
		return ""
	}
	return id
}
