package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestIssueAndVerifyToken(t *testing.T) {
	t.Parallel()

	auth := NewStaffAuth(testSecret)

	token, err := auth.IssueToken("staff@embermill.co")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	claims, err := auth.VerifyToken(token)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if claims.Email != "staff@embermill.co" {
		t.Fatalf("unexpected claims email: %s", claims.Email)
	}
}

func TestVerifyToken_WrongSecret(t *testing.T) {
	t.Parallel()

	token, err := NewStaffAuth(testSecret).IssueToken("staff@embermill.co")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	if _, err := NewStaffAuth("another-secret-another-secret-32").VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyToken_Garbage(t *testing.T) {
	t.Parallel()

	if _, err := NewStaffAuth(testSecret).VerifyToken("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	auth := NewStaffAuth(testSecret)
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := StaffFromContext(r.Context())
		if !ok {
			t.Errorf("expected staff claims on context")
		} else if claims.Email != "staff@embermill.co" {
			t.Errorf("unexpected claims email: %s", claims.Email)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("missing token", func(t *testing.T) {
		t.Parallel()

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/staff/orders", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusUnauthorized)
		}
	})

	t.Run("malformed header", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/staff/orders", nil)
		req.Header.Set("Authorization", "Token abc")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusUnauthorized)
		}
	})

	t.Run("valid token", func(t *testing.T) {
		t.Parallel()

		token, err := auth.IssueToken("staff@embermill.co")
		if err != nil {
			t.Fatalf("issue failed: %v", err)
		}

		req := httptest.NewRequest(http.MethodGet, "/staff/orders", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusNoContent)
		}
	})
}
