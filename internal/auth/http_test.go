// ABOUTME: Tests for the HTTP authentication middleware
// ABOUTME: Covers bearer headers, the websocket query-param fallback, and rejections

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newProtectedHandler(t *testing.T, verifier TokenVerifier) (http.Handler, *string) {
	t.Helper()
	var seenUserID string
	handler := Middleware(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := FromContext(r.Context())
		if id == nil {
			t.Error("handler reached without Identity in context")
			return
		}
		seenUserID = id.UserID
		w.WriteHeader(http.StatusOK)
	}))
	return handler, &seenUserID
}

func TestMiddleware_ValidBearerToken(t *testing.T) {
	verifier := NewJWTVerifier([]byte("test-secret"))
	handler, seenUserID := newProtectedHandler(t, verifier)

	token, err := verifier.Generate("user-abc", time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if *seenUserID != "user-abc" {
		t.Errorf("handler saw user %q, want %q", *seenUserID, "user-abc")
	}
}

func TestMiddleware_QueryParamFallback(t *testing.T) {
	verifier := NewJWTVerifier([]byte("test-secret"))
	handler, seenUserID := newProtectedHandler(t, verifier)

	token, err := verifier.Generate("user-ws", time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/conversations/c1/subscribe?access_token="+token, nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if *seenUserID != "user-ws" {
		t.Errorf("handler saw user %q, want %q", *seenUserID, "user-ws")
	}
}

func TestMiddleware_HeaderTakesPrecedenceOverQueryParam(t *testing.T) {
	verifier := NewJWTVerifier([]byte("test-secret"))
	handler, seenUserID := newProtectedHandler(t, verifier)

	headerToken, _ := verifier.Generate("user-header", time.Hour)
	queryToken, _ := verifier.Generate("user-query", time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/api/conversations?access_token="+queryToken, nil)
	req.Header.Set("Authorization", "Bearer "+headerToken)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if *seenUserID != "user-header" {
		t.Errorf("handler saw user %q, want %q", *seenUserID, "user-header")
	}
}

func TestMiddleware_Rejections(t *testing.T) {
	verifier := NewJWTVerifier([]byte("test-secret"))

	expired, _ := verifier.Generate("user-abc", -time.Hour)
	wrongSecret, _ := NewJWTVerifier([]byte("other-secret")).Generate("user-abc", time.Hour)

	tests := []struct {
		name   string
		header string
		target string
	}{
		{name: "no credentials", target: "/api/conversations"},
		{name: "malformed header", header: "Basic abc123", target: "/api/conversations"},
		{name: "empty bearer", header: "Bearer ", target: "/api/conversations"},
		{name: "expired token", header: "Bearer " + expired, target: "/api/conversations"},
		{name: "wrong secret", header: "Bearer " + wrongSecret, target: "/api/conversations"},
		{name: "garbage query token", target: "/api/conversations?access_token=garbage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := Middleware(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("handler should not be reached")
			}))

			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
			}
		})
	}
}
