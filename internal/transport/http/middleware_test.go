package httptransport

import (
	"net/http"
	"net/http/httptest"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"
)

func protected(key string) http.Handler {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return KeyAuthMiddleware(key)(ok)
}

func TestKeyAuthMiddlewareRejectsMissingKey(t *testing.T) {
	rec := httptest.NewRecorder()
	protected("secret").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestKeyAuthMiddlewareAcceptsHeaderKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	protected("secret").ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
}

func TestKeyAuthMiddlewareAcceptsBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	protected("secret").ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
}

func TestKeyAuthMiddlewareRejectsWrongBearer(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	protected("secret").ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestKeyAuthMiddlewareOpenWhenUnconfigured(t *testing.T) {
	rec := httptest.NewRecorder()
	protected("").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204 when no key configured", rec.Code)
	}
}

func TestRequestIDHeaderOnSuccessResponses(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	rec := httptest.NewRecorder()
	chimw.RequestID(RequestIDHeader(handler)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("X-Request-Id header empty, want populated on success responses")
	}
}

func TestRequestIDHeaderOnBodylessResponses(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	rec := httptest.NewRecorder()
	chimw.RequestID(RequestIDHeader(handler)).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/evaluate/renew", nil))

	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("X-Request-Id header empty, want populated on 204 responses")
	}
}

func TestParsePaginationClampsBounds(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=9999&offset=-3", nil)
	limit, offset := ParsePagination(req)
	if limit != 500 || offset != 0 {
		t.Fatalf("ParsePagination() = (%d, %d), want (500, 0)", limit, offset)
	}
}
