package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"kibotos/internal/admission"
	"kibotos/internal/store"

	chimw "github.com/go-chi/chi/v5/middleware"
)

func TestWriteDomainErrorMapsSentinels(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{admission.ErrSchema, http.StatusBadRequest, CodeValidation},
		{admission.ErrBadSignature, http.StatusUnauthorized, CodeBadSignature},
		{store.ErrDuplicate, http.StatusConflict, CodeDuplicate},
		{store.ErrRateLimited, http.StatusTooManyRequests, CodeRateLimited},
		{store.ErrUnknownPrompt, http.StatusNotFound, CodeUnknownPrompt},
		{store.ErrNoOpenCycle, http.StatusConflict, CodeNoOpenCycle},
		{store.ErrLeaseLost, http.StatusConflict, CodeLeaseLost},
		{store.ErrWrongState, http.StatusConflict, CodeWrongState},
		{store.ErrHasPending, http.StatusConflict, CodeHasPending},
		{store.ErrNotFound, http.StatusNotFound, CodeNotFound},
		{errors.New("boom"), http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/v1/test", nil)
		WriteDomainError(rec, req, tt.err)

		if rec.Code != tt.wantStatus {
			t.Errorf("WriteDomainError(%v) status = %d, want %d", tt.err, rec.Code, tt.wantStatus)
		}
		var body errorBody
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.Code != tt.wantCode {
			t.Errorf("WriteDomainError(%v) code = %q, want %q", tt.err, body.Code, tt.wantCode)
		}
	}
}

func TestWriteErrorIncludesRequestID(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/test", nil)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusBadRequest, CodeValidation, "bad input")
	})
	// RequestID middleware populates the context like the real router.
	chimw.RequestID(handler).ServeHTTP(rec, req)

	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.RequestID == "" {
		t.Fatal("RequestID empty, want populated from middleware")
	}
}
