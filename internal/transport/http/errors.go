package httptransport

import (
	"errors"
	"net/http"

	"kibotos/internal/admission"
	"kibotos/internal/store"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// Error codes surfaced to callers. Client-attributable failures map
// 1:1 onto admission/store sentinels; everything else is INTERNAL.
const (
	CodeBadSignature  = "BAD_SIGNATURE"
	CodeDuplicate     = "DUPLICATE"
	CodeRateLimited   = "RATE_LIMITED"
	CodeUnknownPrompt = "UNKNOWN_PROMPT"
	CodeNoOpenCycle   = "NO_OPEN_CYCLE"
	CodeValidation    = "VALIDATION"
	CodeLeaseLost     = "LEASE_LOST"
	CodeWrongState    = "WRONG_STATE"
	CodeHasPending    = "HAS_PENDING"
	CodeNotFound      = "NOT_FOUND"
	CodeInternal      = "INTERNAL"
)

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	WriteJSON(w, status, errorBody{
		Code:      code,
		Message:   message,
		RequestID: chimw.GetReqID(r.Context()),
	})
}

// WriteDomainError translates a service-layer error into the HTTP
// error taxonomy. Unrecognized errors are logged and surfaced as an
// opaque 500.
func WriteDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, admission.ErrSchema):
		WriteError(w, r, http.StatusBadRequest, CodeValidation, err.Error())
	case errors.Is(err, admission.ErrBadSignature):
		WriteError(w, r, http.StatusUnauthorized, CodeBadSignature, "signature verification failed")
	case errors.Is(err, admission.ErrDuplicate), errors.Is(err, store.ErrDuplicate):
		WriteError(w, r, http.StatusConflict, CodeDuplicate, "video already submitted")
	case errors.Is(err, admission.ErrRateLimited), errors.Is(err, store.ErrRateLimited):
		WriteError(w, r, http.StatusTooManyRequests, CodeRateLimited, "submission rate limit exceeded")
	case errors.Is(err, admission.ErrPromptUnknown), errors.Is(err, store.ErrUnknownPrompt):
		WriteError(w, r, http.StatusNotFound, CodeUnknownPrompt, "prompt not found or inactive")
	case errors.Is(err, admission.ErrNoOpenCycle), errors.Is(err, store.ErrNoOpenCycle):
		WriteError(w, r, http.StatusConflict, CodeNoOpenCycle, "no collection cycle is open")
	case errors.Is(err, store.ErrLeaseLost):
		WriteError(w, r, http.StatusConflict, CodeLeaseLost, "lease no longer held")
	case errors.Is(err, store.ErrWrongState):
		WriteError(w, r, http.StatusConflict, CodeWrongState, "cycle is not in the required state")
	case errors.Is(err, store.ErrHasPending):
		WriteError(w, r, http.StatusConflict, CodeHasPending, "cycle still has unevaluated submissions")
	case errors.Is(err, store.ErrNotFound):
		WriteError(w, r, http.StatusNotFound, CodeNotFound, "not found")
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		WriteError(w, r, http.StatusInternalServerError, CodeInternal, "internal error")
	}
}
