package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/datavtar/localfirst/internal/ai"
	"github.com/datavtar/localfirst/internal/kv"
	"github.com/datavtar/localfirst/internal/service"
	"github.com/datavtar/localfirst/internal/store"
	"github.com/datavtar/localfirst/internal/transfer"
)

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	var (
		pe  *transfer.ParseError
		ve  transfer.ValidationError
		per *store.PersistenceError
		ae  *service.AIError
		aue *ai.AuthError
		ne  *ai.NetworkError
	)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrDuplicateID):
		return http.StatusConflict
	case errors.Is(err, store.ErrMissingID), errors.As(err, &pe):
		return http.StatusBadRequest
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity
	case errors.Is(err, kv.ErrQuotaExceeded), errors.As(err, &per):
		return http.StatusInsufficientStorage
	case errors.As(err, &ae), errors.As(err, &aue), errors.As(err, &ne):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as a plain text response.
func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusOf(err))
}

// writeJSON encodes v with status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
