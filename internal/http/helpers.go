package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"dobkap/internal/core"
	"dobkap/internal/log"
)

// maxBodyBytes bounds request bodies, manual reports included.
const maxBodyBytes = 10 << 20

// badRequestError marks input the handler rejected before reaching the store.
type badRequestError struct {
	core.ErrorMessage
}

func badRequest(format string, args ...any) error {
	return &badRequestError{ErrorMessage: core.ErrorMessage{Message: fmt.Sprintf(format, args...)}}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var (
		badReq    *badRequestError
		formatErr *core.FormatError
	)
	switch {
	case errors.As(err, &badReq):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrInvalidFormat),
		errors.Is(err, core.ErrInvalidPattern),
		errors.Is(err, core.ErrInvalidKind),
		errors.Is(err, core.ErrInvalidStatus),
		errors.Is(err, core.ErrInvalidMailboxPort):
		return http.StatusBadRequest
	case errors.As(err, &formatErr):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// fail writes err with its mapped status. Server errors are logged and
// their detail withheld from the client.
func fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.FromContext(r.Context()).Error("Request failed", log.FieldOperation, op, log.FieldError, err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, badRequest("read request body: %v", err)
	}
	return body, nil
}

// pathID parses the {id} URL parameter as a positive integer.
func pathID(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "id"))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, badRequest("invalid id %q", raw)
	}
	return id, nil
}
