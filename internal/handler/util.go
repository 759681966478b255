// Package handler implements the HTTP endpoints of the canvas API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/contexttree/canvas-api/internal/llm"
	"github.com/contexttree/canvas-api/internal/middleware"
	"github.com/contexttree/canvas-api/internal/model"
	"github.com/contexttree/canvas-api/internal/prompt"
	"github.com/contexttree/canvas-api/internal/service"
	"github.com/contexttree/canvas-api/internal/versioning"
	"github.com/contexttree/canvas-api/pkg/logger"
)

const maxBodyBytes = 1 << 20

var validate = middleware.NewValidator()

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, model.ErrorResponse{Error: message})
}

// writeErrorDetails writes a JSON error response with details.
func writeErrorDetails(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, model.ErrorResponse{Error: message, Details: details})
}

// decode reads a JSON body into v and validates it.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body", middleware.ErrValidation)
	}
	return validate.Struct(v)
}

// statusFor maps service errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, middleware.ErrValidation),
		errors.Is(err, service.ErrInvalidMessage),
		errors.Is(err, service.ErrInvalidConnection),
		errors.Is(err, prompt.ErrTemplateNotFound),
		errors.Is(err, versioning.ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrCanvasNotFound),
		errors.Is(err, service.ErrNodeNotFound),
		errors.Is(err, service.ErrConnectionNotFound),
		errors.Is(err, versioning.ErrVersionNotFound),
		errors.Is(err, versioning.ErrBranchNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNodeExists),
		errors.Is(err, versioning.ErrBranchExists),
		errors.Is(err, versioning.ErrProtectedBranch):
		return http.StatusConflict
	case errors.Is(err, service.ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, llm.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with its mapped status. Client errors echo the
// error text; server errors are logged and answered with fallback.
func respondError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error, fallback string) {
	status := statusFor(err)
	if status < http.StatusInternalServerError {
		writeError(w, status, err.Error())
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}

	log.WithRequest(middleware.GetCorrelationID(r.Context()), middleware.GetUserID(r.Context())).
		Error(fallback, zap.Int("status", status), zap.Error(err))
	writeError(w, status, fallback)
}

// validIDs validates path parameters given as kind, id pairs.
func validIDs(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if err := middleware.ValidateID(pairs[i], pairs[i+1]); err != nil {
			return err
		}
	}
	return nil
}
