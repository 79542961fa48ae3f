package handlers

import (
	"errors"
	"net/http"

	"github.com/longevity/longevity-backend/services"
	"github.com/longevity/longevity-backend/utils"
	"go.uber.org/zap"
)

// StatusForError returns the HTTP status for a domain error
func StatusForError(err error) int {
	switch {
	case services.IsValidationError(err):
		return http.StatusBadRequest
	case services.IsNotFoundError(err):
		return http.StatusNotFound
	case services.IsUpstreamUnavailableError(err):
		return http.StatusServiceUnavailable
	case services.IsGenerationRefusedError(err):
		return http.StatusBadGateway
	default:
		// dimension mismatch is a deployment fault, not a client one
		return http.StatusInternalServerError
	}
}

// HandleServiceError maps domain errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	status := StatusForError(err)
	errType := services.GetErrorType(err)

	var writeErr error
	switch {
	case services.IsValidationError(err):
		writeErr = utils.WriteBadRequest(w, messageOf(err), services.GetErrorDetails(err))

	case services.IsNotFoundError(err):
		writeErr = utils.WriteNotFound(w, messageOf(err))

	case services.IsUpstreamUnavailableError(err):
		writeErr = utils.WriteError(w, status, "Servizio esterno non disponibile, riprova più tardi", nil)

	case services.IsGenerationRefusedError(err):
		writeErr = utils.WriteError(w, status, "Il modello non ha fornito una risposta", nil)

	case services.IsDimensionMismatchError(err):
		// Log configuration faults but return generic message
		logger.Error("embedding dimension does not match the index", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "Errore di configurazione del servizio")

	case services.IsInternalError(err):
		logger.Error("internal server error", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "Errore interno del server")

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(errType)))
		writeErr = utils.WriteInternalServerError(w, "Errore interno del server")
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Int("status", status), zap.Error(writeErr))
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{}, len(fields))
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}

// messageOf returns the message of a domain error without its type prefix
func messageOf(err error) string {
	var domainErr *services.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return err.Error()
}
