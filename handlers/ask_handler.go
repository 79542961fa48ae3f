package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/longevity/longevity-backend/internal/rag"
	"github.com/longevity/longevity-backend/middleware"
	"github.com/longevity/longevity-backend/services"
	"github.com/longevity/longevity-backend/services/query"
	"github.com/longevity/longevity-backend/utils"
	"go.uber.org/zap"
)

// maxAskBodyBytes bounds the request body of POST /ask
const maxAskBodyBytes = 64 << 10

// AskRequest is the body of POST /ask
type AskRequest struct {
	Question string        `json:"question" validate:"required,notblank,max=2000"`
	UserData *rag.UserData `json:"user_data,omitempty" validate:"omitempty"`
}

// AskResponse is the body of a successful POST /ask
type AskResponse struct {
	Answer string `json:"answer"`
}

// QueryService answers questions
type QueryService interface {
	Handle(ctx context.Context, req *query.Request) (*query.Result, error)
}

// AskHandler handles question answering requests
type AskHandler struct {
	service QueryService
	logger  *zap.Logger
}

// NewAskHandler creates a new AskHandler
func NewAskHandler(service QueryService, logger *zap.Logger) *AskHandler {
	return &AskHandler{
		service: service,
		logger:  logger,
	}
}

// HandleAsk handles POST /ask
func (h *AskHandler) HandleAsk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)
	logger := middleware.LoggerFromContext(ctx, h.logger)

	// Parse request body
	var askReq AskRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxAskBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&askReq); err != nil {
		logger.Warn("failed to parse request body", zap.Error(err))
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			_ = utils.WriteError(w, http.StatusRequestEntityTooLarge, "Request body too large", nil)
			return
		}
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	// Validate request
	if err := utils.ValidateStruct(&askReq); err != nil {
		logger.Warn("request validation failed", zap.Error(err))
		HandleValidationError(w, err, h.logger)
		return
	}

	result, err := h.service.Handle(ctx, &query.Request{
		Question:  askReq.Question,
		UserData:  askReq.UserData,
		RequestID: requestID,
	})
	if err != nil {
		logger.Warn("failed to answer question",
			zap.String("error_type", string(services.GetErrorType(err))),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	if result.State == query.StateNoEvidenceFound {
		HandleServiceError(w, services.ErrNoEvidence, h.logger)
		return
	}

	if err := utils.WriteOK(w, AskResponse{Answer: result.Answer.Text}); err != nil {
		logger.Error("failed to write response", zap.Error(err))
	}
}
