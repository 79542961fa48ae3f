package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/longevity/longevity-backend/services"
	"github.com/longevity/longevity-backend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestHandleServiceError(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedError  string
		expectedDetail string
	}{
		{
			name:           "no evidence",
			err:            services.ErrNoEvidence,
			expectedStatus: http.StatusNotFound,
			expectedError:  "not_found",
			expectedDetail: "Nessun documento rilevante trovato",
		},
		{
			name:           "validation error",
			err:            services.ErrEmptyQuestion,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "bad_request",
			expectedDetail: "question cannot be empty",
		},
		{
			name:           "upstream unavailable",
			err:            services.WrapUpstream("vector store query failed", errors.New("dial tcp")),
			expectedStatus: http.StatusServiceUnavailable,
			expectedError:  "service_unavailable",
		},
		{
			name:           "generation refused",
			err:            services.WrapRefused("model refused to answer", nil),
			expectedStatus: http.StatusBadGateway,
			expectedError:  "bad_gateway",
		},
		{
			name:           "dimension mismatch",
			err:            services.WrapDimensionMismatch(1024, 1536),
			expectedStatus: http.StatusInternalServerError,
			expectedError:  "internal_error",
		},
		{
			name:           "internal error",
			err:            services.ErrInternal,
			expectedStatus: http.StatusInternalServerError,
			expectedError:  "internal_error",
		},
		{
			name:           "non-domain error",
			err:            errors.New("boom"),
			expectedStatus: http.StatusInternalServerError,
			expectedError:  "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			HandleServiceError(w, tt.err, logger)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.expectedStatus, StatusForError(tt.err))

			var response utils.ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.Equal(t, tt.expectedError, response.Error)
			if tt.expectedDetail != "" {
				assert.Equal(t, tt.expectedDetail, response.Detail)
			}
		})
	}
}

func TestHandleServiceError_Nil(t *testing.T) {
	w := httptest.NewRecorder()

	HandleServiceError(w, nil, zap.NewNop())

	assert.Empty(t, w.Body.String())
}

func TestHandleServiceError_DoesNotLeakInternals(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	w := httptest.NewRecorder()

	HandleServiceError(w, services.WrapInternal("query pipeline failed", errors.New("secret dsn")), zap.New(core))

	assert.NotContains(t, w.Body.String(), "secret dsn")
	assert.Equal(t, 1, logs.FilterMessage("internal server error").Len())
}

func TestHandleValidationError(t *testing.T) {
	t.Run("structured validation error", func(t *testing.T) {
		type body struct {
			Question string `json:"question" validate:"required"`
		}
		err := utils.ValidateStruct(&body{})
		w := httptest.NewRecorder()

		HandleValidationError(w, err, zap.NewNop())

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var response utils.ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "Validation failed", response.Detail)
		assert.Equal(t, "question is required", response.Details["question"])
	})

	t.Run("generic error", func(t *testing.T) {
		w := httptest.NewRecorder()

		HandleValidationError(w, errors.New("bad input"), zap.NewNop())

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var response utils.ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "bad input", response.Detail)
	})
}
