package handlers

import (
	"errors"
	"net/http"

	"github.com/Brownie44l1/dog-breed-api/internal/metrics"
	"github.com/Brownie44l1/dog-breed-api/internal/model"
)

// ErrorResponse is the HTTP view of a prediction error.
type ErrorResponse struct {
	StatusCode int
	Code       string
	Message    string
	Outcome    string
}

// MapPredictError maps classifier errors to HTTP error responses.
func MapPredictError(err error) ErrorResponse {
	switch {
	case errors.Is(err, model.ErrWrongFormat):
		return ErrorResponse{
			StatusCode: http.StatusBadRequest,
			Code:       "WRONG_FORMAT",
			Message:    "Wrong file format",
			Outcome:    metrics.OutcomeWrongFormat,
		}
	case errors.Is(err, model.ErrMissingLabels):
		return ErrorResponse{
			StatusCode: http.StatusServiceUnavailable,
			Code:       "MODEL_UNAVAILABLE",
			Message:    "No dogs file",
			Outcome:    metrics.OutcomeUnavailable,
		}
	case errors.Is(err, model.ErrMissingWeights):
		return ErrorResponse{
			StatusCode: http.StatusServiceUnavailable,
			Code:       "MODEL_UNAVAILABLE",
			Message:    "No model file",
			Outcome:    metrics.OutcomeUnavailable,
		}
	default:
		return ErrorResponse{
			StatusCode: http.StatusInternalServerError,
			Code:       "INTERNAL_ERROR",
			Message:    "Prediction failed",
			Outcome:    metrics.OutcomeError,
		}
	}
}
