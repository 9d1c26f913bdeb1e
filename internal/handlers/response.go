package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Brownie44l1/dog-breed-api/internal/model"
)

// PredictResponse is the body of POST /api/v1/predict. Exactly one of
// Prediction and Error is set.
type PredictResponse struct {
	Success    bool            `json:"success"`
	Prediction *PredictionData `json:"prediction,omitempty"`
	Error      *ErrorInfo      `json:"error,omitempty"`
	Meta       MetaInfo        `json:"meta"`
}

// PredictionData is the breed picked for one uploaded file.
type PredictionData struct {
	Breed    string  `json:"breed"`
	Class    int     `json:"class"`
	Score    float32 `json:"score"`
	Filename string  `json:"filename"`
}

type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MetaInfo carries the request id and the classifier status after the call,
// so a client can tell a rejected upload from an unusable model.
type MetaInfo struct {
	RequestID  string `json:"request_id"`
	Timestamp  string `json:"timestamp"`
	Classifier string `json:"classifier"`
}

func (h *Handler) meta(c *gin.Context) MetaInfo {
	requestID := c.GetString("request_id")
	if requestID == "" {
		requestID = uuid.New().String()
	}

	h.mu.Lock()
	status := h.classifier.Status()
	h.mu.Unlock()

	return MetaInfo{
		RequestID:  requestID,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Classifier: status.String(),
	}
}

func (h *Handler) respondPrediction(c *gin.Context, filename string, pred model.Prediction) {
	c.JSON(http.StatusOK, PredictResponse{
		Success: true,
		Prediction: &PredictionData{
			Breed:    pred.Label,
			Class:    pred.Index,
			Score:    pred.Score,
			Filename: filename,
		},
		Meta: h.meta(c),
	})
}

func (h *Handler) respondError(c *gin.Context, resp ErrorResponse) {
	c.JSON(resp.StatusCode, PredictResponse{
		Success: false,
		Error: &ErrorInfo{
			Code:    resp.Code,
			Message: resp.Message,
		},
		Meta: h.meta(c),
	})
}
