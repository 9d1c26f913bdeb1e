package handlers

import (
	"bytes"
	"embed"
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Brownie44l1/dog-breed-api/internal/config"
	"github.com/Brownie44l1/dog-breed-api/internal/metrics"
	"github.com/Brownie44l1/dog-breed-api/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

// Templates parses the embedded HTML pages.
func Templates() *template.Template {
	return template.Must(template.ParseFS(templateFS, "templates/*.html"))
}

// Predictor is the part of model.Classifier the handlers use.
type Predictor interface {
	Predict(path string) (model.Prediction, error)
	Status() model.Status
}

type Handler struct {
	// mu serializes access to the classifier, which is not safe for concurrent use.
	mu             sync.Mutex
	classifier     Predictor
	metrics        *metrics.Recorder
	logger         *zap.Logger
	uploadDir      string
	maxUploadBytes int64
}

func NewHandler(classifier Predictor, recorder *metrics.Recorder, logger *zap.Logger, cfg config.ServerConfig) *Handler {
	return &Handler{
		classifier:     classifier,
		metrics:        recorder,
		logger:         logger,
		uploadDir:      cfg.UploadDir,
		maxUploadBytes: cfg.MaxUploadBytes,
	}
}

// Register mounts the page, API and health routes.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/", h.Index)
	r.POST("/", h.Upload)
	r.GET("/health", h.Health)
	r.POST("/api/v1/predict", h.PredictFromImage)
}

// HealthStatus represents the health check response
type HealthStatus struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	h.mu.Lock()
	status := h.classifier.Status()
	h.mu.Unlock()

	if status.Absorbing() {
		c.JSON(http.StatusServiceUnavailable, HealthStatus{
			Status:     "unhealthy",
			Components: map[string]string{"classifier": status.String()},
		})
		return
	}

	c.JSON(http.StatusOK, HealthStatus{
		Status:     "healthy",
		Components: map[string]string{"classifier": "ok"},
	})
}

// Index handles GET / and renders the empty upload form.
func (h *Handler) Index(c *gin.Context) {
	c.HTML(http.StatusOK, "predict.html", gin.H{})
}

// Upload handles POST / from the HTML form ("file" field).
func (h *Handler) Upload(c *gin.Context) {
	header, errResp, ok := h.formFile(c, "file")
	if !ok {
		if errResp.StatusCode == 0 {
			// Empty submit re-renders the form like the GET.
			c.HTML(http.StatusOK, "predict.html", gin.H{})
			return
		}
		c.HTML(errResp.StatusCode, "predict.html", gin.H{"error": errResp.Message})
		return
	}

	pred, data, err := h.predictUpload(c, header)
	if err != nil {
		resp := MapPredictError(err)
		c.HTML(resp.StatusCode, "predict.html", gin.H{
			"error": resp.Message,
			"file":  header.Filename,
		})
		return
	}

	c.HTML(http.StatusOK, "predict.html", gin.H{
		"cls":  pred.Label,
		"file": header.Filename,
		"pic":  dataURI(data),
	})
}

// PredictFromImage handles POST /api/v1/predict with an "image" multipart field.
func (h *Handler) PredictFromImage(c *gin.Context) {
	header, errResp, ok := h.formFile(c, "image")
	if !ok {
		if errResp.StatusCode == 0 {
			errResp = ErrorResponse{
				StatusCode: http.StatusBadRequest,
				Code:       "INVALID_REQUEST",
				Message:    "No image file provided. Use 'image' as the form field name",
			}
		}
		h.respondError(c, errResp)
		return
	}

	pred, _, err := h.predictUpload(c, header)
	if err != nil {
		h.respondError(c, MapPredictError(err))
		return
	}

	h.respondPrediction(c, header.Filename, pred)
}

// formFile reads the named multipart field. A zero StatusCode with ok=false
// means the field was absent.
func (h *Handler) formFile(c *gin.Context, field string) (*multipart.FileHeader, ErrorResponse, bool) {
	if h.maxUploadBytes > 0 {
		// Leave room for the multipart envelope; the file itself is checked below.
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+1<<20)
	}

	header, err := c.FormFile(field)
	if err != nil {
		if err == http.ErrMissingFile {
			return nil, ErrorResponse{}, false
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, tooLargeResponse(h.maxUploadBytes), false
		}
		return nil, ErrorResponse{
			StatusCode: http.StatusBadRequest,
			Code:       "INVALID_REQUEST",
			Message:    "Failed to parse form",
		}, false
	}

	if h.maxUploadBytes > 0 && header.Size > h.maxUploadBytes {
		return nil, tooLargeResponse(h.maxUploadBytes), false
	}

	return header, ErrorResponse{}, true
}

func tooLargeResponse(limit int64) ErrorResponse {
	return ErrorResponse{
		StatusCode: http.StatusRequestEntityTooLarge,
		Code:       "TOO_LARGE",
		Message:    fmt.Sprintf("File too large (max %d bytes)", limit),
	}
}

// predictUpload stores the upload in a temporary file for the duration of one
// Predict call. The file is removed before returning.
func (h *Handler) predictUpload(c *gin.Context, header *multipart.FileHeader) (model.Prediction, []byte, error) {
	requestID := c.GetString("request_id")

	data, err := readUpload(header)
	if err != nil {
		return model.Prediction{}, nil, fmt.Errorf("failed to read upload: %w", err)
	}

	tmp, err := os.CreateTemp(h.uploadDir, "upload-*"+filepath.Ext(header.Filename))
	if err != nil {
		return model.Prediction{}, nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return model.Prediction{}, nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return model.Prediction{}, nil, fmt.Errorf("failed to close temp file: %w", err)
	}

	h.logger.Debug("Received file",
		zap.String("request_id", requestID),
		zap.String("filename", header.Filename),
		zap.Int64("size", header.Size))

	start := time.Now()
	h.mu.Lock()
	pred, err := h.classifier.Predict(tmp.Name())
	h.mu.Unlock()
	elapsed := time.Since(start)

	if err != nil {
		resp := MapPredictError(err)
		h.metrics.Observe(resp.Outcome, "", elapsed)
		if resp.StatusCode >= http.StatusInternalServerError {
			h.logger.Error("Prediction error", zap.String("request_id", requestID), zap.Error(err))
		}
		return model.Prediction{}, nil, err
	}

	h.metrics.Observe(metrics.OutcomeSuccess, pred.Label, elapsed)
	h.logger.Info("Predicted breed",
		zap.String("request_id", requestID),
		zap.String("breed", pred.Label),
		zap.Float32("score", pred.Score),
		zap.Duration("elapsed", elapsed))

	return pred, data, nil
}

func readUpload(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// dataURI inlines the uploaded picture so the page can show it without keeping it on disk.
// The MIME type comes from the decoder that accepted the file.
func dataURI(data []byte) template.URL {
	mime := http.DetectContentType(data)
	if _, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		mime = "image/" + format
	}
	return template.URL("data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data))
}
