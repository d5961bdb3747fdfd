package handlers

import (
	"errors"
	"fmt"
	"image"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/penglongli/gin-metrics/ginmetrics"
	log "github.com/sirupsen/logrus"

	"github.com/Brownie44l1/beauty-api/internal/model"
	"github.com/Brownie44l1/beauty-api/internal/preprocess"
	"github.com/Brownie44l1/beauty-api/internal/registry"
)

const (
	serviceName    = "Beauty Score Inference API"
	serviceVersion = "1.0.0"

	predictionsMetric = "beauty_predictions_total"
)

// Scorer is the part of model.Service the handlers use.
type Scorer interface {
	ScoreBase64(encoded, modelPath string) (float64, error)
	ScoreImage(img image.Image, modelPath string) (float64, error)
	Health() error
	DefaultModel() string
	Loaded() []string
}

// Lister lists registered models.
type Lister interface {
	List() ([]registry.Record, error)
}

type Handler struct {
	scorer  Scorer
	models  Lister
	metrics bool
}

// NewHandler serves scorer; models may be nil when no registry is available.
func NewHandler(scorer Scorer, models Lister) *Handler {
	return &Handler{scorer: scorer, models: models}
}

func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": serviceName, "version": serviceVersion})
}

// Health reports whether the default model can be loaded.
func (h *Handler) Health(c *gin.Context) {
	if err := h.scorer.Health(); err != nil {
		requestLogger(c).WithError(err).Warn("Health check failed")
		c.JSON(http.StatusOK, gin.H{"status": "unhealthy", "model_loaded": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "model_loaded": true, "model": h.scorer.DefaultModel()})
}

func (h *Handler) Predict(c *gin.Context) {
	var req model.PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err))
		return
	}
	score, err := h.scorer.ScoreBase64(req.Image, req.ModelPath)
	h.respond(c, score, err)
}

// PredictFromImage scores a multipart upload in the "image" field.
func (h *Handler) PredictFromImage(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		h.fail(c, http.StatusBadRequest, "No image file provided. Use 'image' as the form field name")
		return
	}
	f, err := file.Open()
	if err != nil {
		h.fail(c, http.StatusBadRequest, "Failed to read upload")
		return
	}
	defer f.Close()

	img, format, err := preprocess.Decode(f)
	if err != nil {
		h.fail(c, http.StatusBadRequest, "Invalid image format. Supported: JPEG, PNG, WebP")
		return
	}
	requestLogger(c).WithFields(log.Fields{
		"file":   file.Filename,
		"size":   file.Size,
		"format": format,
		"width":  img.Bounds().Dx(),
		"height": img.Bounds().Dy(),
	}).Debug("Received upload")

	score, err := h.scorer.ScoreImage(img, c.PostForm("model_path"))
	h.respond(c, score, err)
}

// Models lists registered models and the ones currently loaded.
func (h *Handler) Models(c *gin.Context) {
	records := []registry.Record{}
	if h.models != nil {
		list, err := h.models.List()
		if err != nil {
			requestLogger(c).WithError(err).Error("Failed to list models")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read model registry"})
			return
		}
		records = append(records, list...)
	}
	loaded := h.scorer.Loaded()
	if loaded == nil {
		loaded = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"models": records, "loaded": loaded, "default": h.scorer.DefaultModel()})
}

func (h *Handler) respond(c *gin.Context, score float64, err error) {
	if err != nil {
		status, msg := statusOf(err)
		if status == http.StatusInternalServerError {
			requestLogger(c).WithError(err).Error("Prediction error")
		} else {
			requestLogger(c).WithError(err).Info("Prediction rejected")
		}
		h.fail(c, status, msg)
		return
	}
	h.count(http.StatusOK)
	c.JSON(http.StatusOK, model.PredictResponse{Score: score, Success: true, Message: "Prediction successful"})
}

func (h *Handler) fail(c *gin.Context, status int, msg string) {
	h.count(status)
	c.JSON(status, model.PredictResponse{Success: false, Message: msg})
}

func (h *Handler) count(status int) {
	if !h.metrics {
		return
	}
	if err := ginmetrics.GetMonitor().GetMetric(predictionsMetric).Inc([]string{fmt.Sprintf("%d", status)}); err != nil {
		log.WithError(err).Debug("Failed to count prediction")
	}
}

// statusOf maps service errors onto HTTP statuses and client messages.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrModelNotFound):
		return http.StatusNotFound, fmt.Sprintf("Model file not found: %v", err)
	case errors.Is(err, model.ErrInvalidInput):
		return http.StatusBadRequest, fmt.Sprintf("Invalid image data: %v", err)
	default:
		return http.StatusInternalServerError, fmt.Sprintf("Prediction failed: %v", err)
	}
}
