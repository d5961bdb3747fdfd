package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/penglongli/gin-metrics/ginmetrics"
	log "github.com/sirupsen/logrus"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

type RouterOptions struct {
	// CORSOrigins are allowed cross-origin callers; "*" allows any.
	CORSOrigins []string
	// Metrics exposes Prometheus metrics on /metrics. The monitor is process
	// global, so only one router per process should enable it.
	Metrics bool
}

func NewRouter(h *Handler, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.MaxMultipartMemory = 10 << 20
	r.Use(gin.Recovery(), requestID(), accessLog(), enableCORS(opts.CORSOrigins))

	if opts.Metrics {
		monitor := ginmetrics.GetMonitor()
		monitor.SetMetricPath("/metrics")
		monitor.Use(r)
		err := monitor.AddMetric(&ginmetrics.Metric{
			Type:        ginmetrics.Counter,
			Name:        predictionsMetric,
			Description: "prediction requests by response status.",
			Labels:      []string{"status_code"},
		})
		if err != nil {
			log.WithError(err).Warn("Failed to register prediction metric")
		} else {
			h.metrics = true
		}
	}

	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/models", h.Models)
	r.POST("/predict", h.Predict)
	r.POST("/predict/image", h.PredictFromImage)
	return r
}

func enableCORS(origins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.TrimRight(o, "/")] = true
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowed["*"] || allowed[origin]) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, "+requestIDHeader)
			c.Header("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		requestLogger(c).WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
		}).Debug("Handled request")
	}
}

func requestLogger(c *gin.Context) *log.Entry {
	return log.WithField(requestIDKey, c.GetString(requestIDKey))
}
