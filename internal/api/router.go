// Package api exposes assessments, form sessions, batch uploads and the chatbot over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Skufu/cardiorisk/internal/batch"
	"github.com/Skufu/cardiorisk/internal/chatbot"
	"github.com/Skufu/cardiorisk/internal/form"
	"github.com/Skufu/cardiorisk/internal/history"
	"github.com/Skufu/cardiorisk/internal/model"
	"github.com/Skufu/cardiorisk/internal/override"
)

// HealthChecker is a dependency probed by /readyz.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Assessor runs one complete assessment.
type Assessor interface {
	Assess(ctx context.Context, in model.ClinicalInput) (*model.Assessment, error)
	Rules() []override.Rule
}

// Deps are the collaborators the router serves. A nil History or Model is
// reported as disabled by /readyz.
type Deps struct {
	Assessor     Assessor
	Sessions     *form.Manager
	Batch        *batch.Runner
	History      history.Store
	Bot          *chatbot.Bot
	Model        HealthChecker
	MaxBodyBytes int64
	CORSOrigins  []string
	Logger       *zap.Logger
}

type handler struct {
	Deps
	log *zap.Logger
}

// NewRouter wires every route onto a fresh gin engine.
func NewRouter(d Deps) *gin.Engine {
	h := &handler{Deps: d, log: d.Logger}
	if h.log == nil {
		h.log = zap.L()
	}
	maxBody := d.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 5 << 20
	}
	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := gin.New()
	router.Use(
		requestLogger(h.log),
		gin.Recovery(),
		limitBodySize(maxBody),
		cors.New(cors.Config{
			AllowOrigins: origins,
			AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
			MaxAge:       12 * time.Hour,
		}),
	)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/readyz", h.ready)

	api := router.Group("/api")
	api.POST("/assess", h.assess)
	api.POST("/symptoms", h.symptoms)
	api.POST("/batch", h.batch)
	api.GET("/history", h.history)
	api.POST("/report", h.report)
	api.POST("/chat", h.chat)
	api.GET("/rules", h.rules)
	api.GET("/fields", h.fields)

	sessions := api.Group("/sessions")
	sessions.POST("", h.createSession)
	sessions.GET("/:id", h.getSession)
	sessions.DELETE("/:id", h.deleteSession)
	sessions.PUT("/:id/fields/:field", h.editField)
	sessions.POST("/:id/advance", h.advance)
	sessions.POST("/:id/retreat", h.retreat)
	sessions.POST("/:id/retry", h.retry)
	sessions.POST("/:id/reset", h.reset)

	return router
}

func (h *handler) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := gin.H{"status": "ok", "history": "ok", "model": "ok"}

	if h.History == nil {
		body["history"] = "disabled"
	} else if err := h.History.Ping(ctx); err != nil {
		status = http.StatusServiceUnavailable
		body["history"] = fmt.Sprintf("unhealthy: %v", err)
	}
	if h.Model == nil {
		body["model"] = "disabled"
	} else if err := h.Model.Ping(ctx); err != nil {
		status = http.StatusServiceUnavailable
		body["model"] = fmt.Sprintf("unhealthy: %v", err)
	}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	c.JSON(status, body)
}

func limitBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			log.Warn("request", fields...)
		default:
			log.Debug("request", fields...)
		}
	}
}
