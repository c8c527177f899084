package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Skufu/cardiorisk/internal/batch"
	"github.com/Skufu/cardiorisk/internal/clinical"
	"github.com/Skufu/cardiorisk/internal/form"
	"github.com/Skufu/cardiorisk/internal/predict"
)

// errorResponse maps a domain error onto a status and JSON body.
func errorResponse(err error) (int, gin.H) {
	var (
		stepErr   *form.StepError
		netErr    *predict.NetworkError
		svcErr    *predict.ServiceError
		parseErr  *predict.ParseError
		headerErr *batch.HeaderError
	)

	switch {
	case errors.As(err, &stepErr):
		return http.StatusUnprocessableEntity, gin.H{
			"error":  "validation_failed",
			"step":   stepErr.Step,
			"fields": stepErr.Fields,
		}
	case errors.Is(err, clinical.ErrUnknownField):
		return http.StatusBadRequest, gin.H{"error": "unknown_field", "message": err.Error()}
	case len(clinical.FieldErrors(err)) > 0:
		return http.StatusUnprocessableEntity, gin.H{
			"error":  "validation_failed",
			"fields": clinical.FieldErrors(err),
		}
	case errors.As(err, &netErr):
		return predictionFailed("network", err)
	case errors.As(err, &svcErr):
		return predictionFailed("service", err)
	case errors.As(err, &parseErr):
		return predictionFailed("parse", err)
	case errors.Is(err, form.ErrSessionNotFound):
		return http.StatusNotFound, gin.H{"error": "session_not_found"}
	case errors.Is(err, form.ErrSubmitting):
		return http.StatusConflict, gin.H{"error": "submission_in_progress"}
	case errors.Is(err, form.ErrAbandoned):
		return http.StatusConflict, gin.H{"error": "submission_abandoned"}
	case errors.Is(err, form.ErrInvalidState), errors.Is(err, form.ErrFirstStep):
		return http.StatusBadRequest, gin.H{"error": "invalid_state", "message": err.Error()}
	case errors.As(err, &headerErr):
		return http.StatusUnprocessableEntity, gin.H{"error": "invalid_file", "missing": headerErr.Missing}
	case errors.Is(err, batch.ErrEmpty):
		return http.StatusUnprocessableEntity, gin.H{"error": "invalid_file", "message": err.Error()}
	default:
		return http.StatusInternalServerError, gin.H{"error": "internal_error"}
	}
}

func predictionFailed(kind string, err error) (int, gin.H) {
	return http.StatusBadGateway, gin.H{
		"error":     "prediction_failed",
		"kind":      kind,
		"message":   err.Error(),
		"retryable": true,
	}
}

func (h *handler) fail(c *gin.Context, err error) {
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload", "message": msg})
}
