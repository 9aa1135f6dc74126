package httpapi

import (
	"errors"
	"net/http"

	"incident-moderation/internal/moderation"
	"incident-moderation/pkg/logger"

	"github.com/gin-gonic/gin"
)

// respond writes a committed result, attaching the audit warning when present.
func respond(c *gin.Context, status int, out any, err error) {
	if err == nil {
		c.JSON(status, out)
		return
	}
	if !moderation.Applied(err) {
		writeError(c, err)
		return
	}
	logger.FromGin(c).Warn("decision applied without audit entry", "err", err)
	c.JSON(status, gin.H{"result": out, "warning": "audit_write_failed"})
}

// writeError maps the moderation error taxonomy onto HTTP. Every status here means "not applied".
func writeError(c *gin.Context, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		logger.FromGin(c).Error("moderation request failed", "code", code, "err", err)
		_ = c.Error(err)
	}
	msg := err.Error()
	if status == http.StatusServiceUnavailable {
		// Storage errors may carry driver details.
		msg = "storage unavailable"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "code": code})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, moderation.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, moderation.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, moderation.ErrFinality):
		return http.StatusConflict, "finality"
	case errors.Is(err, moderation.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, moderation.ErrPartialFailure):
		return http.StatusInternalServerError, "partial_failure"
	default:
		return http.StatusServiceUnavailable, "storage"
	}
}
