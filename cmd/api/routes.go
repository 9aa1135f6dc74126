package main

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"incident-moderation/internal/auth"
	"incident-moderation/internal/httpapi"
	"incident-moderation/internal/rbac"
	"incident-moderation/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// Route groups. Keep this file free of business logic; handlers delegate to internal modules.

// registerPublicRoutes exposes health and metrics.
func registerPublicRoutes(r *gin.Engine, db *sql.DB, rdb redis.UniversalClient, gatherer prometheus.Gatherer) {
	r.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := gin.H{"status": "ok", "db": "ok", "redis": "ok"}
		code := http.StatusOK
		if err := utils.HealthCheck(ctx, db, 2*time.Second); err != nil {
			status["db"], status["status"], code = "down", "degraded", http.StatusServiceUnavailable
		}
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				status["redis"], status["status"], code = "down", "degraded", http.StatusServiceUnavailable
			}
		}
		c.JSON(code, status)
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}

// registerAuthRoutes exposes token issuance.
func registerAuthRoutes(r *gin.Engine, h httpapi.Handlers) {
	r.POST("/v1/auth/login", h.Login)
	r.POST("/v1/auth/refresh", h.Refresh)
}

// registerProtectedRoutes wires the moderation API behind the access token middleware.
func registerProtectedRoutes(r *gin.Engine, authMW gin.HandlerFunc, h httpapi.Handlers) {
	v1 := r.Group("/v1")
	v1.Use(authMW, rbac.RequireActor())
	{
		v1.GET("/me", func(c *gin.Context) {
			uid, _ := auth.UserID(c.Request.Context())
			role, _ := auth.Role(c.Request.Context())
			c.JSON(http.StatusOK, gin.H{"user_id": uid, "role": role})
		})

		// Any authenticated user acts on their own behalf.
		v1.POST("/appeals", h.SubmitAppeal)
		v1.GET("/inbox", h.Inbox)

		// ADMIN routes
		admin := v1.Group("/admin")
		admin.Use(rbac.RequireAnyRole(rbac.RoleModerator))
		{
			admin.POST("/incidents/:id/resolve", h.ResolveIncident)
			admin.POST("/appeals/:id/resolve", h.ResolveAppeal)

			admin.GET("/queue/incidents", h.PendingIncidents)
			admin.GET("/queue/appeals", h.PendingAppeals)
			admin.GET("/queue/summary", h.QueueSummary)
			admin.GET("/reports/resolutions", h.ResolutionSummary)
		}
	}
}
