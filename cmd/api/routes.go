package main

import (
	"database/sql"
	"time"

	"github.com/gin-gonic/gin"

	"voiceagent-platform/internal/auth"
	"voiceagent-platform/internal/httpapi"
	"voiceagent-platform/internal/rbac"
	"voiceagent-platform/internal/webhook"
	"voiceagent-platform/pkg/utils"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, wh webhook.Handler, authMgr *auth.Manager, serviceToken string, db *sql.DB) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
			c.JSON(503, gin.H{"status": "degraded"})
			return
		}
		c.JSON(200, gin.H{"status": "ok"})
	})

	// LiveKit webhooks (public endpoint, signature-verified inside).
	r.POST("/webhooks/livekit", wh.Receive)

	// Producer endpoints: the call agent process and the SIP dispatch hook
	// authenticate with a shared service token.
	internal := r.Group("/internal")
	internal.Use(auth.RequireServiceToken(serviceToken))
	{
		internal.POST("/calls/register", h.RegisterCall)
		internal.GET("/calls/config", h.CallAcceptance)
		internal.POST("/calls/status", h.ReportCallStatus)
		internal.POST("/calls/report", h.SubmitFinalReport)
	}

	// admin API
	v1 := r.Group("/v1")
	{
		v1.POST("/auth/login", h.Login)

		protected := v1.Group("")
		protected.Use(auth.RequireAccessToken(authMgr))
		protected.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleSupport, rbac.RoleSuperAdmin))
		{
			protected.GET("/me", func(c *gin.Context) {
				uid, _ := auth.UserID(c.Request.Context())
				role, _ := auth.Role(c.Request.Context())
				c.JSON(200, gin.H{"user_id": uid, "role": role})
			})

			agents := protected.Group("/agents")
			{
				agents.POST("", h.CreateAgent)
				agents.GET("", h.ListAgents)
				agents.GET("/:id", h.GetAgent)
				agents.PATCH("/:id", h.UpdateAgent)
				agents.DELETE("/:id", h.DeactivateAgent)
				agents.GET("/:id/minutes", h.GetAgentMinutes)
				agents.POST("/:id/minutes/reset", h.ResetAgentMinutes)
			}

			calls := protected.Group("/calls")
			{
				calls.GET("", h.ListCalls)
				calls.GET("/:id", h.GetCall)
				calls.GET("/:id/transcript", h.GetCallTranscript)
			}

			protected.GET("/dashboard/summary", h.DashboardSummary)
		}
	}
}
