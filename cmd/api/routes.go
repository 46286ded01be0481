package main

import (
	"cati-platform/internal/auth"
	"cati-platform/internal/httpapi"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", h.Healthz)
	r.POST("/v1/auth/login", h.Login)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		v1.GET("/me", func(c *gin.Context) {
			uid, _ := auth.UserID(c.Request.Context())
			role, _ := auth.Role(c.Request.Context())
			c.JSON(200, gin.H{"user_id": uid, "role": role})
		})

		// SURVEY QUEUE routes
		surveys := v1.Group("/surveys/:survey_id/queue")
		{
			surveys.POST("/import", append(httpapi.RequireSupervisor(), h.ImportContacts)...)
			surveys.GET("/summary", append(httpapi.RequireSupervisor(), h.QueueSummary)...)
			surveys.POST("/claim", append(httpapi.RequireInterviewer(), h.ClaimNext)...)
		}

		// QUEUE ENTRY routes (interviewer workflow)
		entries := v1.Group("/queue/:entry_id")
		entries.Use(httpapi.RequireInterviewer()...)
		{
			entries.POST("/call", h.PlaceCall)
			entries.POST("/abandon", h.Abandon)
			entries.POST("/complete", h.Complete)
		}
	}
}
