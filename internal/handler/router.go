package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clinic-workflow-api/internal/middleware"
	"github.com/noah-isme/clinic-workflow-api/internal/models"
)

// Handlers groups the HTTP handlers mounted under the API prefix.
type Handlers struct {
	Auth          *AuthHandler
	Appointments  *AppointmentHandler
	Results       *ResultHandler
	Notifications *NotificationHandler
	ActivityLogs  *ActivityLogHandler
	Metrics       *MetricsHandler
}

// RegisterRoutes mounts the clinic API on api and the health endpoints on root.
func RegisterRoutes(root *gin.Engine, api *gin.RouterGroup, h Handlers, tokens middleware.TokenValidator) {
	if h.Metrics != nil {
		root.GET("/health", h.Metrics.Health)
		root.GET("/ready", h.Metrics.Ready)
		root.GET("/metrics", h.Metrics.Prometheus)
	}

	authn := middleware.JWT(tokens)
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleStaff)
	clinical := middleware.RequireRoles(models.RoleAdmin, models.RoleStaff, models.RoleDoctor)
	reviewers := middleware.RequireRoles(models.RoleAdmin, models.RoleDoctor)
	admins := middleware.RequireRoles(models.RoleAdmin)

	api.POST("/auth/login", h.Auth.Login)

	appointments := api.Group("/appointments")
	appointments.POST("", middleware.OptionalJWT(tokens), h.Appointments.Create)
	appointments.GET("/:id", authn, clinical, h.Appointments.Get)
	appointments.POST("/:id", authn, staff, h.Appointments.Update)
	appointments.PATCH("/:id", authn, staff, h.Appointments.Update)

	results := api.Group("/results", authn)
	results.POST("", staff, h.Results.Upload)
	results.GET("/:id", clinical, h.Results.Get)
	results.GET("/:id/download", h.Results.Download)
	results.POST("/:id/verify", reviewers, h.Results.Verify)

	notifications := api.Group("/notifications", authn)
	notifications.GET("", h.Notifications.List)
	notifications.POST("", admins, h.Notifications.Send)
	notifications.PUT("/:id", admins, h.Notifications.Update)

	logs := api.Group("/activity-logs", authn, admins)
	logs.GET("", h.ActivityLogs.List)
	logs.GET("/export", h.ActivityLogs.Export)

	if h.Metrics != nil {
		api.GET("/metrics/summary", authn, admins, h.Metrics.Summary)
	}
}
