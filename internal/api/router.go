// Package api exposes the mobile-facing HTTP surface: device registration,
// notification inbox endpoints, and operational probes.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	iauth "github.com/socdo/notifyd/internal/auth"
	"github.com/socdo/notifyd/internal/middleware"
	"github.com/socdo/notifyd/internal/queue"
	"github.com/socdo/notifyd/internal/services"
)

// Deps carries the wired services the router needs.
type Deps struct {
	JWT           *iauth.JWTService
	Notifications *services.NotificationService
	Devices       *services.DeviceTokenService
	Backend       queue.Backend
}

// NewRouter assembles the gin engine with middleware and all routes.
func NewRouter(deps Deps) *gin.Engine {
	router := gin.New()
	router.Use(middleware.Recovery(), middleware.Logger(), middleware.Metrics())
	router.NoRoute(middleware.NotFoundHandler)

	router.GET("/healthz", Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handler := &Handler{
		notifications: deps.Notifications,
		devices:       deps.Devices,
		backend:       deps.Backend,
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Auth(deps.JWT))
	{
		v1.POST("/devices", handler.RegisterDevice)
		v1.DELETE("/devices", handler.UnregisterDevice)

		v1.GET("/notifications", handler.ListNotifications)
		v1.POST("/notifications/:id/read", handler.MarkNotificationRead)
		v1.GET("/notifications/unread-count", handler.UnreadCount)

		v1.GET("/queue/stats", handler.QueueStats)
	}

	return router
}
