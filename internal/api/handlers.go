package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/socdo/notifyd/internal/middleware"
	"github.com/socdo/notifyd/internal/queue"
	"github.com/socdo/notifyd/internal/services"
	apperrors "github.com/socdo/notifyd/pkg/errors"
	"github.com/socdo/notifyd/pkg/response"
)

// Handler holds the services behind the API endpoints.
type Handler struct {
	notifications *services.NotificationService
	devices       *services.DeviceTokenService
	backend       queue.Backend
}

type registerDeviceRequest struct {
	DeviceToken string `json:"device_token" validate:"required,max=191"`
	Platform    string `json:"platform" validate:"required,oneof=android ios"`
	DeviceModel string `json:"device_model" validate:"omitempty,max=128"`
	AppVersion  string `json:"app_version" validate:"omitempty,max=32"`
}

// RegisterDevice stores or reactivates a push registration for the caller.
func (h *Handler) RegisterDevice(c *gin.Context) {
	var req registerDeviceRequest
	if !bindAndValidate(c, &req) {
		return
	}

	record, err := h.devices.Register(c.Request.Context(), services.RegisterDeviceInput{
		UserID:      middleware.UserID(c),
		DeviceToken: req.DeviceToken,
		Platform:    req.Platform,
		DeviceModel: req.DeviceModel,
		AppVersion:  req.AppVersion,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, record)
}

type unregisterDeviceRequest struct {
	DeviceToken string `json:"device_token" validate:"required"`
}

// UnregisterDevice disables one of the caller's registrations.
func (h *Handler) UnregisterDevice(c *gin.Context) {
	var req unregisterDeviceRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.devices.Unregister(c.Request.Context(), middleware.UserID(c), req.DeviceToken); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deactivated": true})
}

// ListNotifications returns the caller's notifications, newest first.
func (h *Handler) ListNotifications(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "25"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	unreadOnly := c.Query("unread") == "true"

	items, err := h.notifications.ListForUser(c.Request.Context(), services.ListNotificationsInput{
		UserID:     middleware.UserID(c),
		Type:       c.Query("type"),
		UnreadOnly: unreadOnly,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, items)
}

// MarkNotificationRead flips the read flag on one of the caller's notifications.
func (h *Handler) MarkNotificationRead(c *gin.Context) {
	err := h.notifications.MarkRead(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"read": true})
}

// UnreadCount returns the caller's unread notification count, optionally
// scoped to one type.
func (h *Handler) UnreadCount(c *gin.Context) {
	count, err := h.notifications.UnreadCount(c.Request.Context(), middleware.UserID(c), c.Query("type"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"unread_count": count})
}

// QueueStats reports queue depths for operational visibility.
func (h *Handler) QueueStats(c *gin.Context) {
	if h.backend == nil {
		response.Error(c, apperrors.ErrQueueUnavailable)
		return
	}

	stats, err := h.backend.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, apperrors.ErrQueueUnavailable.WithInternal(err))
		return
	}
	response.Success(c, http.StatusOK, stats)
}

// Health reports process liveness.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
