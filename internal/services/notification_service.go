package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/socdo/notifyd/internal/models"
	"github.com/socdo/notifyd/internal/queue"
	apperrors "github.com/socdo/notifyd/pkg/errors"
	"github.com/socdo/notifyd/pkg/logger"
	"github.com/socdo/notifyd/pkg/metrics"
)

// Dispatcher delivers a job immediately, bypassing the queue. Used as the
// fallback path when enqueueing fails.
type Dispatcher interface {
	Dispatch(ctx context.Context, job queue.Job) error
}

// CreateNotificationInput defines attributes required to persist a notification.
type CreateNotificationInput struct {
	UserID      string
	Type        string
	Title       string
	Content     string
	Data        map[string]string
	Priority    string
	RelatedID   string
	RelatedType string
}

// ListNotificationsInput defines filters for querying user notifications.
type ListNotificationsInput struct {
	UserID     string
	Type       string
	UnreadOnly bool
	Limit      int
	Offset     int
}

// NotificationService persists notification records and hands them to the
// delivery queue. When the queue rejects a job the service falls back to
// dispatching it in-process so the event is not silently dropped.
type NotificationService struct {
	db      *gorm.DB
	backend queue.Backend
	direct  Dispatcher
	log     *zap.Logger
}

// NewNotificationService constructs a NotificationService. The backend may
// be nil, in which case every notification dispatches directly.
func NewNotificationService(db *gorm.DB, backend queue.Backend) (*NotificationService, error) {
	if db == nil {
		return nil, errors.New("notification service: db is required")
	}
	return &NotificationService{
		db:      db,
		backend: backend,
		log:     logger.WithModule("services.notification"),
	}, nil
}

// SetDispatcher wires the direct delivery fallback. Set after construction
// because the dispatcher itself depends on this service.
func (s *NotificationService) SetDispatcher(d Dispatcher) {
	s.direct = d
}

// Create persists the notification and enqueues a delivery job for it.
func (s *NotificationService) Create(ctx context.Context, input CreateNotificationInput) (*models.Notification, error) {
	ctx = ensureContext(ctx)

	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, apperrors.NewBadRequest("user id is required")
	}
	notificationType := strings.TrimSpace(input.Type)
	if notificationType == "" {
		return nil, apperrors.NewBadRequest("type is required")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewBadRequest("title is required")
	}

	priority := defaultIfEmpty(strings.TrimSpace(input.Priority), models.PriorityMedium)
	switch priority {
	case models.PriorityHigh, models.PriorityMedium, models.PriorityLow:
	default:
		return nil, apperrors.NewBadRequest("unknown priority: " + priority)
	}

	notification := models.Notification{
		UserID:      userID,
		Type:        notificationType,
		Title:       title,
		Content:     strings.TrimSpace(input.Content),
		Priority:    priority,
		RelatedID:   strings.TrimSpace(input.RelatedID),
		RelatedType: strings.TrimSpace(input.RelatedType),
	}

	if len(input.Data) > 0 {
		raw, err := json.Marshal(input.Data)
		if err != nil {
			return nil, fmt.Errorf("notification service: marshal data: %w", err)
		}
		notification.Data = datatypes.JSON(raw)
	}

	if err := s.db.WithContext(ctx).Create(&notification).Error; err != nil {
		return nil, fmt.Errorf("notification service: create notification: %w", err)
	}
	metrics.NotificationsCreated.WithLabelValues(notificationType).Inc()

	s.deliver(ctx, notification, input.Data)
	return &notification, nil
}

// deliver enqueues the job, or dispatches it in-process when no queue is
// configured or the push fails. Delivery failures never fail Create: the
// record is durable and the polling fallback will find it.
func (s *NotificationService) deliver(ctx context.Context, n models.Notification, data map[string]string) {
	job := jobForNotification(n, data)

	if s.backend != nil {
		err := s.backend.Push(ctx, job)
		if err == nil {
			return
		}
		s.log.Warn("enqueue failed, dispatching directly",
			zap.String("notification_id", n.ID),
			zap.Error(err))
	}

	if s.direct == nil {
		return
	}
	if err := s.direct.Dispatch(ctx, job); err != nil {
		s.log.Error("direct dispatch failed",
			zap.String("notification_id", n.ID),
			zap.Error(err))
	}
}

func jobForNotification(n models.Notification, data map[string]string) queue.Job {
	payload := make(map[string]string, len(data)+2)
	for k, v := range data {
		payload[k] = v
	}
	// The app routes on the type key; related_id deep-links to the entity.
	if _, ok := payload["type"]; !ok {
		payload["type"] = defaultIfEmpty(n.Type, "general")
	}
	if n.RelatedID != "" {
		payload["related_id"] = n.RelatedID
	}

	return queue.Job{
		ID:             n.ID,
		NotificationID: n.ID,
		UserID:         n.UserID,
		Type:           n.Type,
		Title:          n.Title,
		Content:        n.Content,
		Data:           payload,
		Priority:       n.Priority,
		CreatedAt:      n.CreatedAt.Unix(),
	}
}

// Claim atomically marks the notification as dispatched. It returns true for
// exactly one caller per notification; every other caller sees false and
// must skip delivery.
func (s *NotificationService) Claim(ctx context.Context, notificationID string) (bool, error) {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND push_sent = ?", notificationID, false).
		Update("push_sent", true)
	if result.Error != nil {
		return false, fmt.Errorf("notification service: claim notification: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// Get loads a notification by id.
func (s *NotificationService) Get(ctx context.Context, notificationID string) (*models.Notification, error) {
	ctx = ensureContext(ctx)

	var notification models.Notification
	err := s.db.WithContext(ctx).Take(&notification, "id = ?", notificationID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("notification service: load notification: %w", err)
	}
	return &notification, nil
}

// ListForUser returns notifications for the supplied user ordered by recency.
func (s *NotificationService) ListForUser(ctx context.Context, input ListNotificationsInput) ([]models.Notification, error) {
	ctx = ensureContext(ctx)
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, apperrors.NewBadRequest("user id is required")
	}

	limit := input.Limit
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if input.Type != "" {
		query = query.Where("type = ?", input.Type)
	}
	if input.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var rows []models.Notification
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(max(0, input.Offset)).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("notification service: list notifications: %w", err)
	}
	return rows, nil
}

// MarkRead sets the notification read flag for a user.
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) error {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Update("is_read", true)
	if result.Error != nil {
		return fmt.Errorf("notification service: mark read: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// UnreadCount returns the number of unread notifications, optionally
// restricted to one type.
func (s *NotificationService) UnreadCount(ctx context.Context, userID, notificationType string) (int64, error) {
	ctx = ensureContext(ctx)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, apperrors.NewBadRequest("user id is required")
	}

	query := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false)
	if notificationType != "" {
		query = query.Where("type = ?", notificationType)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("notification service: count unread: %w", err)
	}
	return count, nil
}
