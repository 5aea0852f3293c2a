package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/socdo/notifyd/internal/models"
	apperrors "github.com/socdo/notifyd/pkg/errors"
	"github.com/socdo/notifyd/pkg/logger"
	"github.com/socdo/notifyd/pkg/metrics"
)

// RegisterDeviceInput defines attributes for a push registration.
type RegisterDeviceInput struct {
	UserID      string
	DeviceToken string
	Platform    string
	DeviceModel string
	AppVersion  string
}

// DeviceTokenService manages push registrations and their lifecycle.
type DeviceTokenService struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewDeviceTokenService constructs a DeviceTokenService.
func NewDeviceTokenService(db *gorm.DB) (*DeviceTokenService, error) {
	if db == nil {
		return nil, errors.New("device token service: db is required")
	}
	return &DeviceTokenService{
		db:  db,
		log: logger.WithModule("services.device_token"),
	}, nil
}

// Register stores a push registration. Registering an existing
// (user, token) pair refreshes its metadata and reactivates it.
func (s *DeviceTokenService) Register(ctx context.Context, input RegisterDeviceInput) (*models.DeviceToken, error) {
	ctx = ensureContext(ctx)

	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, apperrors.NewBadRequest("user id is required")
	}
	token := strings.TrimSpace(input.DeviceToken)
	if token == "" {
		return nil, apperrors.NewBadRequest("device token is required")
	}
	if len(token) > models.MaxDeviceTokenLength {
		return nil, apperrors.ErrTokenTooLong
	}

	platform := strings.ToLower(strings.TrimSpace(input.Platform))
	switch platform {
	case models.PlatformAndroid, models.PlatformIOS:
	default:
		return nil, apperrors.ErrInvalidPlatform
	}

	now := time.Now().UTC()
	record := models.DeviceToken{
		UserID:      userID,
		DeviceToken: token,
		Platform:    platform,
		DeviceModel: strings.TrimSpace(input.DeviceModel),
		AppVersion:  strings.TrimSpace(input.AppVersion),
		IsActive:    true,
		LastUsedAt:  &now,
	}

	err := s.db.WithContext(ctx).
		Where("user_id = ? AND device_token = ?", userID, token).
		Assign(map[string]any{
			"platform":     platform,
			"device_model": record.DeviceModel,
			"app_version":  record.AppVersion,
			"is_active":    true,
			"last_used_at": now,
		}).
		FirstOrCreate(&record).Error
	if err != nil {
		if isUniqueConstraintError(err) {
			// Concurrent registration of the same pair; the other writer won.
			return s.find(ctx, userID, token)
		}
		return nil, fmt.Errorf("device token service: register: %w", err)
	}
	return &record, nil
}

func (s *DeviceTokenService) find(ctx context.Context, userID, token string) (*models.DeviceToken, error) {
	var record models.DeviceToken
	err := s.db.WithContext(ctx).
		Take(&record, "user_id = ? AND device_token = ?", userID, token).Error
	if err != nil {
		return nil, fmt.Errorf("device token service: load registration: %w", err)
	}
	return &record, nil
}

// ListActive returns the active device tokens for a user.
func (s *DeviceTokenService) ListActive(ctx context.Context, userID string) ([]models.DeviceToken, error) {
	ctx = ensureContext(ctx)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperrors.NewBadRequest("user id is required")
	}

	var rows []models.DeviceToken
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("device token service: list active: %w", err)
	}
	return rows, nil
}

// DeactivateMany disables dead tokens in one statement. Called when the push
// gateway reports them as unregistered.
func (s *DeviceTokenService) DeactivateMany(ctx context.Context, tokens []string) (int64, error) {
	ctx = ensureContext(ctx)

	cleaned := make([]string, 0, len(tokens))
	for _, token := range tokens {
		token = strings.TrimSpace(token)
		if token != "" {
			cleaned = append(cleaned, token)
		}
	}
	if len(cleaned) == 0 {
		return 0, nil
	}

	result := s.db.WithContext(ctx).
		Model(&models.DeviceToken{}).
		Where("device_token IN ?", cleaned).
		Updates(map[string]any{"is_active": false, "last_used_at": time.Now()})
	if result.Error != nil {
		return 0, fmt.Errorf("device token service: deactivate: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		metrics.TokensDeactivated.Add(float64(result.RowsAffected))
		s.log.Info("deactivated dead device tokens", zap.Int64("count", result.RowsAffected))
	}
	return result.RowsAffected, nil
}

// Unregister disables one registration owned by the user.
func (s *DeviceTokenService) Unregister(ctx context.Context, userID, token string) error {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Model(&models.DeviceToken{}).
		Where("user_id = ? AND device_token = ?", userID, strings.TrimSpace(token)).
		Update("is_active", false)
	if result.Error != nil {
		return fmt.Errorf("device token service: unregister: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// Touch refreshes last_used_at after a successful delivery.
func (s *DeviceTokenService) Touch(ctx context.Context, tokens []string) error {
	ctx = ensureContext(ctx)
	if len(tokens) == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).
		Model(&models.DeviceToken{}).
		Where("device_token IN ?", tokens).
		Update("last_used_at", time.Now().UTC()).Error
	if err != nil {
		return fmt.Errorf("device token service: touch: %w", err)
	}
	return nil
}
