package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/socdo/notifyd/internal/database/testutil"
	"github.com/socdo/notifyd/internal/models"
)

func TestVoucherServiceNotifyExpiring(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	notifications, err := NewNotificationService(db, nil)
	require.NoError(t, err)
	svc, err := NewVoucherService(db, notifications)
	require.NoError(t, err)

	now := time.Now()
	vouchers := []models.Voucher{
		{UserID: "user-1", Code: "SALE10", Discount: 10000, ExpiresAt: now.Add(6 * time.Hour), IsActive: true},
		{UserID: "user-2", Code: "SALE20", Discount: 20000, ExpiresAt: now.Add(20 * time.Hour), IsActive: true},
		// Outside the warning window.
		{UserID: "user-3", Code: "LATER", Discount: 5000, ExpiresAt: now.Add(48 * time.Hour), IsActive: true},
		// Already expired.
		{UserID: "user-4", Code: "GONE", Discount: 5000, ExpiresAt: now.Add(-time.Hour), IsActive: true},
		// Disabled.
		{UserID: "user-5", Code: "OFF", Discount: 5000, ExpiresAt: now.Add(2 * time.Hour), IsActive: false},
	}
	for i := range vouchers {
		require.NoError(t, db.Create(&vouchers[i]).Error)
	}

	ctx := context.Background()
	notified, err := svc.NotifyExpiring(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, notified)

	items, err := notifications.ListForUser(ctx, ListNotificationsInput{UserID: "user-1"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, TypeVoucherExpiring, items[0].Type)
	require.Equal(t, models.PriorityHigh, items[0].Priority)

	// A second sweep is deduplicated.
	notified, err = svc.NotifyExpiring(ctx)
	require.NoError(t, err)
	require.Zero(t, notified)
}
