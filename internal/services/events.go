package services

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/socdo/notifyd/internal/models"
)

// Notification type names used by the mobile app to route taps.
const (
	TypeOrder           = "order"
	TypeAffiliateOrder  = "affiliate_order"
	TypeDeposit         = "deposit"
	TypeWithdrawal      = "withdrawal"
	TypeVoucherNew      = "voucher_new"
	TypeVoucherExpiring = "voucher_expiring"
)

var orderStatusNames = map[int]string{
	0: "Chờ xác nhận",
	1: "Đã xác nhận",
	2: "Đang giao hàng",
	3: "Đã giao hàng",
	4: "Đã hủy",
	5: "Hoàn trả",
}

var withdrawalStatusNames = map[string]string{
	"pending":   "Chờ duyệt",
	"approved":  "Đã duyệt",
	"rejected":  "Từ chối",
	"completed": "Hoàn thành",
}

const orderStatusShipping = 2

// NotifyNewOrder records a new-order event for the buyer.
func (s *NotificationService) NotifyNewOrder(ctx context.Context, userID, orderID, orderCode string, totalAmount int64) (*models.Notification, error) {
	return s.Create(ctx, CreateNotificationInput{
		UserID:  userID,
		Type:    TypeOrder,
		Title:   fmt.Sprintf("Đơn hàng mới #%s", orderCode),
		Content: fmt.Sprintf("Bạn vừa đặt đơn hàng #%s với tổng giá trị %s₫. Đơn hàng đang được xử lý.", orderCode, formatAmount(totalAmount)),
		Data: map[string]string{
			"order_id":     orderID,
			"order_code":   orderCode,
			"total_amount": strconv.FormatInt(totalAmount, 10),
		},
		Priority:    models.PriorityHigh,
		RelatedID:   orderID,
		RelatedType: "order",
	})
}

// NotifyOrderStatusChange records an order status transition. Shipping
// transitions push at high priority so they cut through.
func (s *NotificationService) NotifyOrderStatusChange(ctx context.Context, userID, orderID, orderCode string, oldStatus, newStatus int) (*models.Notification, error) {
	oldName := statusName(orderStatusNames, oldStatus)
	newName := statusName(orderStatusNames, newStatus)

	priority := models.PriorityMedium
	if newStatus == orderStatusShipping {
		priority = models.PriorityHigh
	}

	return s.Create(ctx, CreateNotificationInput{
		UserID:  userID,
		Type:    TypeOrder,
		Title:   fmt.Sprintf("Cập nhật đơn hàng #%s", orderCode),
		Content: fmt.Sprintf("Đơn hàng #%s đã chuyển từ '%s' sang '%s'.", orderCode, oldName, newName),
		Data: map[string]string{
			"order_id":        orderID,
			"order_code":      orderCode,
			"old_status":      strconv.Itoa(oldStatus),
			"new_status":      strconv.Itoa(newStatus),
			"old_status_name": oldName,
			"new_status_name": newName,
		},
		Priority:    priority,
		RelatedID:   orderID,
		RelatedType: "order",
	})
}

// NotifyNewAffiliateOrder records an affiliate commission event for the
// referring seller.
func (s *NotificationService) NotifyNewAffiliateOrder(ctx context.Context, userID, orderID, orderCode string, commissionAmount int64) (*models.Notification, error) {
	return s.Create(ctx, CreateNotificationInput{
		UserID:  userID,
		Type:    TypeAffiliateOrder,
		Title:   fmt.Sprintf("Đơn hàng Affiliate mới #%s", orderCode),
		Content: fmt.Sprintf("Bạn có đơn hàng affiliate #%s với hoa hồng %s₫.", orderCode, formatAmount(commissionAmount)),
		Data: map[string]string{
			"order_id":          orderID,
			"order_code":        orderCode,
			"commission_amount": strconv.FormatInt(commissionAmount, 10),
		},
		Priority:    models.PriorityHigh,
		RelatedID:   orderID,
		RelatedType: "affiliate_order",
	})
}

// NotifyDeposit records a completed wallet deposit.
func (s *NotificationService) NotifyDeposit(ctx context.Context, userID string, amount int64, method string) (*models.Notification, error) {
	method = defaultIfEmpty(method, "Chuyển khoản")
	return s.Create(ctx, CreateNotificationInput{
		UserID:  userID,
		Type:    TypeDeposit,
		Title:   "Nạp tiền thành công",
		Content: fmt.Sprintf("Bạn đã nạp %s₫ vào tài khoản qua %s.", formatAmount(amount), method),
		Data: map[string]string{
			"amount":           strconv.FormatInt(amount, 10),
			"method":           method,
			"transaction_type": "deposit",
		},
		Priority: models.PriorityMedium,
	})
}

// NotifyWithdrawal records a withdrawal request status. Rejections push at
// high priority.
func (s *NotificationService) NotifyWithdrawal(ctx context.Context, userID string, amount int64, status, method string) (*models.Notification, error) {
	status = defaultIfEmpty(status, "pending")
	method = defaultIfEmpty(method, "Chuyển khoản")
	statusName := withdrawalStatusNames[status]
	if statusName == "" {
		statusName = status
	}

	priority := models.PriorityMedium
	if status == "rejected" {
		priority = models.PriorityHigh
	}

	return s.Create(ctx, CreateNotificationInput{
		UserID:  userID,
		Type:    TypeWithdrawal,
		Title:   "Yêu cầu rút tiền " + statusName,
		Content: fmt.Sprintf("Yêu cầu rút %s₫ qua %s đã được %s.", formatAmount(amount), method, statusName),
		Data: map[string]string{
			"amount":           strconv.FormatInt(amount, 10),
			"status":           status,
			"status_name":      statusName,
			"method":           method,
			"transaction_type": "withdrawal",
		},
		Priority: priority,
	})
}

// NotifyNewVoucher records a newly granted voucher.
func (s *NotificationService) NotifyNewVoucher(ctx context.Context, userID, voucherCode string, discountAmount int64, expiresAt time.Time) (*models.Notification, error) {
	return s.Create(ctx, CreateNotificationInput{
		UserID:  userID,
		Type:    TypeVoucherNew,
		Title:   "Voucher mới: " + voucherCode,
		Content: fmt.Sprintf("Bạn có voucher mới %s giảm %s₫. Hạn sử dụng đến %s.", voucherCode, formatAmount(discountAmount), expiresAt.Format("02/01/2006")),
		Data: map[string]string{
			"voucher_code":    voucherCode,
			"discount_amount": strconv.FormatInt(discountAmount, 10),
			"expired_date":    strconv.FormatInt(expiresAt.Unix(), 10),
		},
		Priority:    models.PriorityMedium,
		RelatedType: "coupon",
	})
}

// NotifyVoucherExpiring warns about a voucher inside its final day of
// validity.
func (s *NotificationService) NotifyVoucherExpiring(ctx context.Context, userID, voucherCode string, discountAmount int64, expiresAt time.Time) (*models.Notification, error) {
	hoursLeft := int(math.Ceil(time.Until(expiresAt).Hours()))
	if hoursLeft < 0 {
		hoursLeft = 0
	}

	return s.Create(ctx, CreateNotificationInput{
		UserID:  userID,
		Type:    TypeVoucherExpiring,
		Title:   "Voucher sắp hết hạn: " + voucherCode,
		Content: fmt.Sprintf("Voucher %s giảm %s₫ sẽ hết hạn vào %s. Hãy sử dụng ngay!", voucherCode, formatAmount(discountAmount), expiresAt.Format("02/01/2006 15:04")),
		Data: map[string]string{
			"voucher_code":    voucherCode,
			"discount_amount": strconv.FormatInt(discountAmount, 10),
			"expired_date":    strconv.FormatInt(expiresAt.Unix(), 10),
			"hours_left":      strconv.Itoa(hoursLeft),
		},
		Priority:    models.PriorityHigh,
		RelatedType: "coupon",
	})
}

func statusName(names map[int]string, status int) string {
	if name, ok := names[status]; ok {
		return name
	}
	return "Không xác định"
}
