package services

import (
	"context"

	"go.uber.org/zap"

	domain "github.com/hanko-field/storefront/internal/domain"
)

// Notifier receives user-facing notifications. Implementations must not block the caller
// on delivery and never report failures back.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification)
}

// NopNotifier discards every notification.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(context.Context, domain.Notification) {}

// LogNotifier writes notifications as structured log lines.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a LogNotifier. A nil logger discards output.
func NewLogNotifier(logger *zap.Logger) LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return LogNotifier{logger: logger.Named("notifications")}
}

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, notification domain.Notification) {
	fields := []zap.Field{
		zap.String("kind", string(notification.Kind)),
		zap.String("title", notification.Title),
		zap.Time("occurredAt", notification.OccurredAt),
	}
	if notification.ProductID > 0 {
		fields = append(fields, zap.Int("productId", notification.ProductID), zap.Int("quantity", notification.Quantity))
	}
	if notification.OrderNumber != "" {
		fields = append(fields, zap.String("orderId", notification.OrderNumber))
	}
	n.logger.Info(notification.Message, fields...)
}

// MultiNotifier fans a notification out to every wrapped notifier in order.
type MultiNotifier []Notifier

// Notify implements Notifier.
func (m MultiNotifier) Notify(ctx context.Context, notification domain.Notification) {
	for _, notifier := range m {
		if notifier != nil {
			notifier.Notify(ctx, notification)
		}
	}
}
