package jobs

import (
	"strconv"
	"strings"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
)

// NotificationMessage is the JSON payload published for every storefront notification.
type NotificationMessage struct {
	Kind        string    `json:"kind"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	ProductID   int       `json:"productId,omitempty"`
	Quantity    int       `json:"quantity,omitempty"`
	OrderNumber string    `json:"orderId,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
}

func newNotificationMessage(n domain.Notification) NotificationMessage {
	return NotificationMessage{
		Kind:        string(n.Kind),
		Title:       n.Title,
		Message:     n.Message,
		ProductID:   n.ProductID,
		Quantity:    n.Quantity,
		OrderNumber: n.OrderNumber,
		OccurredAt:  n.OccurredAt.UTC(),
	}
}

func (m NotificationMessage) attributes() map[string]string {
	attrs := map[string]string{}
	setAttr(attrs, "kind", m.Kind)
	setAttr(attrs, "orderId", m.OrderNumber)
	if m.ProductID > 0 {
		attrs["productId"] = strconv.Itoa(m.ProductID)
	}
	return attrs
}

func setAttr(attrs map[string]string, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
