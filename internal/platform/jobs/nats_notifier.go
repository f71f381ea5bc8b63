package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	domain "github.com/hanko-field/storefront/internal/domain"
)

const defaultSubjectPrefix = "storefront.notifications"

// NATSPublisher is the subset of *nats.Conn used by NATSNotifier.
type NATSPublisher interface {
	Publish(subject string, data []byte) error
}

// ConnectNATS dials the NATS server with reconnect settings suited to a long-running service.
func ConnectNATS(url string) (*nats.Conn, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("nats: url is required")
	}
	conn, err := nats.Connect(url,
		nats.Name("storefront"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats: connect %s: %w", url, err)
	}
	return conn, nil
}

// NATSNotifier publishes notifications on "<prefix>.<kind>" subjects.
type NATSNotifier struct {
	conn   NATSPublisher
	prefix string
	logger func(context.Context, string, map[string]any)
}

// NewNATSNotifier constructs a NATS-backed notifier.
func NewNATSNotifier(conn NATSPublisher, prefix string, logger func(context.Context, string, map[string]any)) (*NATSNotifier, error) {
	if conn == nil {
		return nil, errors.New("nats notifier: connection is required")
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = defaultSubjectPrefix
	}
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &NATSNotifier{conn: conn, prefix: prefix, logger: logger}, nil
}

// Notify publishes the notification. The NATS client buffers writes, so this does not block on the network.
func (n *NATSNotifier) Notify(ctx context.Context, notification domain.Notification) {
	msg := newNotificationMessage(notification)
	data, err := json.Marshal(msg)
	if err != nil {
		n.logger(ctx, "notification.publish_failed", map[string]any{"kind": msg.Kind, "error": err.Error()})
		return
	}
	subject := n.Subject(notification.Kind)
	if err := n.conn.Publish(subject, data); err != nil {
		n.logger(ctx, "notification.publish_failed", map[string]any{"kind": msg.Kind, "subject": subject, "error": err.Error()})
	}
}

// Subject returns the subject used for the given kind.
func (n *NATSNotifier) Subject(kind domain.NotificationKind) string {
	return n.prefix + "." + string(kind)
}
