package notify

import (
	"fmt"
	"time"

	"github.com/esiqveland/notify"
	"github.com/godbus/dbus/v5"

	"calremind/internal/config"
)

// Urgency is the desktop notification urgency hint.
type Urgency byte

const (
	UrgencyLow      Urgency = 0
	UrgencyNormal   Urgency = 1
	UrgencyCritical Urgency = 2
)

// Notification is one rendered message ready for delivery.
type Notification struct {
	Title   string
	Body    string
	Urgency Urgency
}

// Sink delivers rendered notifications.
type Sink interface {
	Send(n Notification) error
	Close() error
}

// DBusSink delivers notifications over the session bus per the desktop
// notifications spec.
type DBusSink struct {
	conn     *dbus.Conn
	notifier notify.Notifier
	timeout  time.Duration
}

// NewDBusSink connects to the session bus. The timeout policy maps to
// the notification server's expire-timeout: -1 lets the server decide,
// 0 keeps the notification until dismissed.
func NewDBusSink(timeout config.TimeoutPolicy) (*DBusSink, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session D-Bus: %w", err)
	}

	notifier, err := notify.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create D-Bus notifier: %w", err)
	}

	return &DBusSink{
		conn:     conn,
		notifier: notifier,
		timeout:  expireTimeout(timeout),
	}, nil
}

func expireTimeout(policy config.TimeoutPolicy) time.Duration {
	switch policy.Kind {
	case config.TimeoutNever:
		return 0
	case config.TimeoutMillis:
		return time.Duration(policy.Millis) * time.Millisecond
	default:
		return -1 * time.Millisecond
	}
}

// Send delivers one notification.
func (d *DBusSink) Send(n Notification) error {
	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(byte(n.Urgency)),
	}

	notification := notify.Notification{
		AppName:       "calremind",
		ReplacesID:    0,
		AppIcon:       "calendar",
		Summary:       n.Title,
		Body:          n.Body,
		Actions:       []notify.Action{},
		Hints:         hints,
		ExpireTimeout: d.timeout,
	}

	if _, err := d.notifier.SendNotification(notification); err != nil {
		return fmt.Errorf("failed to send D-Bus notification: %w", err)
	}
	return nil
}

// Close closes the D-Bus connection.
func (d *DBusSink) Close() error {
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}
