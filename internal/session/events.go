package session

import (
	"time"

	"pix-deposit-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type EventType string

const (
	EventStateChanged  EventType = "state_changed"
	EventChargeExpired EventType = "charge_expired"
	EventSuccess       EventType = "success"
	EventTimeout       EventType = "timeout"
	EventError         EventType = "error"
)

const (
	RouteDashboard = "/dashboard"
	RouteReceipt   = "/receipt/"
)

// Event is pushed to the notifier. Success, timeout and expiry events are
// sent at most once per session.
type Event struct {
	SessionId string           `json:"session_id"`
	Type      EventType        `json:"type"`
	State     State            `json:"state"`
	From      State            `json:"from,omitempty"`
	Message   string           `json:"message,omitempty"`
	Route     string           `json:"route,omitempty"`
	Receipt   *models.Receipt  `json:"receipt,omitempty"`
	Delta     *decimal.Decimal `json:"delta,omitempty"`
	At        time.Time        `json:"at"`
}

type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) { f(e) }

// LogNotifier writes events to the global zap logger
type LogNotifier struct{}

func (LogNotifier) Notify(e Event) {
	fields := []zap.Field{
		zap.String("session_id", e.SessionId),
		zap.String("type", string(e.Type)),
		zap.String("state", string(e.State)),
	}
	if e.Route != "" {
		fields = append(fields, zap.String("route", e.Route))
	}
	if e.Message != "" {
		fields = append(fields, zap.String("message", e.Message))
	}
	zap.L().Info("Session event", fields...)
}

// MultiNotifier fans an event out to several notifiers in order
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(e Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(e)
		}
	}
}

// ChannelNotifier delivers events on a buffered channel. Events are dropped
// with a warning when the reader falls behind.
type ChannelNotifier struct {
	C chan Event
}

func NewChannelNotifier(size int) *ChannelNotifier {
	return &ChannelNotifier{C: make(chan Event, size)}
}

func (c *ChannelNotifier) Notify(e Event) {
	select {
	case c.C <- e:
	default:
		zap.L().Warn("Dropping session event, reader is behind",
			zap.String("session_id", e.SessionId),
			zap.String("type", string(e.Type)))
	}
}
