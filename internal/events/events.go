package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tripdispatch/internal/metrics"
)

// Event is one notification delivered to stream subscribers and webhook sinks.
type Event struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	TenantID string         `json:"tenantId"`
	At       time.Time      `json:"at"`
	Data     map[string]any `json:"data"`
}

// New stamps an event with a fresh id.
func New(typ, tenantID string, at time.Time, data map[string]any) Event {
	return Event{ID: uuid.NewString(), Type: typ, TenantID: tenantID, At: at, Data: data}
}

// Event types.
const (
	TripCreated         = "trip.created"
	TripUpdated         = "trip.updated"
	TripDeleted         = "trip.deleted"
	TripAssigned        = "trip.assigned"
	TripTransferred     = "trip.transferred"
	TripStatusChanged   = "trip.status_changed"
	TripDriverProgress  = "trip.driver_progressed"
	TripStatusUpdated   = "trip.status_updated"
	TripPhotosRecorded  = "trip.photos_recorded"
	TripPhotoDeleted    = "trip.photo_deleted"
	DriverCreated       = "driver.created"
	DriverUpdated       = "driver.updated"
	DriverDeleted       = "driver.deleted"
	DriverStatusChanged = "driver.status_changed"
	DriverYourStatus    = "driver.your_status_updated"
	DriverLocation      = "driver.location_updated"
)

// Topics. Subscribers only ever see topics of their own tenant.
func TenantTopic(tenantID string) string          { return "tenant:" + tenantID }
func DriverTopic(tenantID, driverID string) string { return "driver:" + tenantID + ":" + driverID }
func RoleTopic(tenantID, role string) string       { return "role:" + tenantID + ":" + role }

// Notification pairs an event with the topic it is addressed to.
type Notification struct {
	Topic string
	Event Event
}

// Notifier receives events after the owning transaction committed.
// Implementations must not fail the caller; delivery problems are theirs.
type Notifier interface {
	Publish(ctx context.Context, topic string, evt Event)
}

// Sink is an additional consumer of committed notifications, e.g. webhooks.
type Sink interface {
	Deliver(ctx context.Context, n Notification) error
}

// PublishAll sends a batch in order.
func PublishAll(ctx context.Context, n Notifier, batch []Notification) {
	for _, x := range batch {
		n.Publish(ctx, x.Topic, x.Event)
	}
}

// Fanout publishes to a Broker and hands every notification to the sinks.
type Fanout struct {
	Broker Broker
	Sinks  []Sink
	Log    *zap.Logger
}

func (f *Fanout) Publish(ctx context.Context, topic string, evt Event) {
	if f.Broker != nil {
		f.Broker.Publish(topic, evt)
	}
	metrics.EventsPublished.WithLabelValues(evt.Type).Inc()
	for _, s := range f.Sinks {
		if err := s.Deliver(ctx, Notification{Topic: topic, Event: evt}); err != nil && f.Log != nil {
			f.Log.Warn("event sink failed", zap.String("topic", topic), zap.String("type", evt.Type), zap.Error(err))
		}
	}
}

// Discard drops everything.
type Discard struct{}

func (Discard) Publish(context.Context, string, Event) {}
