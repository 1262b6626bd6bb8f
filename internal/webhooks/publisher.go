package webhooks

import (
	"context"
	"encoding/json"
	"strings"

	"tripdispatch/internal/events"
)

// Endpoint is one configured webhook subscriber. An empty Tenant matches
// every tenant; an Events entry of "*" matches every event type.
type Endpoint struct {
	Tenant string   `yaml:"tenant" json:"tenant"`
	URL    string   `yaml:"url" json:"url"`
	Secret string   `yaml:"secret" json:"-"`
	Events []string `yaml:"events" json:"events"`
}

func (e Endpoint) matches(tenantID, eventType string) bool {
	if e.Tenant != "" && e.Tenant != tenantID {
		return false
	}
	if len(e.Events) == 0 {
		return true
	}
	for _, t := range e.Events {
		if t == "*" || t == eventType {
			return true
		}
		if strings.HasSuffix(t, ".*") && strings.HasPrefix(eventType, strings.TrimSuffix(t, "*")) {
			return true
		}
	}
	return false
}

// Publisher turns committed tenant-wide notifications into queued deliveries.
// Driver and role topics are private fan-out and never leave the process.
type Publisher struct {
	Queue     Queue
	Endpoints []Endpoint
}

func NewPublisher(q Queue, endpoints []Endpoint) *Publisher {
	return &Publisher{Queue: q, Endpoints: endpoints}
}

// Deliver implements events.Sink.
func (p *Publisher) Deliver(ctx context.Context, n events.Notification) error {
	if n.Topic != events.TenantTopic(n.Event.TenantID) {
		return nil
	}
	var body []byte
	for _, ep := range p.Endpoints {
		if !ep.matches(n.Event.TenantID, n.Event.Type) {
			continue
		}
		if body == nil {
			b, err := json.Marshal(n.Event)
			if err != nil {
				return err
			}
			body = b
		}
		if _, err := p.Queue.Enqueue(ctx, Delivery{TenantID: n.Event.TenantID, EventType: n.Event.Type, URL: ep.URL, Secret: ep.Secret, Payload: body}); err != nil {
			return err
		}
	}
	return nil
}
