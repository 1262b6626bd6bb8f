package events

import (
    "context"
    "errors"
    "testing"
    "time"

    "go.uber.org/zap/zaptest"
)

func TestBrokerPublishSubscribe(t *testing.T) {
    b := NewMemoryBroker()
    topic := TenantTopic("t1")
    ch := b.Subscribe(topic)

    evt := New(TripCreated, "t1", time.Now(), map[string]any{"x": 1})
    b.Publish(topic, evt)
    b.Publish(TenantTopic("t2"), New(TripCreated, "t2", time.Now(), nil))

    select {
    case got := <-ch:
        if got.Type != evt.Type || got.ID != evt.ID { t.Fatalf("got %+v, want %+v", got, evt) }
        if got.Data["x"].(int) != 1 { t.Fatalf("bad payload: %+v", got.Data) }
    case <-time.After(200 * time.Millisecond):
        t.Fatal("timeout waiting for event")
    }
    select {
    case got := <-ch:
        t.Fatalf("received event of another tenant: %+v", got)
    default:
    }

    b.Unsubscribe(topic, ch)
    if _, ok := <-ch; ok { t.Fatal("channel should be closed after unsubscribe") }
    // second unsubscribe is a no-op
    b.Unsubscribe(topic, ch)
}

func TestTopicsAreTenantScoped(t *testing.T) {
    if DriverTopic("a", "d1") == DriverTopic("b", "d1") { t.Fatal("driver topics collide across tenants") }
    if RoleTopic("a", "admin") == RoleTopic("b", "admin") { t.Fatal("role topics collide across tenants") }
}

type failingSink struct{ calls int }

func (s *failingSink) Deliver(context.Context, Notification) error { s.calls++; return errors.New("down") }

func TestFanoutPublishesAndToleratesSinkFailure(t *testing.T) {
    b := NewMemoryBroker()
    ch := b.Subscribe(DriverTopic("t1", "d1"))
    defer b.Unsubscribe(DriverTopic("t1", "d1"), ch)
    sink := &failingSink{}
    f := &Fanout{Broker: b, Sinks: []Sink{sink}, Log: zaptest.NewLogger(t)}
    PublishAll(context.Background(), f, []Notification{
        {Topic: DriverTopic("t1", "d1"), Event: New(DriverYourStatus, "t1", time.Now(), nil)},
        {Topic: TenantTopic("t1"), Event: New(DriverStatusChanged, "t1", time.Now(), nil)},
    })
    if sink.calls != 2 { t.Fatalf("sink calls = %d", sink.calls) }
    select {
    case got := <-ch:
        if got.Type != DriverYourStatus { t.Fatalf("unexpected %s", got.Type) }
    case <-time.After(200 * time.Millisecond):
        t.Fatal("timeout")
    }
}
