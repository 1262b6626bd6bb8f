package webhooks

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tripdispatch/internal/events"
)

func TestWorkerProcessOnce_SuccessAndSignature(t *testing.T) {
	var gotSig, gotTS, gotType string
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(HeaderSignature)
		gotTS = r.Header.Get(HeaderTimestamp)
		gotType = r.Header.Get("X-Event-Type")
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	q := NewMemoryQueue()
	w := &Worker{Queue: q, HTTP: srv.Client(), Stop: make(chan struct{}), MaxAttempts: 3}
	id, err := q.Enqueue(context.Background(), Delivery{TenantID: "t1", EventType: "trip.status_changed", URL: srv.URL, Secret: "secret", Payload: []byte(`{"id":"evt1"}`)})
	if err != nil || id == "" {
		t.Fatalf("enqueue failed: %v", err)
	}

	w.processOnce()

	if gotType != "trip.status_changed" {
		t.Fatalf("missing type header: %q", gotType)
	}
	if !Verify("secret", gotTS, body, gotSig, time.Minute, time.Now()) {
		t.Fatalf("signature %q does not verify", gotSig)
	}
	d, _ := q.Get(id)
	if d.Status != "delivered" || d.Attempts != 1 {
		t.Fatalf("expected delivered, got %+v", d)
	}
}

func TestWorkerProcessOnce_Fail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }))
	defer srv.Close()
	q := NewMemoryQueue()
	w := &Worker{Queue: q, HTTP: srv.Client(), Stop: make(chan struct{}), MaxAttempts: 1}
	id, _ := q.Enqueue(context.Background(), Delivery{TenantID: "t1", EventType: "trip.created", URL: srv.URL, Payload: []byte(`{}`)})
	w.processOnce()
	d, _ := q.Get(id)
	if d.Status != "failed" || d.ResponseCode != 500 {
		t.Fatalf("expected failed delivery, got %+v", d)
	}
}

func TestWorkerRetriesWithBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(503) }))
	defer srv.Close()
	q := NewMemoryQueue()
	w := &Worker{Queue: q, HTTP: srv.Client(), Stop: make(chan struct{}), MaxAttempts: 5}
	id, _ := q.Enqueue(context.Background(), Delivery{TenantID: "t1", EventType: "trip.created", URL: srv.URL, Payload: []byte(`{}`)})
	w.processOnce()
	d, _ := q.Get(id)
	if d.Status != "pending" || d.Attempts != 1 || !d.NextAttemptAt.After(time.Now()) {
		t.Fatalf("expected pending retry in the future, got %+v", d)
	}
	due, _ := q.FetchDue(context.Background(), 10)
	if len(due) != 0 {
		t.Fatalf("backed-off delivery must not be due yet")
	}
}

func TestNextBackoffCaps(t *testing.T) {
	if nextBackoff(0) != time.Second || nextBackoff(3) != 8*time.Second {
		t.Fatalf("unexpected backoff")
	}
	if nextBackoff(50) != 1024*time.Second {
		t.Fatalf("attempts not capped: %v", nextBackoff(50))
	}
}

func TestPublisherOnlyForwardsTenantTopic(t *testing.T) {
	q := NewMemoryQueue()
	p := NewPublisher(q, []Endpoint{
		{URL: "http://a", Events: []string{"trip.*"}},
		{Tenant: "t2", URL: "http://b"},
	})
	ctx := context.Background()
	evt := events.New(events.TripStatusChanged, "t1", time.Now(), nil)
	_ = p.Deliver(ctx, events.Notification{Topic: events.DriverTopic("t1", "d1"), Event: evt})
	_ = p.Deliver(ctx, events.Notification{Topic: events.TenantTopic("t1"), Event: evt})
	_ = p.Deliver(ctx, events.Notification{Topic: events.TenantTopic("t1"), Event: events.New(events.DriverCreated, "t1", time.Now(), nil)})
	due, _ := q.FetchDue(ctx, 10)
	if len(due) != 1 || due[0].URL != "http://a" || due[0].EventType != events.TripStatusChanged {
		t.Fatalf("unexpected deliveries: %+v", due)
	}
}

func TestVerifyRejectsTamperingAndReplay(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	body := []byte(`{"type":"trip.created"}`)
	sig := Sign("secret", now, body)
	ts := "1700000000"

	if !Verify("secret", ts, body, sig, 5*time.Minute, now.Add(time.Minute)) {
		t.Fatalf("fresh signature rejected")
	}
	if Verify("other", ts, body, sig, 0, now) {
		t.Fatalf("wrong secret accepted")
	}
	if Verify("secret", ts, []byte(`{"type":"trip.deleted"}`), sig, 0, now) {
		t.Fatalf("tampered body accepted")
	}
	if Verify("secret", "1700000001", body, sig, 0, now) {
		t.Fatalf("shifted timestamp accepted")
	}
	if Verify("secret", ts, body, sig, 5*time.Minute, now.Add(time.Hour)) {
		t.Fatalf("stale delivery accepted")
	}
}
