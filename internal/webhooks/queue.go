package webhooks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Delivery is one queued webhook POST.
type Delivery struct {
	ID            string
	TenantID      string
	EventType     string
	URL           string
	Secret        string
	Payload       []byte
	Status        string // pending, delivered, failed
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
}

// Queue holds deliveries until the worker sends them.
type Queue interface {
	Enqueue(ctx context.Context, d Delivery) (string, error)
	FetchDue(ctx context.Context, limit int) ([]Delivery, error)
	Mark(ctx context.Context, id string, success bool, next time.Time, lastErr string, code, latencyMs int) error
	Fail(ctx context.Context, id string, lastErr string, code, latencyMs int) error
}

// MemoryQueue is a process-local Queue. Deliveries are lost on restart.
type MemoryQueue struct {
	mu    sync.Mutex
	items map[string]*Delivery
	now   func() time.Time
	// MaxRetained bounds finished deliveries kept for inspection.
	MaxRetained int
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{items: map[string]*Delivery{}, now: time.Now, MaxRetained: 1000}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, d Delivery) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	d.ID = uuid.NewString()
	d.Status = "pending"
	d.NextAttemptAt = q.now()
	q.items[d.ID] = &d
	return d.ID, nil
}

func (q *MemoryQueue) FetchDue(ctx context.Context, limit int) ([]Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	out := []Delivery{}
	for _, d := range q.items {
		if d.Status == "pending" && !d.NextAttemptAt.After(now) {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextAttemptAt.Before(out[j].NextAttemptAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (q *MemoryQueue) Mark(ctx context.Context, id string, success bool, next time.Time, lastErr string, code, latencyMs int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	d, ok := q.items[id]
	if !ok {
		return nil
	}
	d.Attempts++
	d.LastError, d.ResponseCode, d.LatencyMs = lastErr, code, latencyMs
	if success {
		d.Status = "delivered"
		q.prune()
	} else {
		d.NextAttemptAt = next
	}
	return nil
}

func (q *MemoryQueue) Fail(ctx context.Context, id string, lastErr string, code, latencyMs int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	d, ok := q.items[id]
	if !ok {
		return nil
	}
	d.Attempts++
	d.Status = "failed"
	d.LastError, d.ResponseCode, d.LatencyMs = lastErr, code, latencyMs
	q.prune()
	return nil
}

// Get returns a copy of a delivery.
func (q *MemoryQueue) Get(id string) (Delivery, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	d, ok := q.items[id]
	if !ok {
		return Delivery{}, false
	}
	return *d, true
}

// prune drops the oldest finished deliveries beyond MaxRetained. Caller holds mu.
func (q *MemoryQueue) prune() {
	done := []*Delivery{}
	for _, d := range q.items {
		if d.Status != "pending" {
			done = append(done, d)
		}
	}
	if q.MaxRetained <= 0 || len(done) <= q.MaxRetained {
		return
	}
	sort.Slice(done, func(i, j int) bool { return done[i].NextAttemptAt.Before(done[j].NextAttemptAt) })
	for _, d := range done[:len(done)-q.MaxRetained] {
		delete(q.items, d.ID)
	}
}
