package api

import (
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "time"

    "tripdispatch/internal/dispatch"
    "tripdispatch/internal/events"
    "tripdispatch/internal/metrics"
)

const heartbeatEvery = 15 * time.Second

// topicsFor lists what a caller may listen to: its tenant plus either its own
// driver topic or its staff role topic.
func topicsFor(a dispatch.Actor) []string {
    topics := []string{events.TenantTopic(a.TenantID)}
    if a.IsDriver() {
        return append(topics, events.DriverTopic(a.TenantID, a.ID))
    }
    return append(topics, events.RoleTopic(a.TenantID, a.Role))
}

// subscribe merges the broker channels of topics into one. The returned stop
// func unsubscribes everything and must be called exactly once.
func (s *Server) subscribe(ctx context.Context, topics []string) (<-chan events.Event, func()) {
    ctx, cancel := context.WithCancel(ctx)
    out := make(chan events.Event, 16)
    chans := make([]chan events.Event, len(topics))
    for i, t := range topics {
        ch := s.Broker.Subscribe(t)
        chans[i] = ch
        go func(ch chan events.Event) {
            for evt := range ch {
                select {
                case out <- evt:
                case <-ctx.Done():
                    return
                }
            }
        }(ch)
    }
    return out, func() {
        cancel()
        for i, t := range topics {
            s.Broker.Unsubscribe(t, chans[i])
        }
    }
}

// streamEvents serves /v1/events/stream as Server-Sent Events.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
    flusher, ok := w.(http.Flusher)
    if !ok { writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path); return }
    a := actorOf(r)
    w.Header().Set("Content-Type", "text/event-stream")
    w.Header().Set("Cache-Control", "no-cache")
    w.Header().Set("Connection", "keep-alive")

    ch, stop := s.subscribe(r.Context(), topicsFor(a))
    defer stop()
    metrics.StreamClients.WithLabelValues("sse").Inc()
    defer metrics.StreamClients.WithLabelValues("sse").Dec()

    heartbeat := func() {
        fmt.Fprintf(w, "event: heartbeat\n")
        fmt.Fprintf(w, "data: {\"tenantId\":%q,\"ts\":%q}\n\n", a.TenantID, time.Now().UTC().Format(time.RFC3339))
        flusher.Flush()
    }
    heartbeat()
    ticker := time.NewTicker(heartbeatEvery)
    defer ticker.Stop()
    notify := r.Context().Done()
    for {
        select {
        case <-notify:
            return
        case evt := <-ch:
            b, err := json.Marshal(evt)
            if err != nil { continue }
            fmt.Fprintf(w, "id: %s\n", evt.ID)
            fmt.Fprintf(w, "event: %s\n", evt.Type)
            fmt.Fprintf(w, "data: %s\n\n", b)
            flusher.Flush()
        case <-ticker.C:
            heartbeat()
        }
    }
}
