package metrics

import (
    "sync"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "tripdispatch"

var (
    // Registry is the dedicated Prometheus registry for the API
    Registry = prometheus.NewRegistry()
    // HTTPRequests counts requests by method, route pattern, and status
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests."},
        []string{"method", "route", "status"},
    )
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Namespace: namespace, Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"method", "route", "status"},
    )
    // RateLimited counts requests rejected by the per-tenant limiter
    RateLimited = prometheus.NewCounterVec(
        prometheus.CounterOpts{Namespace: namespace, Name: "http_rate_limited_total", Help: "Requests rejected by the tenant rate limiter."},
        []string{"tenant"},
    )

    // TripTransitions counts committed trip status changes by from/to status and actor kind
    TripTransitions = prometheus.NewCounterVec(
        prometheus.CounterOpts{Namespace: namespace, Name: "trip_transitions_total", Help: "Committed trip status transitions."},
        []string{"from", "to", "actor"},
    )
    // DispatchRejections counts refused dispatch operations by operation and error kind
    DispatchRejections = prometheus.NewCounterVec(
        prometheus.CounterOpts{Namespace: namespace, Name: "dispatch_rejections_total", Help: "Dispatch operations refused by kind."},
        []string{"op", "kind"},
    )
    // DriverStatusChanges counts driver availability flips
    DriverStatusChanges = prometheus.NewCounterVec(
        prometheus.CounterOpts{Namespace: namespace, Name: "driver_status_changes_total", Help: "Driver availability changes."},
        []string{"status"},
    )
    PhotosRecorded = prometheus.NewCounter(
        prometheus.CounterOpts{Namespace: namespace, Name: "photos_recorded_total", Help: "Proof-of-delivery photos stored."},
    )
    TxRetries = prometheus.NewCounter(
        prometheus.CounterOpts{Namespace: namespace, Name: "store_tx_retries_total", Help: "Transactions retried after contention."},
    )

    // EventsPublished counts notifications fanned out per event type
    EventsPublished = prometheus.NewCounterVec(
        prometheus.CounterOpts{Namespace: namespace, Name: "events_published_total", Help: "Events published after commit."},
        []string{"type"},
    )
    // StreamClients tracks connected SSE and websocket subscribers
    StreamClients = prometheus.NewGaugeVec(
        prometheus.GaugeOpts{Namespace: namespace, Name: "stream_clients", Help: "Connected event stream clients."},
        []string{"transport"},
    )

    // WebhookDeliveries counts webhook delivery outcomes by event type and status
    WebhookDeliveries = prometheus.NewCounterVec(
        prometheus.CounterOpts{Namespace: namespace, Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
        []string{"event_type", "status"},
    )
    // WebhookLatency tracks webhook delivery latencies in milliseconds
    WebhookLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Namespace: namespace, Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
        []string{"event_type", "status"},
    )
)

// RegisterDefault registers collectors to the dedicated registry once.
func RegisterDefault() {
    regOnce.Do(func(){
        Registry.MustRegister(HTTPRequests, HTTPDuration, RateLimited)
        Registry.MustRegister(TripTransitions, DispatchRejections, DriverStatusChanges, PhotosRecorded, TxRetries)
        Registry.MustRegister(EventsPublished, StreamClients)
        Registry.MustRegister(WebhookDeliveries, WebhookLatency)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once
