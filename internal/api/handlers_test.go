package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"

	"tripdispatch/internal/config"
	"tripdispatch/internal/model"
)

func newTestServer(t *testing.T, mutate ...func(*config.Config)) *Server {
	t.Helper()
	cfg := config.Default()
	for _, m := range mutate {
		m(&cfg)
	}
	s, err := NewServer(context.Background(), cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

// caller issues requests with dev identity headers.
type caller struct {
	t      *testing.T
	h      http.Handler
	tenant string
	role   string
	driver string
	user   string
}

func (c caller) header() http.Header {
	h := http.Header{}
	h.Set("X-Tenant-Id", c.tenant)
	h.Set("X-Role", c.role)
	if c.driver != "" {
		h.Set("X-Driver-Id", c.driver)
	}
	switch {
	case c.user != "":
		h.Set("X-User-Id", c.user)
	case c.role != "driver":
		h.Set("X-User-Id", "u-"+c.role)
	}
	return h
}

func (c caller) do(method, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			c.t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header = c.header()
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	c.h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func expect(t *testing.T, rr *httptest.ResponseRecorder, code int) {
	t.Helper()
	if rr.Code != code {
		t.Fatalf("got %d want %d: %s", rr.Code, code, rr.Body.String())
	}
}

// createDriver registers a driver as an admin of the caller's tenant.
func createDriver(t *testing.T, staff caller, code string) model.Driver {
	t.Helper()
	admin := staff
	admin.role = "admin"
	rr := admin.do(http.MethodPost, "/v1/drivers", model.DriverInput{
		Code: code, Name: "Driver " + code, Phone: "+1555" + code, LicensePlate: "PL-" + code, VehicleType: "van",
	})
	expect(t, rr, http.StatusCreated)
	return decode[model.Driver](t, rr)
}

func createTrip(t *testing.T, staff caller) model.TripDetail {
	t.Helper()
	rr := staff.do(http.MethodPost, "/v1/trips", model.TripInput{PickupLocation: "Dock 4", DeliveryLocation: "Warehouse B"})
	expect(t, rr, http.StatusCreated)
	return decode[model.TripDetail](t, rr)
}

func TestHealthReady(t *testing.T) {
	h := newTestServer(t).Routes()
	for _, path := range []string{"/healthz", "/readyz", "/debug/vars", "/ping"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != 200 {
			t.Fatalf("%s: got %d", path, rr.Code)
		}
	}
}

func TestMetricsExposeHTTPCounters(t *testing.T) {
	h := newTestServer(t).Routes()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	expect(t, rr, http.StatusOK)
	if !strings.Contains(rr.Body.String(), "tripdispatch_http_requests_total") {
		t.Fatalf("metrics output lacks request counter")
	}
}

func TestRequestsNeedIdentity(t *testing.T) {
	h := newTestServer(t).Routes()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/trips", nil))
	expect(t, rr, http.StatusUnauthorized)

	c := caller{t: t, h: h, tenant: "t1", role: "customer"}
	expect(t, c.do(http.MethodGet, "/v1/trips", nil), http.StatusForbidden)

	c = caller{t: t, h: h, tenant: "t1", role: "driver"}
	expect(t, c.do(http.MethodGet, "/v1/trips", nil), http.StatusUnauthorized)

	// staff must name themselves so writes carry an author
	req := httptest.NewRequest(http.MethodPost, "/v1/trips/x/photos", strings.NewReader(`[{"fileName":"a.jpg"}]`))
	req.Header.Set("X-Tenant-Id", "t1")
	req.Header.Set("X-Role", "admin")
	req.Header.Set("X-User-Id", "  ")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	expect(t, rr, http.StatusUnauthorized)
}

func TestDevHeadersDisabledOutsideDevMode(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.Auth.Mode = "hmac"
		c.Auth.HMACSecret = "secret"
	})
	c := caller{t: t, h: s.Routes(), tenant: "t1", role: "admin"}
	expect(t, c.do(http.MethodGet, "/v1/trips", nil), http.StatusUnauthorized)
}

func TestTripDispatchFlow(t *testing.T) {
	h := newTestServer(t).Routes()
	staff := caller{t: t, h: h, tenant: "t1", role: "dispatcher"}
	d1 := createDriver(t, staff, "D1")
	trip := createTrip(t, staff)
	if trip.Status != model.TripPending || trip.Code == "" {
		t.Fatalf("unexpected new trip: %+v", trip.Trip)
	}

	rr := staff.do(http.MethodPut, "/v1/trips/"+trip.ID+"/assign", driverIDsRequest{DriverIDs: []string{d1.ID}})
	expect(t, rr, http.StatusOK)
	got := decode[model.TripDetail](t, rr)
	if got.Status != model.TripAssigned || len(got.Drivers) != 1 || got.Drivers[0].DriverName != d1.Name {
		t.Fatalf("assign result: %+v", got)
	}

	driver := caller{t: t, h: h, tenant: "t1", role: "driver", driver: d1.ID}
	me := decode[model.Driver](t, driver.do(http.MethodGet, "/v1/drivers/me", nil))
	if me.Status != model.DriverBusy {
		t.Fatalf("assigned driver should be busy, got %s", me.Status)
	}
	// busy driver cannot free themself while the trip is open
	expect(t, driver.do(http.MethodPut, "/v1/drivers/me/status", driverStatusRequest{Status: model.DriverAvailable}), http.StatusConflict)

	// driver cannot skip straight to completed
	expect(t, driver.do(http.MethodPut, "/v1/trips/"+trip.ID+"/status", statusRequest{Status: model.TripCompleted,
		Photos: []model.PhotoDescriptor{{FileName: "a.jpg"}}}), http.StatusConflict)
	expect(t, driver.do(http.MethodPut, "/v1/trips/"+trip.ID+"/status", statusRequest{Status: model.TripInProgress}), http.StatusOK)
	// completion requires proof
	expect(t, driver.do(http.MethodPut, "/v1/trips/"+trip.ID+"/status", statusRequest{Status: model.TripCompleted}), http.StatusBadRequest)

	rr = driver.do(http.MethodPut, "/v1/trips/"+trip.ID+"/status", statusRequest{Status: model.TripCompleted,
		Photos: []model.PhotoDescriptor{{FileName: "pod-1.jpg", LocalIdentifier: "L1"}, {FileName: "pod-2.jpg", LocalIdentifier: "L2"}}})
	expect(t, rr, http.StatusOK)
	done := decode[model.TripDetail](t, rr)
	if done.Status != model.TripCompleted || done.PhotoCount != 2 || !done.HasPhotos {
		t.Fatalf("completed trip: %+v", done.Trip)
	}

	photos := decode[page[model.Photo]](t, driver.do(http.MethodGet, "/v1/trips/"+trip.ID+"/photos", nil))
	if len(photos.Items) != 2 || photos.Items[0].UploadedByDriver != d1.ID {
		t.Fatalf("photos: %+v", photos.Items)
	}
	me = decode[model.Driver](t, driver.do(http.MethodGet, "/v1/drivers/me", nil))
	if me.Status != model.DriverAvailable {
		t.Fatalf("driver should be released after completion, got %s", me.Status)
	}

	list := decode[page[model.Trip]](t, driver.do(http.MethodGet, "/v1/trips?status=completed", nil))
	if len(list.Items) != 1 || list.Items[0].ID != trip.ID {
		t.Fatalf("driver trip list: %+v", list.Items)
	}
}

func TestTransferOverHTTP(t *testing.T) {
	h := newTestServer(t).Routes()
	staff := caller{t: t, h: h, tenant: "t1", role: "admin"}
	d1, d2 := createDriver(t, staff, "D1"), createDriver(t, staff, "D2")
	trip := createTrip(t, staff)
	expect(t, staff.do(http.MethodPut, "/v1/trips/"+trip.ID+"/assign", driverIDsRequest{DriverIDs: []string{d1.ID}}), http.StatusOK)

	rr := staff.do(http.MethodPut, "/v1/trips/"+trip.ID+"/transfer", driverIDsRequest{DriverIDs: []string{d2.ID}})
	expect(t, rr, http.StatusOK)
	got := decode[model.TripDetail](t, rr)
	if len(got.Drivers) != 1 || got.Drivers[0].DriverID != d2.ID {
		t.Fatalf("transfer result: %+v", got.Drivers)
	}
	if d := decode[model.Driver](t, staff.do(http.MethodGet, "/v1/drivers/"+d1.ID, nil)); d.Status != model.DriverAvailable {
		t.Fatalf("outgoing driver status %s", d.Status)
	}
	if d := decode[model.Driver](t, staff.do(http.MethodGet, "/v1/drivers/"+d2.ID, nil)); d.Status != model.DriverBusy {
		t.Fatalf("incoming driver status %s", d.Status)
	}
	// a driver that is no longer assigned cannot read the trip
	old := caller{t: t, h: h, tenant: "t1", role: "driver", driver: d1.ID}
	expect(t, old.do(http.MethodGet, "/v1/trips/"+trip.ID, nil), http.StatusForbidden)

	expect(t, staff.do(http.MethodPut, "/v1/trips/"+trip.ID+"/status", statusRequest{Status: model.TripCancelled}), http.StatusOK)
	expect(t, staff.do(http.MethodPut, "/v1/trips/"+trip.ID+"/transfer", driverIDsRequest{DriverIDs: []string{d1.ID}}), http.StatusConflict)
}

func TestErrorMapping(t *testing.T) {
	h := newTestServer(t).Routes()
	staff := caller{t: t, h: h, tenant: "t1", role: "admin"}
	other := caller{t: t, h: h, tenant: "t2", role: "admin"}
	trip := createTrip(t, staff)

	cases := []struct {
		name   string
		c      caller
		method string
		path   string
		body   any
		want   int
	}{
		{"missing locations", staff, http.MethodPost, "/v1/trips", map[string]string{"customer": "x"}, http.StatusBadRequest},
		{"unknown field", staff, http.MethodPost, "/v1/trips", map[string]string{"pickup": "x"}, http.StatusBadRequest},
		{"bad status", staff, http.MethodPut, "/v1/trips/" + trip.ID + "/status", statusRequest{Status: "lost"}, http.StatusBadRequest},
		{"empty assign", staff, http.MethodPut, "/v1/trips/" + trip.ID + "/assign", driverIDsRequest{}, http.StatusBadRequest},
		{"unknown trip", staff, http.MethodGet, "/v1/trips/00000000-0000-0000-0000-000000000000", nil, http.StatusNotFound},
		{"other tenant", other, http.MethodGet, "/v1/trips/" + trip.ID, nil, http.StatusNotFound},
		{"staff has no me", staff, http.MethodGet, "/v1/drivers/me", nil, http.StatusForbidden},
		{"bad location", caller{t: t, h: h, tenant: "t1", role: "driver", driver: "x"}, http.MethodPut, "/v1/drivers/me/location", model.GeoPoint{Lat: 91}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		rr := tc.c.do(tc.method, tc.path, tc.body)
		if rr.Code != tc.want {
			t.Fatalf("%s: got %d want %d: %s", tc.name, rr.Code, tc.want, rr.Body.String())
		}
		if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/problem+json") {
			t.Fatalf("%s: content type %q", tc.name, ct)
		}
	}

	// delete is allowed only from pending
	expect(t, staff.do(http.MethodDelete, "/v1/trips/"+trip.ID, nil), http.StatusNoContent)
	expect(t, staff.do(http.MethodGet, "/v1/trips/"+trip.ID, nil), http.StatusNotFound)
}

func TestDriverCannotUseStaffEndpoints(t *testing.T) {
	h := newTestServer(t).Routes()
	staff := caller{t: t, h: h, tenant: "t1", role: "admin"}
	d1 := createDriver(t, staff, "D1")
	trip := createTrip(t, staff)
	driver := caller{t: t, h: h, tenant: "t1", role: "driver", driver: d1.ID}

	expect(t, driver.do(http.MethodPost, "/v1/trips", model.TripInput{PickupLocation: "a", DeliveryLocation: "b"}), http.StatusForbidden)
	expect(t, driver.do(http.MethodPut, "/v1/trips/"+trip.ID+"/assign", driverIDsRequest{DriverIDs: []string{d1.ID}}), http.StatusForbidden)
	expect(t, driver.do(http.MethodGet, "/v1/drivers", nil), http.StatusForbidden)
	expect(t, driver.do(http.MethodPut, "/v1/drivers/me/status", driverStatusRequest{Status: model.DriverBusy}), http.StatusForbidden)
}

func TestAdminOnlyOperations(t *testing.T) {
	h := newTestServer(t).Routes()
	admin := caller{t: t, h: h, tenant: "t1", role: "admin"}
	disp := caller{t: t, h: h, tenant: "t1", role: "dispatcher"}
	d1 := createDriver(t, admin, "D1")
	trip := createTrip(t, disp)

	expect(t, disp.do(http.MethodPost, "/v1/drivers", model.DriverInput{
		Code: "D2", Name: "Driver D2", Phone: "+1555D2", LicensePlate: "PL-D2", VehicleType: "van",
	}), http.StatusForbidden)
	expect(t, disp.do(http.MethodPut, "/v1/drivers/"+d1.ID, map[string]string{"name": "X"}), http.StatusForbidden)
	expect(t, disp.do(http.MethodDelete, "/v1/drivers/"+d1.ID, nil), http.StatusForbidden)
	expect(t, disp.do(http.MethodDelete, "/v1/trips/"+trip.ID, nil), http.StatusForbidden)

	expect(t, admin.do(http.MethodDelete, "/v1/trips/"+trip.ID, nil), http.StatusNoContent)
	expect(t, admin.do(http.MethodDelete, "/v1/drivers/"+d1.ID, nil), http.StatusNoContent)
}

func TestTenantRateLimit(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.RateRPS = 0.001
		c.RateBurst = 1
	})
	h := s.Routes()
	a := caller{t: t, h: h, tenant: "t1", role: "admin"}
	b := caller{t: t, h: h, tenant: "t2", role: "admin"}
	expect(t, a.do(http.MethodGet, "/v1/trips", nil), http.StatusOK)
	expect(t, a.do(http.MethodGet, "/v1/trips", nil), http.StatusTooManyRequests)
	// buckets are per tenant
	expect(t, b.do(http.MethodGet, "/v1/trips", nil), http.StatusOK)
}

func TestSSEStreamDeliversTenantEvents(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/events/stream", nil)
	req.Header.Set("X-Tenant-Id", "t1")
	req.Header.Set("X-Role", "dispatcher")
	req.Header.Set("X-User-Id", "u-ops")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type %q", ct)
	}

	lines := bufio.NewScanner(resp.Body)
	waitFor := func(prefix string) string {
		for lines.Scan() {
			if strings.HasPrefix(lines.Text(), prefix) {
				return lines.Text()
			}
		}
		t.Fatalf("stream ended before %q: %v", prefix, lines.Err())
		return ""
	}
	// The first heartbeat is written after the subscription exists.
	waitFor("event: heartbeat")

	createTrip(t, caller{t: t, h: s.Routes(), tenant: "t2", role: "admin"})
	trip := createTrip(t, caller{t: t, h: s.Routes(), tenant: "t1", role: "admin"})
	waitFor("event: trip.created")
	data := waitFor("data: ")
	if !strings.Contains(data, trip.ID) {
		t.Fatalf("event data %s does not reference trip %s", data, trip.ID)
	}
}

func TestWebSocketStream(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	staff := caller{t: t, h: s.Routes(), tenant: "t1", role: "admin"}
	d1 := createDriver(t, staff, "D1")
	trip := createTrip(t, staff)

	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t1")
	hdr.Set("X-Role", "driver")
	hdr.Set("X-Driver-Id", d1.ID)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/events/ws", hdr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	// A pong proves the server loop, and so the subscription, is running.
	if err := conn.WriteJSON(wsMessage{Type: "ping"}); err != nil {
		t.Fatalf("ping: %v", err)
	}
	var msg wsMessage
	if err := conn.ReadJSON(&msg); err != nil || msg.Type != "pong" {
		t.Fatalf("pong: %+v %v", msg, err)
	}

	expect(t, staff.do(http.MethodPut, "/v1/trips/"+trip.ID+"/assign", driverIDsRequest{DriverIDs: []string{d1.ID}}), http.StatusOK)
	for {
		msg = wsMessage{}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if msg.Type == "event" && msg.Event.Type == "trip.assigned" && msg.Event.Data["tripId"] == trip.ID {
			return
		}
	}
}
