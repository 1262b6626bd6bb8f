// Package main runs a demo WebSocket client: it registers a driver, opens the
// driver's event stream, assigns a fresh trip and prints what arrives.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type  string          `json:"type"`
	Event json.RawMessage `json:"event,omitempty"`
}

const tenant = "t_demo"

func call(base, method, path string, body any, out any) {
	b, _ := json.Marshal(body)
	req, _ := http.NewRequest(method, base+path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", tenant)
	req.Header.Set("X-Role", "admin")
	req.Header.Set("X-User-Id", "demo-admin")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		log.Fatalf("%s %s: %s", method, path, resp.Status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			log.Fatal(err)
		}
	}
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)
	stamp := time.Now().Format("150405")

	var driver struct{ ID string `json:"id"` }
	call(base, http.MethodPost, "/v1/drivers", map[string]string{
		"code": "DRV-" + stamp, "name": "Demo Driver", "phone": "+1555" + stamp,
		"licensePlate": "DEMO-" + stamp, "vehicleType": "van",
	}, &driver)
	var trip struct{ ID string `json:"id"` }
	call(base, http.MethodPost, "/v1/trips", map[string]string{"pickupLocation": "Dock 4", "deliveryLocation": "Warehouse B"}, &trip)
	log.Printf("driver %s, trip %s", driver.ID, trip.ID)

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/events/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", tenant)
	hdr.Set("X-Role", "driver")
	hdr.Set("X-Driver-Id", driver.ID)
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Event))
		}
	}()

	time.Sleep(500 * time.Millisecond)
	call(base, http.MethodPut, "/v1/trips/"+trip.ID+"/assign", map[string]any{"driverIds": []string{driver.ID}}, nil)

	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
