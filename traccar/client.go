// Package traccar talks to the tracking platform: the OsmAnd-protocol
// location ingest endpoint and the device registry REST API.
package traccar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrDeviceUnknown reports an uplink rejected with HTTP 400, the platform's
// answer when no device matches the submitted identifier.
var ErrDeviceUnknown = errors.New("traccar: no device with matching identifier")

const requestTimeout = 30 * time.Second

// Sender posts translated location updates to the ingest endpoint.
// Deliveries are fire-and-forget: failures are logged and classified,
// never retried.
type Sender struct {
	baseURL string
	client  *http.Client
}

// NewSender creates a sender for an ingest base URL such as
// "http://traccar:8082".
func NewSender(baseURL string) *Sender {
	return &Sender{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: requestTimeout},
	}
}

// Send delivers one location update. A 400 response maps to
// ErrDeviceUnknown so the caller can tell a missing device apart from a
// server failure.
func (s *Sender) Send(query url.Values) error {
	target := s.baseURL + "/?" + query.Encode()
	req, err := http.NewRequest(http.MethodPost, target, nil)
	if err != nil {
		return fmt.Errorf("traccar: build uplink request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		log.Printf("Uplink: error sending to %s: %v", target, err)
		return fmt.Errorf("traccar: uplink: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		log.Printf("Uplink: %s. Create a device with a matching identifier on the tracking server.", resp.Status)
		return fmt.Errorf("%w (id=%s)", ErrDeviceUnknown, query.Get("id"))
	case resp.StatusCode > 299:
		log.Printf("Uplink: %s - %s", resp.Status, strings.TrimSpace(string(body)))
		return fmt.Errorf("traccar: uplink status %s", resp.Status)
	}
	return nil
}

// Device is one registry entry. Attributes carry operator-defined keys;
// the bridge scans them for callsign bindings.
type Device struct {
	ID         int            `json:"id"`
	Name       string         `json:"name"`
	UniqueID   string         `json:"uniqueId"`
	Disabled   bool           `json:"disabled"`
	Attributes map[string]any `json:"attributes"`
}

// Registry reads the device list from the platform's REST API with basic
// auth credentials.
type Registry struct {
	baseURL  string
	user     string
	password string
	client   *http.Client
}

// NewRegistry creates a registry client for an API base URL such as
// "http://traccar:8082".
func NewRegistry(baseURL, user, password string) *Registry {
	return &Registry{
		baseURL:  strings.TrimRight(baseURL, "/"),
		user:     user,
		password: password,
		client:   &http.Client{Timeout: requestTimeout},
	}
}

// Devices fetches every registered device, disabled ones included; the
// caller filters.
func (r *Registry) Devices(ctx context.Context) ([]Device, error) {
	target := r.baseURL + "/api/devices?all=true"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("traccar: build registry request: %w", err)
	}
	req.SetBasicAuth(r.user, r.password)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("traccar: registry: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("traccar: registry status %s", resp.Status)
	}
	var devices []Device
	if err := json.NewDecoder(resp.Body).Decode(&devices); err != nil {
		return nil, fmt.Errorf("traccar: decode device list: %w", err)
	}
	return devices, nil
}
