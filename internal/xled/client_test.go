package xled

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"testing"
)

func TestClient_EndpointContracts(t *testing.T) {
	tests := []struct {
		name       string
		call       func(ctx context.Context, c *Client) error
		wantMethod string
		wantPath   string
		wantBody   string
	}{
		{
			name: "get_name",
			call: func(ctx context.Context, c *Client) error {
				_, err := c.GetName(ctx)
				return err
			},
			wantMethod: http.MethodGet,
			wantPath:   "device_name",
		},
		{
			name: "set_name",
			call: func(ctx context.Context, c *Client) error {
				_, err := c.SetName(ctx, "tree")
				return err
			},
			wantMethod: http.MethodPost,
			wantPath:   "device_name",
			wantBody:   `{"name":"tree"}`,
		},
		{
			name: "get_mode",
			call: func(ctx context.Context, c *Client) error {
				_, err := c.GetMode(ctx)
				return err
			},
			wantMethod: http.MethodGet,
			wantPath:   "led/mode",
		},
		{
			name: "set_mode",
			call: func(ctx context.Context, c *Client) error {
				_, err := c.SetMode(ctx, ModeMovie)
				return err
			},
			wantMethod: http.MethodPost,
			wantPath:   "led/mode",
			wantBody:   `{"mode":"movie"}`,
		},
		{
			name: "network_status",
			call: func(ctx context.Context, c *Client) error {
				_, err := c.GetNetworkStatus(ctx)
				return err
			},
			wantMethod: http.MethodGet,
			wantPath:   "network/status",
		},
		{
			name: "firmware_version",
			call: func(ctx context.Context, c *Client) error {
				_, err := c.GetFirmwareVersion(ctx)
				return err
			},
			wantMethod: http.MethodGet,
			wantPath:   "fw/version",
		},
		{
			name: "get_mqtt",
			call: func(ctx context.Context, c *Client) error {
				_, err := c.GetMQTTConfig(ctx)
				return err
			},
			wantMethod: http.MethodGet,
			wantPath:   "mqtt/config",
		},
		{
			name: "set_mqtt",
			call: func(ctx context.Context, c *Client) error {
				_, err := c.SetMQTTConfig(ctx, map[string]any{"broker_host": "mqtt.local"})
				return err
			},
			wantMethod: http.MethodPost,
			wantPath:   "mqtt/config",
			wantBody:   `{"broker_host":"mqtt.local"}`,
		},
		{
			name: "get_movie_config",
			call: func(ctx context.Context, c *Client) error {
				_, err := c.GetMovieConfig(ctx)
				return err
			},
			wantMethod: http.MethodGet,
			wantPath:   "led/movie/config",
		},
		{
			name: "set_movie_config",
			call: func(ctx context.Context, c *Client) error {
				_, err := c.SetMovieConfig(ctx, MovieConfig{FrameDelay: 100, LedsNumber: 10, FramesNumber: 2})
				return err
			},
			wantMethod: http.MethodPost,
			wantPath:   "led/movie/config",
			wantBody:   `{"frame_delay":100,"leds_number":10,"frames_number":2}`,
		},
		{
			name: "reset",
			call: func(ctx context.Context, c *Client) error {
				_, err := c.Reset(ctx)
				return err
			},
			wantMethod: http.MethodGet,
			wantPath:   "reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newTestDevice(t)
			client := NewClient(dev.host())

			if err := tt.call(context.Background(), client); err != nil {
				t.Fatalf("call failed: %v", err)
			}

			method, path, body := dev.lastRequest()
			if method != tt.wantMethod {
				t.Errorf("method = %s, want %s", method, tt.wantMethod)
			}
			if path != tt.wantPath {
				t.Errorf("path = %s, want %s", path, tt.wantPath)
			}
			if tt.wantBody != "" && string(bytes.TrimSpace(body)) != tt.wantBody {
				t.Errorf("body = %s, want %s", body, tt.wantBody)
			}
		})
	}
}

func TestClient_DetailsCached(t *testing.T) {
	dev := newTestDevice(t)
	client := NewClient(dev.host())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := client.GetDetails(ctx); err != nil {
			t.Fatalf("GetDetails: %v", err)
		}
	}
	n, err := client.Length(ctx)
	if err != nil {
		t.Fatalf("Length: %v", err)
	}
	if n != 10 {
		t.Errorf("Length = %d, want 10", n)
	}

	dev.mu.Lock()
	gestalts := dev.gestalts
	dev.mu.Unlock()
	if gestalts != 1 {
		t.Errorf("gestalt fetched %d times, want 1", gestalts)
	}
}

func TestClient_APIError(t *testing.T) {
	dev := newTestDevice(t)
	dev.failStatus = http.StatusInternalServerError
	dev.failBody = "driver fault"

	client := NewClient(dev.host())
	_, err := client.GetName(context.Background())

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", apiErr.StatusCode)
	}
	if string(apiErr.Body) != "driver fault" {
		t.Errorf("Body = %q, want %q", apiErr.Body, "driver fault")
	}
}

func TestClient_SetModeRejectsUnknown(t *testing.T) {
	dev := newTestDevice(t)
	client := NewClient(dev.host())

	if _, err := client.SetMode(context.Background(), Mode("disco")); err == nil {
		t.Fatal("SetMode accepted unknown mode")
	}
	if method, _, _ := dev.lastRequest(); method != "" {
		t.Error("invalid mode reached the device")
	}
}

func TestClient_UploadMovie(t *testing.T) {
	dev := newTestDevice(t)
	client := NewClient(dev.host())
	ctx := context.Background()

	frames, _, err := client.UploadMovie(ctx, Movie(make([]byte, 2*3*10)))
	if err != nil {
		t.Fatalf("UploadMovie: %v", err)
	}
	if frames != 2 {
		t.Errorf("frames = %d, want 2", frames)
	}

	method, path, body := dev.lastRequest()
	if method != http.MethodPost || path != "led/movie/full" {
		t.Errorf("request = %s %s, want POST led/movie/full", method, path)
	}
	if len(body) != 60 {
		t.Errorf("uploaded %d bytes, want 60", len(body))
	}
	dev.mu.Lock()
	ct := dev.lastContentType
	dev.mu.Unlock()
	if ct != "application/octet-stream" {
		t.Errorf("content type = %q, want application/octet-stream", ct)
	}
}

func TestClient_UploadMovieRejectsBadSize(t *testing.T) {
	dev := newTestDevice(t)
	client := NewClient(dev.host())

	_, _, err := client.UploadMovie(context.Background(), Movie(make([]byte, 29)))
	var sizeErr *MovieSizeError
	if !errors.As(err, &sizeErr) {
		t.Fatalf("error = %v, want *MovieSizeError", err)
	}
	if _, path, _ := dev.lastRequest(); path == "led/movie/full" {
		t.Error("invalid movie reached the upload endpoint")
	}
}

func TestClient_AuthErrorOnUnreachableDevice(t *testing.T) {
	// Closed port: the login attempt fails at the transport level and
	// surfaces as an authentication error wrapping it.
	client := NewClient("127.0.0.1:1")

	_, err := client.GetName(context.Background())
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("error = %v, want *AuthError", err)
	}
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Errorf("error chain %v does not include *TransportError", err)
	}
}
