package xled

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const authHeader = "X-Auth-Token"

// Mode is a device LED operation mode.
type Mode string

const (
	ModeRealtime Mode = "rt"
	ModeMovie    Mode = "movie"
	ModeOff      Mode = "off"
	ModeDemo     Mode = "demo"
	ModeEffect   Mode = "effect"
)

// Modes lists all device operation modes.
var Modes = []Mode{ModeRealtime, ModeMovie, ModeOff, ModeDemo, ModeEffect}

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	for _, m := range Modes {
		if s == string(m) {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// MovieConfig is the device movie playback configuration.
type MovieConfig struct {
	FrameDelay   int `json:"frame_delay,omitempty"`
	LedsNumber   int `json:"leds_number,omitempty"`
	FramesNumber int `json:"frames_number,omitempty"`
}

// Client talks to a single xled device over its HTTP control API. Every
// operation transparently ensures a valid authentication token before
// issuing its request.
type Client struct {
	host       string
	base       string
	httpClient *http.Client
	session    *Session
	logger     zerolog.Logger

	mu      sync.Mutex
	details map[string]any
}

// Option customizes a Client.
type Option func(*Client)

// WithTimeout sets the HTTP timeout for all control API requests.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithLogger replaces the default global logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithTokenStore attaches a persistent token cache to the session.
func WithTokenStore(store TokenStore) Option {
	return func(c *Client) { c.session.store = store }
}

// WithClock replaces the session clock, used by tests.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.session.now = now }
}

// NewClient creates a client for the device at host (name or address,
// optionally with port).
func NewClient(host string, opts ...Option) *Client {
	base := fmt.Sprintf("http://%s/xled/v1", host)
	httpClient := &http.Client{Timeout: 30 * time.Second}

	c := &Client{
		host:       host,
		base:       base,
		httpClient: httpClient,
		logger:     log.Logger,
	}
	c.session = &Session{
		host:       host,
		base:       base,
		httpClient: httpClient,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.session.logger = c.logger

	return c
}

// Host returns the device address.
func (c *Client) Host() string { return c.host }

// Session returns the authentication session owned by this client.
func (c *Client) Session() *Session { return c.session }

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// Token returns the current authentication token, renewing it if needed.
func (c *Client) Token(ctx context.Context) (string, error) {
	return c.session.Token(ctx)
}

// GetName returns the device name record.
func (c *Client) GetName(ctx context.Context) (map[string]any, error) {
	return c.get(ctx, "device_name")
}

// SetName renames the device.
func (c *Client) SetName(ctx context.Context, name string) (map[string]any, error) {
	return c.post(ctx, "device_name", map[string]string{"name": name})
}

// GetMode returns the current LED operation mode record.
func (c *Client) GetMode(ctx context.Context) (map[string]any, error) {
	return c.get(ctx, "led/mode")
}

// SetMode switches the LED operation mode.
func (c *Client) SetMode(ctx context.Context, mode Mode) (map[string]any, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	return c.post(ctx, "led/mode", map[string]string{"mode": string(mode)})
}

// GetNetworkStatus returns the device network status.
func (c *Client) GetNetworkStatus(ctx context.Context) (map[string]any, error) {
	return c.get(ctx, "network/status")
}

// GetFirmwareVersion returns the device firmware version.
func (c *Client) GetFirmwareVersion(ctx context.Context) (map[string]any, error) {
	return c.get(ctx, "fw/version")
}

// GetDetails returns the device details ("gestalt"). The first
// successful fetch is cached for the lifetime of the client.
func (c *Client) GetDetails(ctx context.Context) (map[string]any, error) {
	c.mu.Lock()
	if c.details != nil {
		details := c.details
		c.mu.Unlock()
		return details, nil
	}
	c.mu.Unlock()

	details, err := c.get(ctx, "gestalt")
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.details = details
	c.mu.Unlock()
	return details, nil
}

// Length returns the number of LEDs on the device output line, fetching
// device details on first use.
func (c *Client) Length(ctx context.Context) (int, error) {
	details, err := c.GetDetails(ctx)
	if err != nil {
		return 0, err
	}
	n, ok := details["number_of_led"].(float64)
	if !ok || n <= 0 {
		return 0, fmt.Errorf("device details missing number_of_led")
	}
	return int(n), nil
}

// Reset restarts the LED driver.
func (c *Client) Reset(ctx context.Context) (map[string]any, error) {
	return c.get(ctx, "reset")
}

// GetMQTTConfig returns the MQTT bridge configuration.
func (c *Client) GetMQTTConfig(ctx context.Context) (map[string]any, error) {
	return c.get(ctx, "mqtt/config")
}

// SetMQTTConfig replaces the MQTT bridge configuration. The full
// accepted payload shape must be sent, there are no partial updates.
func (c *Client) SetMQTTConfig(ctx context.Context, cfg map[string]any) (map[string]any, error) {
	return c.post(ctx, "mqtt/config", cfg)
}

// GetMovieConfig returns the movie playback configuration.
func (c *Client) GetMovieConfig(ctx context.Context) (map[string]any, error) {
	return c.get(ctx, "led/movie/config")
}

// SetMovieConfig replaces the movie playback configuration.
func (c *Client) SetMovieConfig(ctx context.Context, cfg MovieConfig) (map[string]any, error) {
	return c.post(ctx, "led/movie/config", cfg)
}

// UploadMovie validates the movie size against the device LED count and
// uploads it for offline playback. Returns the number of frames the
// movie contains alongside the device response.
func (c *Client) UploadMovie(ctx context.Context, movie Movie) (int, map[string]any, error) {
	n, err := c.Length(ctx)
	if err != nil {
		return 0, nil, err
	}
	frames, err := movie.Frames(n)
	if err != nil {
		return 0, nil, err
	}
	res, err := c.postRaw(ctx, "led/movie/full", "application/octet-stream", []byte(movie))
	if err != nil {
		return 0, nil, err
	}
	c.logger.Debug().Int("frames", frames).Int("leds", n).Msg("Movie uploaded")
	return frames, res, nil
}

// SetStaticColor uploads a single-frame movie of one solid color and
// switches the device into movie mode.
func (c *Client) SetStaticColor(ctx context.Context, color Color) error {
	n, err := c.Length(ctx)
	if err != nil {
		return err
	}
	movie := Movie(SolidFrame(n, color).Encode())
	if _, _, err := c.UploadMovie(ctx, movie); err != nil {
		return err
	}
	if _, err := c.SetMovieConfig(ctx, MovieConfig{FramesNumber: 1}); err != nil {
		return err
	}
	if _, err := c.SetMode(ctx, ModeMovie); err != nil {
		return err
	}
	return nil
}

func (c *Client) get(ctx context.Context, endpoint string) (map[string]any, error) {
	c.logger.Debug().Str("endpoint", endpoint).Msg("GET")
	return c.do(ctx, http.MethodGet, endpoint, "", nil)
}

func (c *Client) post(ctx context.Context, endpoint string, payload any) (map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	c.logger.Debug().Str("endpoint", endpoint).RawJSON("payload", body).Msg("POST")
	return c.do(ctx, http.MethodPost, endpoint, "application/json", body)
}

func (c *Client) postRaw(ctx context.Context, endpoint, contentType string, body []byte) (map[string]any, error) {
	c.logger.Debug().Str("endpoint", endpoint).Int("bytes", len(body)).Msg("POST")
	return c.do(ctx, http.MethodPost, endpoint, contentType, body)
}

func (c *Client) do(ctx context.Context, method, endpoint, contentType string, body []byte) (map[string]any, error) {
	token, err := c.session.EnsureValidToken(ctx)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+"/"+endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set(authHeader, token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: method + " " + endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &APIError{Method: method, Path: endpoint, StatusCode: resp.StatusCode, Body: respBody}
	}

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("malformed response from %s: %w", endpoint, err)
	}
	return result, nil
}
