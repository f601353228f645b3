package xled

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// testDevice fakes the device control API and counts auth traffic.
type testDevice struct {
	srv *httptest.Server

	mu           sync.Mutex
	token        string
	expiresIn    int
	leds         int
	logins       int
	verifies     int
	gestalts     int
	verifyStatus int

	lastMethod      string
	lastPath        string
	lastBody        []byte
	lastContentType string
	failStatus      int
	failBody        string
}

func newTestDevice(t *testing.T) *testDevice {
	t.Helper()

	d := &testDevice{
		token:     "QUJD", // decodes to "ABC"
		expiresIn: 3600,
		leds:      10,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/xled/v1/login", d.handleLogin)
	mux.HandleFunc("/xled/v1/verify", d.handleVerify)
	mux.HandleFunc("/xled/v1/gestalt", d.handleGestalt)
	mux.HandleFunc("/xled/v1/", d.handleGeneric)

	d.srv = httptest.NewServer(mux)
	t.Cleanup(d.srv.Close)
	return d
}

// host returns the device address in the form the client expects.
func (d *testDevice) host() string {
	return strings.TrimPrefix(d.srv.URL, "http://")
}

func (d *testDevice) handleLogin(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logins++

	var payload struct {
		Challenge string `json:"challenge"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Challenge == "" {
		http.Error(w, "missing challenge", http.StatusBadRequest)
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"authentication_token":            d.token,
		"authentication_token_expires_in": d.expiresIn,
	})
}

func (d *testDevice) handleVerify(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.verifies++

	if d.verifyStatus != 0 {
		w.WriteHeader(d.verifyStatus)
		return
	}
	if r.Header.Get("X-Auth-Token") != d.token {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"code": 1000})
}

func (d *testDevice) handleGestalt(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gestalts++

	if r.Header.Get("X-Auth-Token") != d.token {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{
		"product_name":  "Twinkly",
		"number_of_led": d.leds,
		"code":          1000,
	})
}

func (d *testDevice) handleGeneric(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if r.Header.Get("X-Auth-Token") != d.token {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	d.lastMethod = r.Method
	d.lastPath = strings.TrimPrefix(r.URL.Path, "/xled/v1/")
	d.lastContentType = r.Header.Get("Content-Type")
	d.lastBody, _ = io.ReadAll(r.Body)

	if d.failStatus != 0 {
		w.WriteHeader(d.failStatus)
		io.WriteString(w, d.failBody)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"code": 1000})
}

func (d *testDevice) authCalls() (logins, verifies int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.logins, d.verifies
}

func (d *testDevice) lastRequest() (method, path string, body []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastMethod, d.lastPath, d.lastBody
}
