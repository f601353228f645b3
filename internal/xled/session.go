package xled

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const challengeSize = 32

// TokenRecord is a cached authentication token with its absolute expiry.
type TokenRecord struct {
	Token   string
	Expires time.Time
}

// TokenStore persists tokens across client instances, so a short-lived
// process can reuse a still-valid token instead of logging in again.
// Load returns (nil, nil) when no unexpired record exists.
type TokenStore interface {
	Load(host string) (*TokenRecord, error)
	Save(host string, rec TokenRecord) error
	Delete(host string) error
}

// Session owns the authentication token and its renewal protocol.
// Renewal is lazy: validity is re-checked before every request, there is
// no background refresh. All check-then-renew sequences are serialized,
// so a session may be shared between goroutines.
type Session struct {
	host       string
	base       string
	httpClient *http.Client
	logger     zerolog.Logger
	now        func() time.Time
	store      TokenStore

	mu      sync.Mutex
	token   string
	expires time.Time
	seeded  bool
}

// EnsureValidToken returns a token that is valid at the current time,
// performing the login+verify protocol first if no token is held or the
// held one has expired. A failed verification leaves the session
// unauthenticated and surfaces as a single *AuthError.
func (s *Session) EnsureValidToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.seeded {
		s.seeded = true
		s.loadStored()
	}

	if s.token != "" && s.now().Before(s.expires) {
		s.logger.Debug().Msg("Authentication token still valid")
		return s.token, nil
	}

	s.logger.Debug().Msg("Authentication token missing or expired, logging in")
	if err := s.login(ctx); err != nil {
		return "", err
	}
	if err := s.verify(ctx); err != nil {
		// Token stays readable for introspection but must not be used.
		s.expires = time.Time{}
		return "", err
	}
	s.saveStored()

	return s.token, nil
}

// Token returns the current token in its base64 text form, renewing it
// first if needed.
func (s *Session) Token(ctx context.Context) (string, error) {
	return s.EnsureValidToken(ctx)
}

// DecodedToken returns the raw token bytes for embedding in realtime
// datagrams, renewing the token first if needed.
func (s *Session) DecodedToken(ctx context.Context) ([]byte, error) {
	token, err := s.EnsureValidToken(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, &AuthError{Op: "login", Err: fmt.Errorf("token is not valid base64: %w", err)}
	}
	return raw, nil
}

// Expires returns the absolute expiry of the held token, zero when the
// session is not authenticated.
func (s *Session) Expires() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expires
}

// Logout invalidates the session on the device and clears the stored
// token. The token is cleared even when the request fails.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.authedPost(ctx, "logout")
	s.token = ""
	s.expires = time.Time{}
	if s.store != nil {
		if derr := s.store.Delete(s.host); derr != nil {
			s.logger.Warn().Err(derr).Msg("Failed to remove cached token")
		}
	}
	if err != nil {
		return &AuthError{Op: "logout", Err: err}
	}
	s.logger.Debug().Msg("Logged out")
	return nil
}

// login sends a fresh random challenge and installs the returned token.
// Callers hold s.mu.
func (s *Session) login(ctx context.Context) error {
	challenge := make([]byte, challengeSize)
	if _, err := rand.Read(challenge); err != nil {
		return &AuthError{Op: "login", Err: err}
	}

	payload, err := json.Marshal(map[string]string{
		"challenge": base64.StdEncoding.EncodeToString(challenge),
	})
	if err != nil {
		return &AuthError{Op: "login", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base+"/login", bytes.NewReader(payload))
	if err != nil {
		return &AuthError{Op: "login", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &AuthError{Op: "login", Err: &TransportError{Op: "login", Err: err}}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return &AuthError{Op: "login", Err: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)}
	}

	var result struct {
		Token     string `json:"authentication_token"`
		ExpiresIn int    `json:"authentication_token_expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return &AuthError{Op: "login", Err: fmt.Errorf("malformed login response: %w", err)}
	}
	if result.Token == "" || result.ExpiresIn <= 0 {
		return &AuthError{Op: "login", Err: fmt.Errorf("login response missing token or ttl")}
	}

	s.token = result.Token
	s.expires = s.now().Add(time.Duration(result.ExpiresIn) * time.Second)

	s.logger.Debug().Time("expires", s.expires).Msg("Obtained authentication token")
	return nil
}

// verify confirms the freshly obtained token with the device. Callers
// hold s.mu.
func (s *Session) verify(ctx context.Context) error {
	if err := s.authedPost(ctx, "verify"); err != nil {
		return &AuthError{Op: "verify", Err: err}
	}
	return nil
}

// authedPost issues a bare POST with the auth header, used only for the
// verify and logout endpoints. Callers hold s.mu.
func (s *Session) authedPost(ctx context.Context, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base+"/"+endpoint, bytes.NewReader([]byte("{}")))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(authHeader, s.token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}
	return nil
}

// loadStored seeds the session from the token store. Callers hold s.mu.
func (s *Session) loadStored() {
	if s.store == nil {
		return
	}
	rec, err := s.store.Load(s.host)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to load cached token")
		return
	}
	if rec == nil || !s.now().Before(rec.Expires) {
		return
	}
	s.token = rec.Token
	s.expires = rec.Expires
	s.logger.Debug().Time("expires", s.expires).Msg("Reusing cached authentication token")
}

// saveStored persists the current token. Callers hold s.mu.
func (s *Session) saveStored() {
	if s.store == nil {
		return
	}
	if err := s.store.Save(s.host, TokenRecord{Token: s.token, Expires: s.expires}); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to cache token")
	}
}
