package xled

import "fmt"

// AuthError indicates that the device rejected login or verification,
// or that the login response was malformed.
type AuthError struct {
	Op  string // "login", "verify" or "logout"
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed during %s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// TransportError wraps a network-level failure on the HTTP or UDP path.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIError is a non-success HTTP status from a device endpoint. The
// response body is kept for diagnostics.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("device api %s %s returned status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// FrameLengthError indicates a frame whose length does not match the
// device LED count. This is a caller error, no I/O has happened.
type FrameLengthError struct {
	Got  int
	Want int
}

func (e *FrameLengthError) Error() string {
	return fmt.Sprintf("frame has %d leds, device expects %d", e.Got, e.Want)
}

// MovieSizeError indicates a movie buffer whose length is not a whole
// number of frames for the device LED count.
type MovieSizeError struct {
	Size     int
	LEDCount int
}

func (e *MovieSizeError) Error() string {
	return fmt.Sprintf("movie of %d bytes is not a multiple of %d (3 bytes x %d leds)",
		e.Size, 3*e.LEDCount, e.LEDCount)
}
