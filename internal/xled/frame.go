package xled

// Color is a single RGB triple, one channel byte per LED color.
type Color struct {
	R, G, B uint8
}

// Frame is one complete set of per-LED colors, index order matching the
// physical LED position on the device string.
type Frame []Color

// Encode serializes the frame as concatenated RGB bytes in LED order.
func (f Frame) Encode() []byte {
	buf := make([]byte, 0, 3*len(f))
	for _, c := range f {
		buf = append(buf, c.R, c.G, c.B)
	}
	return buf
}

// SolidFrame returns a frame of n LEDs all set to the same color.
func SolidFrame(n int, c Color) Frame {
	f := make(Frame, n)
	for i := range f {
		f[i] = c
	}
	return f
}

// Movie is a raw buffer of whole frames, 3 bytes per LED per frame,
// uploaded in bulk for offline playback.
type Movie []byte

// Frames returns the number of frames the movie contains for the given
// LED count. The buffer length must be an exact multiple of one frame,
// otherwise a *MovieSizeError is returned.
func (m Movie) Frames(ledCount int) (int, error) {
	frameSize := 3 * ledCount
	if frameSize <= 0 || len(m)%frameSize != 0 {
		return 0, &MovieSizeError{Size: len(m), LEDCount: ledCount}
	}
	return len(m) / frameSize, nil
}
