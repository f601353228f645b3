package animate

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/xledctl/internal/xled"
)

// Runner streams script-generated frames to the device at a fixed rate.
type Runner struct {
	Client   *xled.Client
	Streamer *xled.Streamer
	Script   *Script

	// FPS is the frame rate; Count limits the number of frames sent,
	// 0 streams until the context is cancelled.
	FPS   float64
	Count int
}

// Run switches the device into realtime mode and streams frames until
// Count is reached or the context is cancelled. Context cancellation is
// a normal stop, not an error.
func (r *Runner) Run(ctx context.Context) error {
	if _, err := r.Client.SetMode(ctx, xled.ModeRealtime); err != nil {
		return err
	}

	n, err := r.Client.Length(ctx)
	if err != nil {
		return err
	}

	limiter := rate.NewLimiter(rate.Limit(r.FPS), 1)
	start := time.Now()

	log.Info().Float64("fps", r.FPS).Int("leds", n).Msg("Streaming frames")

	for sent := 0; r.Count == 0 || sent < r.Count; sent++ {
		if err := limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			return err
		}

		frame, err := r.Script.Frame(time.Since(start).Seconds(), n)
		if err != nil {
			return err
		}
		if err := r.Streamer.SendFrame(ctx, frame); err != nil {
			return err
		}
	}

	log.Info().Msg("Streaming stopped")
	return nil
}
