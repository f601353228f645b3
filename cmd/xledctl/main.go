package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/xledctl/internal/animate"
	"github.com/dokzlo13/xledctl/internal/config"
	"github.com/dokzlo13/xledctl/internal/tokenstore"
	"github.com/dokzlo13/xledctl/internal/xled"
)

func main() {
	var (
		host       string
		configPath string
		timeout    time.Duration
		debug      bool
		compact    bool
	)
	flag.StringVar(&host, "host", "", "Device address")
	flag.StringVar(&configPath, "config", "", "Path to configuration file (optional)")
	flag.DurationVar(&timeout, "timeout", 0, "HTTP timeout for control API requests")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&compact, "json", false, "Output result as compact JSON")
	flag.Usage = usage
	flag.Parse()

	cfg := loadConfig(configPath)
	if host != "" {
		cfg.Device.Host = host
	}
	if timeout > 0 {
		cfg.Device.Timeout = config.Duration(timeout)
	}

	setupLogging(cfg.Log.GetLevel(), debug, cfg.Log.Colors)
	log.Logger = log.With().Str("run_id", uuid.NewString()).Logger()

	if cfg.Device.Host == "" {
		log.Fatal().Msg("Device host is required (--host)")
	}
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	opts := []xled.Option{
		xled.WithTimeout(cfg.Device.Timeout.Duration()),
		xled.WithLogger(log.Logger),
	}
	if !cfg.TokenCache.Disable {
		store, err := tokenstore.Open(cfg.TokenCache.Path)
		if err != nil {
			log.Warn().Err(err).Msg("Token cache unavailable, continuing without")
		} else {
			defer store.Close()
			opts = append(opts, xled.WithTokenStore(store))
		}
	}

	client := xled.NewClient(cfg.Device.Host, opts...)
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := dispatch(ctx, client, cfg, flag.Arg(0), flag.Args()[1:])
	if err != nil {
		log.Fatal().Err(err).Str("command", flag.Arg(0)).Msg("Command failed")
	}
	if res != nil {
		printResult(res, compact)
	}
}

func loadConfig(path string) *config.Config {
	if path == "" {
		return config.Default()
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal().Err(err).Str("config", path).Msg("Failed to load configuration")
	}
	return cfg
}

func dispatch(ctx context.Context, client *xled.Client, cfg *config.Config, cmd string, args []string) (any, error) {
	switch cmd {
	case "network":
		return client.GetNetworkStatus(ctx)
	case "firmware":
		return client.GetFirmwareVersion(ctx)
	case "details":
		return client.GetDetails(ctx)
	case "token":
		return cmdToken(ctx, client)
	case "name":
		return cmdName(ctx, client, args)
	case "mode":
		return cmdMode(ctx, client, args)
	case "mqtt":
		return cmdMQTT(ctx, client, args)
	case "movie":
		return cmdMovie(ctx, client, args)
	case "color":
		return cmdColor(ctx, client, args)
	case "animate":
		return cmdAnimate(ctx, client, cfg, args)
	default:
		return nil, fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdToken(ctx context.Context, client *xled.Client) (any, error) {
	token, err := client.Token(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"authentication_token": token,
		"expires_at":           client.Session().Expires().Format(time.RFC3339),
	}, nil
}

func cmdName(ctx context.Context, client *xled.Client, args []string) (any, error) {
	fs := flag.NewFlagSet("name", flag.ExitOnError)
	name := fs.String("name", "", "New device name")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if !flagChanged(fs, "name") {
		return client.GetName(ctx)
	}
	return client.SetName(ctx, *name)
}

func cmdMode(ctx context.Context, client *xled.Client, args []string) (any, error) {
	fs := flag.NewFlagSet("mode", flag.ExitOnError)
	mode := fs.String("mode", "", "LED operation mode (rt, movie, off, demo, effect)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *mode == "" {
		return client.GetMode(ctx)
	}
	parsed, err := xled.ParseMode(*mode)
	if err != nil {
		return nil, err
	}
	return client.SetMode(ctx, parsed)
}

func cmdMQTT(ctx context.Context, client *xled.Client, args []string) (any, error) {
	fs := flag.NewFlagSet("mqtt", flag.ExitOnError)
	cfgJSON := fs.String("json", "", "MQTT config as JSON")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *cfgJSON == "" {
		return client.GetMQTTConfig(ctx)
	}
	var mqttCfg map[string]any
	if err := json.Unmarshal([]byte(*cfgJSON), &mqttCfg); err != nil {
		return nil, fmt.Errorf("invalid MQTT config: %w", err)
	}
	return client.SetMQTTConfig(ctx, mqttCfg)
}

func cmdMovie(ctx context.Context, client *xled.Client, args []string) (any, error) {
	fs := flag.NewFlagSet("movie", flag.ExitOnError)
	delay := fs.Int("delay", 100, "Delay between frames in milliseconds")
	file := fs.String("file", "", "Movie file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *file == "" {
		return client.GetMovieConfig(ctx)
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		return nil, err
	}
	movie := xled.Movie(data)

	n, err := client.Length(ctx)
	if err != nil {
		return nil, err
	}
	// Reject bad sizes before touching mode or playback config.
	frames, err := movie.Frames(n)
	if err != nil {
		return nil, err
	}

	if _, err := client.SetMode(ctx, xled.ModeMovie); err != nil {
		return nil, err
	}
	if _, err := client.SetMovieConfig(ctx, xled.MovieConfig{
		FrameDelay:   *delay,
		LedsNumber:   n,
		FramesNumber: frames,
	}); err != nil {
		return nil, err
	}
	_, res, err := client.UploadMovie(ctx, movie)
	return res, err
}

func cmdColor(ctx context.Context, client *xled.Client, args []string) (any, error) {
	fs := flag.NewFlagSet("color", flag.ExitOnError)
	rgb := fs.String("rgb", "", "Color as r,g,b (0-255 each)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	color, err := parseColor(*rgb)
	if err != nil {
		return nil, err
	}
	if err := client.SetStaticColor(ctx, color); err != nil {
		return nil, err
	}
	return map[string]any{"mode": string(xled.ModeMovie)}, nil
}

func cmdAnimate(ctx context.Context, client *xled.Client, cfg *config.Config, args []string) (any, error) {
	fs := flag.NewFlagSet("animate", flag.ExitOnError)
	scriptPath := fs.String("script", "", "Lua animation script")
	fps := fs.Float64("fps", cfg.Realtime.FPS, "Frames per second")
	count := fs.Int("count", 0, "Number of frames to send (0 = until interrupted)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *scriptPath == "" {
		return nil, fmt.Errorf("animation script is required (--script)")
	}

	script, err := animate.Load(*scriptPath)
	if err != nil {
		return nil, err
	}
	defer script.Close()

	streamer, err := xled.NewStreamer(client,
		xled.WithWriteDeadline(cfg.Realtime.WriteDeadline.Duration()))
	if err != nil {
		return nil, err
	}
	defer streamer.Close()

	runner := &animate.Runner{
		Client:   client,
		Streamer: streamer,
		Script:   script,
		FPS:      *fps,
		Count:    *count,
	}
	return nil, runner.Run(ctx)
}

func parseColor(s string) (xled.Color, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return xled.Color{}, fmt.Errorf("color must be r,g,b, got %q", s)
	}
	var channels [3]uint8
	for i, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || v < 0 || v > 255 {
			return xled.Color{}, fmt.Errorf("invalid color channel %q", part)
		}
		channels[i] = uint8(v)
	}
	return xled.Color{R: channels[0], G: channels[1], B: channels[2]}, nil
}

func flagChanged(fs *flag.FlagSet, name string) bool {
	changed := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			changed = true
		}
	})
	return changed
}

func printResult(res any, compact bool) {
	var (
		out []byte
		err error
	)
	if compact {
		out, err = json.Marshal(res)
	} else {
		out, err = json.MarshalIndent(res, "", "    ")
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to encode result")
	}
	fmt.Println(string(out))
}

func setupLogging(level string, debug bool, colors bool) {
	// ISO 8601 format with timezone
	zerolog.TimeFieldFormat = time.RFC3339

	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !colors,
	})

	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: xledctl --host <device> [flags] <command> [command flags]

Commands:
  network                     Get network status
  firmware                    Get firmware version
  details                     Get device details
  token                       Get authentication token
  name [--name v]             Get or set device name
  mode [--mode m]             Get or set LED operation mode (rt, movie, off, demo, effect)
  mqtt [--json cfg]           Get or set MQTT configuration
  movie [--delay ms] [--file path]
                              Get movie configuration or upload a movie
  color --rgb r,g,b           Set all LEDs to one static color
  animate --script file [--fps n] [--count n]
                              Stream Lua-scripted frames in realtime mode

Flags:
`)
	flag.PrintDefaults()
}
