package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/pflag"

	"Aetherlink/cmd/aetherlink/config"
	"Aetherlink/internel/utils"
)

func main() {
	configPath := pflag.StringP("config", "c", "config.yaml", "path to the configuration document")
	output := pflag.StringP("output", "o", "capture.wav", "output WAV file")
	duration := pflag.DurationP("duration", "d", 5*time.Second, "how long to record")
	pflag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil)).With("component", "record")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	track, err := record(ctx, cfg, *duration, logger)
	if err != nil {
		logger.Error("recording failed", "error", err)
		os.Exit(1)
	}
	if err := utils.WriteWAV(*output, track, *cfg.SamplingRate); err != nil {
		logger.Error("failed to write capture", "error", err)
		os.Exit(1)
	}
	logger.Info("capture written", "file", *output, "samples", len(track))
}

// record keeps every chunk the device captures until duration has elapsed.
// An interrupt stops early and keeps what was recorded so far.
func record(ctx context.Context, cfg *config.Config, duration time.Duration, logger *slog.Logger) ([]float64, error) {
	dev, err := config.CreateDevice(cfg)
	if err != nil {
		return nil, err
	}
	stream := config.CreateStream(cfg, dev)
	if err := stream.Open(); err != nil {
		return nil, err
	}
	defer stream.Close()

	want := int(duration.Seconds() * float64(*cfg.SamplingRate))
	track := make([]float64, 0, want)
	for len(track) < want {
		chunk, err := stream.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return nil, fmt.Errorf("failed to read audio: %w", err)
		}
		track = append(track, chunk...)
	}
	if n := stream.Overruns(); n > 0 {
		logger.Warn("audio chunks dropped while recording", "count", n)
	}
	return track, nil
}
