package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"Aetherlink/cmd/aetherlink/config"
	"Aetherlink/internel/utils"
	"Aetherlink/pkg/layers"
	"Aetherlink/pkg/modem"
)

func main() {
	configPath := pflag.StringP("config", "c", "config.yaml", "path to the configuration document")
	output := pflag.StringP("output", "o", "frame.wav", "output file (.wav, .bin or .txt)")
	play := pflag.Bool("play", false, "play the frame on the configured device instead of writing a file")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] message\n", filepath.Base(os.Args[0]))
		pflag.PrintDefaults()
	}
	pflag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil)).With("component", "encode")
	if pflag.NArg() == 0 {
		pflag.Usage()
		os.Exit(2)
	}
	text := strings.Join(pflag.Args(), " ")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	frame, err := layers.NewEncoder(config.CreateChannel(cfg), cfg.ECC.Keys, cfg.ECC.Payload).Encode(text)
	if err != nil {
		logger.Error("failed to encode", "error", err)
		os.Exit(1)
	}
	modem.Normalize(frame)

	if *play {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if err := playFrame(ctx, cfg, frame); err != nil {
			logger.Error("failed to play frame", "error", err)
			os.Exit(1)
		}
		logger.Info("frame played", "samples", len(frame))
		return
	}

	if err := write(*output, frame, *cfg.SamplingRate); err != nil {
		logger.Error("failed to write frame", "error", err)
		os.Exit(1)
	}
	logger.Info("frame written", "file", *output, "samples", len(frame))
}

func playFrame(ctx context.Context, cfg *config.Config, frame []float64) error {
	dev, err := config.CreateDevice(cfg)
	if err != nil {
		return err
	}
	stream := config.CreateStream(cfg, dev)
	if err := stream.Open(); err != nil {
		return err
	}
	defer stream.Close()
	return stream.Play(ctx, frame)
}

func write(filename string, frame []float64, sampleRate int) error {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".wav":
		return utils.WriteWAV(filename, frame, sampleRate)
	case ".bin":
		return utils.WriteBinary(filename, frame)
	case ".txt":
		return utils.WriteTxt(filename, frame, func(v float64) float64 { return v })
	default:
		return fmt.Errorf("unknown output format %q", filepath.Ext(filename))
	}
}
