package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"Aetherlink/cmd/aetherlink/config"
	"Aetherlink/pkg/device"
	"Aetherlink/pkg/layers"
	"Aetherlink/pkg/metrics"
	"Aetherlink/pkg/modem"
	"Aetherlink/pkg/notify"
	"Aetherlink/pkg/server"
)

const (
	subscriberBuffer = 16
	shutdownTimeout  = 5 * time.Second
	overrunInterval  = time.Second
)

func main() {
	configPath := pflag.StringP("config", "c", "config.yaml", "path to the YAML or JSON configuration document")
	logLevel := pflag.String("log-level", "info", "log level (debug, info, warn, error)")
	listDevices := pflag.Bool("list-devices", false, "print the PortAudio device names and exit")
	pflag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %q: %v\n", *logLevel, err)
		os.Exit(2)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	modem.SetLogger(logger)

	if *listDevices {
		names, err := device.DeviceNames()
		if err != nil {
			logger.Error("failed to list devices", "error", err)
			os.Exit(1)
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, logger); err != nil {
		logger.Error("aetherlink stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("exiting")
}

func run(ctx context.Context, configPath string, logger *slog.Logger) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	channel := config.CreateChannel(cfg)
	logger.Info("config loaded",
		"path", configPath,
		"carrier", channel.CarrierFreq,
		"sample_rate", channel.SampleRate,
		"symbol_rate", channel.SymbolRate,
		"backend", cfg.Device.Backend)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	dev, err := config.CreateDevice(cfg)
	if err != nil {
		return err
	}
	stream := config.CreateStream(cfg, dev)
	if err := stream.Open(); err != nil {
		return fmt.Errorf("failed to open audio device: %w", err)
	}
	defer stream.Close()

	layer := config.CreatePhysicalLayer(cfg, stream, m, logger)
	hub := notify.NewHub(subscriberBuffer)
	hub.Logger = logger.With("component", "hub")
	srv := server.New(config.CreateServerConfig(cfg), layer, hub, reg, logger.With("component", "server"))

	g, ctx := errgroup.WithContext(ctx)
	if err := layer.Open(ctx); err != nil {
		return err
	}

	g.Go(func() error {
		if err := layer.Wait(); err != nil {
			return fmt.Errorf("physical layer: %w", err)
		}
		return nil
	})

	events := make(chan notify.Event, subscriberBuffer)
	g.Go(func() error {
		defer close(events)
		forward(ctx, layer.ReceiveAsync(), events, logger)
		return nil
	})
	g.Go(func() error {
		hub.Run(ctx, events)
		return nil
	})

	if mqttConfig, ok := config.CreateMQTTConfig(cfg); ok {
		publisher, err := notify.NewMQTTPublisher(mqttConfig, logger.With("component", "mqtt"))
		if err != nil {
			layer.Close()
			return err
		}
		defer publisher.Close()
		sub := hub.Subscribe()
		g.Go(func() error {
			defer hub.Unsubscribe(sub)
			publisher.Run(ctx, sub)
			return nil
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(overrunInterval)
		defer ticker.Stop()
		var reported uint64
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				n := stream.Overruns()
				if n > reported {
					logger.Warn("audio chunks dropped", "count", n-reported)
					m.StreamOverruns(n - reported)
					reported = n
				}
			}
		}
	})

	g.Go(srv.ListenAndServe)

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", "error", err)
		}
		return layer.Close()
	})

	return g.Wait()
}

// forward turns every decoded message into an event until the layer stops.
func forward(ctx context.Context, results <-chan layers.Result, events chan<- notify.Event, logger *slog.Logger) {
	for r := range results {
		if r.Err != nil {
			continue
		}
		logger.Debug("message received", "message", r.Message.Text)
		select {
		case events <- notify.Event{Message: r.Message.Text, Time: r.Message.ReceivedAt}:
		case <-ctx.Done():
			return
		}
	}
}
