package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"Aetherlink/cmd/aetherlink/config"
	"Aetherlink/internel/utils"
	"Aetherlink/pkg/layers"
)

func main() {
	configPath := pflag.StringP("config", "c", "config.yaml", "path to the configuration document")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] file (.wav, .bin or .txt)\n", filepath.Base(os.Args[0]))
		pflag.PrintDefaults()
	}
	pflag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if pflag.NArg() != 1 {
		pflag.Usage()
		os.Exit(2)
	}
	filename := pflag.Arg(0)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	samples, err := read(filename, *cfg.SamplingRate)
	if err != nil {
		logger.Error("failed to read capture", "file", filename, "error", err)
		os.Exit(1)
	}

	decoder := layers.NewDecoder(config.CreateChannel(cfg), cfg.ECC.Keys, cfg.ECC.Payload)
	decoder.Logger = logger.With("component", "decoder")
	msg, err := decoder.Decode(samples)
	if err != nil {
		logger.Error("failed to decode", "file", filename, "error", err)
		os.Exit(1)
	}
	if msg.Report.Corrected > 0 || msg.Report.Uncorrectable > 0 {
		logger.Info("ecc report", "blocks", msg.Report.Blocks, "corrected", msg.Report.Corrected, "uncorrectable", msg.Report.Uncorrectable)
	}
	fmt.Println(msg.Text)
}

func read(filename string, sampleRate int) ([]float64, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".wav":
		samples, rate, err := utils.ReadWAV(filename)
		if err != nil {
			return nil, err
		}
		if rate != sampleRate {
			return nil, fmt.Errorf("capture sampled at %d Hz, configured for %d Hz", rate, sampleRate)
		}
		return samples, nil
	case ".bin":
		return utils.ReadBinary[float64](filename)
	case ".txt":
		return utils.ReadTxt[float64](filename)
	default:
		return nil, fmt.Errorf("unknown input format %q", filepath.Ext(filename))
	}
}
