package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"Aetherlink/pkg/device"
	"Aetherlink/pkg/layers"
	"Aetherlink/pkg/metrics"
	"Aetherlink/pkg/modem"
	"Aetherlink/pkg/notify"
	"Aetherlink/pkg/server"
)

var ErrMissingField = errors.New("missing required configuration field")

type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%v: %s", ErrMissingField, e.Field)
}

func (e *MissingFieldError) Unwrap() error {
	return ErrMissingField
}

const (
	BackendPortAudio = "portaudio"
	BackendASIO      = "asio"
	BackendLoopback  = "loopback"
)

// Config is the configuration document. The channel fields are pointers so
// that an absent field can be told apart from a zero value.
type Config struct {
	Frequency        *float64 `yaml:"frequency"`
	SamplingRate     *int     `yaml:"sampling_rate"`
	SymbolsPerSecond *int     `yaml:"symbols_per_second"`
	RecordStart      *string  `yaml:"record_start"`
	RecordEnd        *string  `yaml:"record_end"`
	ToneSpacing      float64  `yaml:"tone_spacing"`

	ECC struct {
		Keys    bool `yaml:"keys"`
		Payload bool `yaml:"payload"`
	} `yaml:"ecc"`

	Detector struct {
		ChunkDuration    float64 `yaml:"chunk_duration"`
		Threshold        float64 `yaml:"threshold"`
		Normalize        bool    `yaml:"normalize"`
		MaxFrameDuration float64 `yaml:"max_frame_duration"`
		PreRollChunks    int     `yaml:"pre_roll_chunks"`
		PostRollChunks   int     `yaml:"post_roll_chunks"`
		FrameBuffer      int     `yaml:"frame_buffer"`
	} `yaml:"detector"`

	TransmitGuard float64 `yaml:"transmit_guard"`

	Device struct {
		Backend    string  `yaml:"backend"`
		Name       string  `yaml:"name"`
		BufferSize int     `yaml:"buffer_size"`
		InChannel  int     `yaml:"in_channel"`
		OutChannel int     `yaml:"out_channel"`
		NoiseLevel float64 `yaml:"noise_level"`
	} `yaml:"device"`

	Server struct {
		Addr          string `yaml:"addr"`
		AllowedOrigin string `yaml:"allowed_origin"`
	} `yaml:"server"`

	MQTT struct {
		Broker   string `yaml:"broker"`
		Topic    string `yaml:"topic"`
		ClientID string `yaml:"client_id"`
		QoS      byte   `yaml:"qos"`
		Retain   bool   `yaml:"retain"`
	} `yaml:"mqtt"`
}

// Default returns a document with every optional field set.
func Default() *Config {
	var config Config
	config.ECC.Keys = true
	config.ECC.Payload = true
	config.Detector.ChunkDuration = 0.1
	config.Detector.Threshold = 0.75
	config.Detector.Normalize = true
	config.Detector.MaxFrameDuration = 30
	config.Detector.FrameBuffer = 4
	config.TransmitGuard = 0.5
	config.Device.Backend = BackendPortAudio
	config.Device.BufferSize = device.BufferSize
	config.Server.Addr = ":8000"
	config.Server.AllowedOrigin = "http://localhost:5173"
	config.MQTT.Topic = "aetherlink/messages"
	return &config
}

// LoadConfig reads a YAML or JSON document and validates it.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) Validate() error {
	required := []struct {
		name    string
		present bool
	}{
		{"frequency", c.Frequency != nil},
		{"sampling_rate", c.SamplingRate != nil},
		{"symbols_per_second", c.SymbolsPerSecond != nil},
		{"record_start", c.RecordStart != nil},
		{"record_end", c.RecordEnd != nil},
	}
	for _, r := range required {
		if !r.present {
			return &MissingFieldError{Field: r.name}
		}
	}

	errs := []error{CreateChannel(c).Validate()}
	if c.Detector.ChunkDuration <= 0 {
		errs = append(errs, fmt.Errorf("detector.chunk_duration must be positive, got %v", c.Detector.ChunkDuration))
	} else if c.ChunkSize() < 1 {
		errs = append(errs, fmt.Errorf("detector.chunk_duration %v is shorter than one sample", c.Detector.ChunkDuration))
	}
	if c.Detector.Threshold <= 0 {
		errs = append(errs, fmt.Errorf("detector.threshold must be positive, got %v", c.Detector.Threshold))
	} else if c.Detector.Normalize && c.Detector.Threshold >= 1 {
		errs = append(errs, fmt.Errorf("detector.threshold %v can never be reached by a normalized score", c.Detector.Threshold))
	}
	if c.Detector.MaxFrameDuration < 0 {
		errs = append(errs, fmt.Errorf("detector.max_frame_duration must not be negative, got %v", c.Detector.MaxFrameDuration))
	}
	if c.Detector.PreRollChunks < 0 || c.Detector.PostRollChunks < 0 {
		errs = append(errs, fmt.Errorf("detector pre and post roll must not be negative, got %d and %d", c.Detector.PreRollChunks, c.Detector.PostRollChunks))
	}
	if c.TransmitGuard < 0 {
		errs = append(errs, fmt.Errorf("transmit_guard must not be negative, got %v", c.TransmitGuard))
	}
	switch c.Device.Backend {
	case BackendPortAudio, BackendASIO, BackendLoopback:
	default:
		errs = append(errs, fmt.Errorf("unknown device backend %q", c.Device.Backend))
	}
	if c.Device.NoiseLevel < 0 {
		errs = append(errs, fmt.Errorf("device.noise_level must not be negative, got %v", c.Device.NoiseLevel))
	}
	return errors.Join(errs...)
}

// ChunkSize is the number of samples the detector inspects at a time.
func (c *Config) ChunkSize() int {
	return int(c.Detector.ChunkDuration * float64(*c.SamplingRate))
}

func CreateChannel(config *Config) modem.ChannelConfig {
	return modem.ChannelConfig{
		CarrierFreq: *config.Frequency,
		SampleRate:  *config.SamplingRate,
		SymbolRate:  *config.SymbolsPerSecond,
		ToneSpacing: config.ToneSpacing,
		StartKey:    *config.RecordStart,
		EndKey:      *config.RecordEnd,
	}
}

func CreateDevice(config *Config) (device.Device, error) {
	sampleRate := float64(*config.SamplingRate)

	var dev device.Device
	switch config.Device.Backend {
	case BackendPortAudio:
		dev = &device.PortAudio{
			DeviceName: config.Device.Name,
			SampleRate: sampleRate,
			BufferSize: config.Device.BufferSize,
		}
	case BackendASIO:
		dev = &device.ASIO{
			DeviceName: config.Device.Name,
			SampleRate: sampleRate,
			InChannel:  config.Device.InChannel,
			OutChannel: config.Device.OutChannel,
		}
	case BackendLoopback:
		dev = &device.Loopback{SampleRate: sampleRate}
	default:
		return nil, fmt.Errorf("unknown device backend %q", config.Device.Backend)
	}

	if config.Device.NoiseLevel > 0 {
		dev = &device.Noise{Device: dev, Level: config.Device.NoiseLevel, Seed: uint64(time.Now().UnixNano())}
	}
	return dev, nil
}

func CreateStream(config *Config, dev device.Device) *device.Stream {
	return device.NewStream(dev, config.ChunkSize(), config.Detector.FrameBuffer)
}

func CreatePhysicalLayer(config *Config, stream *device.Stream, m *metrics.Metrics, logger *slog.Logger) *layers.PhysicalLayer {
	channel := CreateChannel(config)
	encoder := layers.NewEncoder(channel, config.ECC.Keys, config.ECC.Payload)

	decoder := layers.NewDecoder(channel, config.ECC.Keys, config.ECC.Payload)
	decoder.Metrics = m
	decoder.Logger = logger.With("component", "decoder")

	return &layers.PhysicalLayer{
		Source:  stream,
		Sink:    stream,
		Encoder: encoder,
		Decoder: decoder,
		Detector: &layers.Detector{
			StartKey:        encoder.StartKeyWave(),
			EndKey:          encoder.EndKeyWave(),
			Threshold:       config.Detector.Threshold,
			Normalize:       config.Detector.Normalize,
			MaxFrameSamples: int(config.Detector.MaxFrameDuration * float64(*config.SamplingRate)),
			PreRoll:         config.Detector.PreRollChunks,
			PostRoll:        config.Detector.PostRollChunks,
			Metrics:         m,
			Logger:          logger.With("component", "detector"),
		},
		Metrics:          m,
		Logger:           logger.With("component", "physical"),
		FrameBufferSize:  config.Detector.FrameBuffer,
		OutputBufferSize: config.Detector.FrameBuffer,
		TransmitGuard:    time.Duration(config.TransmitGuard * float64(time.Second)),
	}
}

func CreateServerConfig(config *Config) server.Config {
	return server.Config{
		Addr:          config.Server.Addr,
		AllowedOrigin: config.Server.AllowedOrigin,
	}
}

// CreateMQTTConfig returns false when no broker is configured.
func CreateMQTTConfig(config *Config) (notify.MQTTConfig, bool) {
	return notify.MQTTConfig{
		Broker:   config.MQTT.Broker,
		Topic:    config.MQTT.Topic,
		ClientID: config.MQTT.ClientID,
		QoS:      config.MQTT.QoS,
		Retain:   config.MQTT.Retain,
	}, config.MQTT.Broker != ""
}
