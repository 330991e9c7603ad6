package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	CenterFreq     float64       `yaml:"center_freq"`
	SampleRate     float64       `yaml:"sample_rate"`
	Bandwidth      float64       `yaml:"bandwidth"`
	FFTSize        int           `yaml:"fft_size"`
	PacketSize     int           `yaml:"packet_size"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	ShortReadLimit int           `yaml:"short_read_limit"`
	RestartLimit   int           `yaml:"restart_limit"`

	RecordLocation   string        `yaml:"record_location"`
	PlaybackLocation string        `yaml:"playback_location"`
	PlaybackLoop     bool          `yaml:"playback_loop"`
	PlaybackPacing   time.Duration `yaml:"playback_pacing"`

	OutputDestinations []OutputDestination `yaml:"output_destinations"`
	VizServer          struct {
		Port           int           `yaml:"port"`
		UpdateInterval time.Duration `yaml:"update_interval"`
		Advertise      bool          `yaml:"advertise"`
	} `yaml:"viz_server"`
	InfluxDB struct {
		Host         string `yaml:"host"`
		Organization string `yaml:"organization"`
		Bucket       string `yaml:"bucket"`
	} `yaml:"influxdb"`
	LogLevel string `yaml:"log_level"`
}

type OutputDestination struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Load reads a YAML config file and applies defaults.
func Load(path string) (*Config, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(contents)
}

func Parse(contents []byte) (*Config, error) {
	var cfg Config
	if err := yaml.UnmarshalStrict(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.CenterFreq == 0 {
		c.CenterFreq = 2440e6
	}
	if c.SampleRate == 0 {
		c.SampleRate = 80e6
	}
	if c.Bandwidth == 0 {
		c.Bandwidth = c.SampleRate
	}
	if c.FFTSize == 0 {
		c.FFTSize = 512
	}
	if c.VizServer.UpdateInterval == 0 {
		c.VizServer.UpdateInterval = time.Second
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) Validate() error {
	switch {
	case c.PacketSize <= 0:
		return fmt.Errorf("packet_size must be positive")
	case c.FFTSize <= 0:
		return fmt.Errorf("fft_size must be positive")
	case c.RecordLocation != "" && c.PlaybackLocation != "":
		return fmt.Errorf("record_location and playback_location are mutually exclusive")
	case c.VizServer.Port < 0 || c.VizServer.Port > 65535:
		return fmt.Errorf("invalid viz_server port %d", c.VizServer.Port)
	}
	for _, dest := range c.OutputDestinations {
		if dest.Host == "" || dest.Port <= 0 || dest.Port > 65535 {
			return fmt.Errorf("invalid output destination %s:%d", dest.Host, dest.Port)
		}
	}
	return nil
}
