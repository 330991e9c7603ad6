package rxtap

import (
	"fmt"
	"time"

	"github.com/norasector/rxtap/pkg/rxtap/device"
)

const (
	DefaultCenterFreq     = 2440e6
	DefaultSampleRate     = 80e6
	DefaultFFTSize        = 512
	DefaultAntenna        = "LNAH"
	DefaultShortReadLimit = 1000
)

type Options struct {
	CenterFreq float64
	SampleRate float64
	// Bandwidth defaults to SampleRate.
	Bandwidth  float64
	FFTSize    int
	PacketSize int
	Antenna    string
	Channel    int
	DeviceArgs device.Args

	ReadTimeout time.Duration
	// ShortReadLimit bounds consecutive short reads of one sub-block.
	// Negative retries forever.
	ShortReadLimit int
	// RestartLimit is how many times a recoverable stream error re-opens the
	// stream before the loop fails. Zero fails on the first one.
	RestartLimit int
}

func (o Options) withDefaults() Options {
	if o.CenterFreq == 0 {
		o.CenterFreq = DefaultCenterFreq
	}
	if o.SampleRate == 0 {
		o.SampleRate = DefaultSampleRate
	}
	if o.Bandwidth == 0 {
		o.Bandwidth = o.SampleRate
	}
	if o.FFTSize == 0 {
		o.FFTSize = DefaultFFTSize
	}
	if o.Antenna == "" {
		o.Antenna = DefaultAntenna
	}
	if o.DeviceArgs == nil {
		o.DeviceArgs = device.LimeArgs()
	}
	if o.ReadTimeout == 0 {
		o.ReadTimeout = device.DefaultReadTimeout
	}
	if o.ShortReadLimit == 0 {
		o.ShortReadLimit = DefaultShortReadLimit
	}
	return o
}

func (o Options) validate() error {
	switch {
	case o.PacketSize <= 0:
		return fmt.Errorf("packet size must be positive, got %d", o.PacketSize)
	case o.FFTSize <= 0:
		return fmt.Errorf("fft size must be positive, got %d", o.FFTSize)
	case o.SampleRate < 0 || o.Bandwidth < 0 || o.CenterFreq < 0:
		return fmt.Errorf("frequencies and rates must not be negative")
	case o.Channel < 0:
		return fmt.Errorf("invalid channel %d", o.Channel)
	case o.RestartLimit < 0:
		return fmt.Errorf("restart limit must not be negative")
	}
	return nil
}
