package device

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

type Direction int

const (
	DirectionTX Direction = 0
	DirectionRX Direction = 1
)

// FormatCS16 is interleaved signed 16 bit I/Q. One stream element (an I/Q
// pair) occupies one 32 bit word of a read buffer.
const FormatCS16 = "CS16"

// DefaultReadTimeout matches the SoapySDR default for readStream.
const DefaultReadTimeout = 100 * time.Millisecond

var ErrNotFound = errors.New("no matching SDR device")

// Args is the key/value selector handed to the driver when opening a device.
type Args map[string]string

// LimeArgs is the fixed selector for the receiver: the LimeSuite driver with
// calibration caching disabled.
func LimeArgs() Args {
	return Args{
		"driver":            "lime",
		"cacheCalibrations": "0",
	}
}

func (a Args) String() string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, a[k]))
	}
	return strings.Join(parts, ",")
}

type Opener interface {
	Open(args Args) (Device, error)
}

type OpenerFunc func(args Args) (Device, error)

func (f OpenerFunc) Open(args Args) (Device, error) {
	return f(args)
}

// Device is an open SDR. Setters follow the SoapySDR device API.
type Device interface {
	SetAntenna(dir Direction, channel int, name string) error
	SetFrequency(dir Direction, channel int, hz float64) error
	SetSampleRate(dir Direction, channel int, rate float64) error
	SetBandwidth(dir Direction, channel int, hz float64) error
	SetDCOffsetMode(dir Direction, channel int, automatic bool) error
	HasGainMode(dir Direction, channel int) bool
	SetGainMode(dir Direction, channel int, automatic bool) error
	SetupStream(dir Direction, format string, channels []int) (Stream, error)
	Close() error
}

// Stream is a configured sample stream on a Device.
type Stream interface {
	Activate() error
	// Read fills buf with up to len(buf) stream elements and returns how many
	// were written. Driver status codes are returned as *StatusError.
	Read(buf []int32, timeout time.Duration) (int, error)
	Deactivate() error
	Close() error
}
