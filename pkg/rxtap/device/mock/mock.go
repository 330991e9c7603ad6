package mock

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/norasector/rxtap/pkg/rxtap/device"
)

// Read is one scripted result of Stream.Read. Words are copied into the
// caller's buffer and their count returned alongside Err.
type Read struct {
	Words []int32
	Err   error
}

// Device is a scripted device.Device for tests. Reads are served from Script
// in order; once it runs out, Fill is called, and if Fill is nil the buffer
// is filled with zeros.
type Device struct {
	GainModeSupported bool
	SetupErr          error
	ActivateErr       error
	SetterErr         map[string]error

	Script []Read
	Fill   func(buf []int32) (int, error)

	mu            sync.Mutex
	calls         []string
	reads         int
	streamsOpened int
	streamsClosed int
	closed        bool
}

// Opener returns an opener that always hands out dev.
func Opener(dev *Device) device.Opener {
	return device.OpenerFunc(func(args device.Args) (device.Device, error) {
		dev.record("Open(%s)", args)
		return dev, nil
	})
}

// NotFound is an opener that never finds a device.
func NotFound() device.Opener {
	return device.OpenerFunc(func(args device.Args) (device.Device, error) {
		return nil, fmt.Errorf("%w: %s", device.ErrNotFound, args)
	})
}

func (d *Device) record(format string, args ...interface{}) {
	d.mu.Lock()
	d.calls = append(d.calls, fmt.Sprintf(format, args...))
	d.mu.Unlock()
}

func (d *Device) setter(name string, format string, args ...interface{}) error {
	d.record(format, args...)
	if d.SetterErr != nil {
		return d.SetterErr[name]
	}
	return nil
}

// Calls returns every device call made so far, formatted.
func (d *Device) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func (d *Device) Reads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads
}

func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Device) StreamsOpened() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streamsOpened
}

func (d *Device) StreamsClosed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streamsClosed
}

func (d *Device) SetAntenna(dir device.Direction, channel int, name string) error {
	return d.setter("SetAntenna", "SetAntenna(%d,%d,%s)", dir, channel, name)
}

func (d *Device) SetFrequency(dir device.Direction, channel int, hz float64) error {
	return d.setter("SetFrequency", "SetFrequency(%d,%d,%g)", dir, channel, hz)
}

func (d *Device) SetSampleRate(dir device.Direction, channel int, rate float64) error {
	return d.setter("SetSampleRate", "SetSampleRate(%d,%d,%g)", dir, channel, rate)
}

func (d *Device) SetBandwidth(dir device.Direction, channel int, hz float64) error {
	return d.setter("SetBandwidth", "SetBandwidth(%d,%d,%g)", dir, channel, hz)
}

func (d *Device) SetDCOffsetMode(dir device.Direction, channel int, automatic bool) error {
	return d.setter("SetDCOffsetMode", "SetDCOffsetMode(%d,%d,%t)", dir, channel, automatic)
}

func (d *Device) HasGainMode(dir device.Direction, channel int) bool {
	d.record("HasGainMode(%d,%d)", dir, channel)
	return d.GainModeSupported
}

func (d *Device) SetGainMode(dir device.Direction, channel int, automatic bool) error {
	return d.setter("SetGainMode", "SetGainMode(%d,%d,%t)", dir, channel, automatic)
}

func (d *Device) SetupStream(dir device.Direction, format string, channels []int) (device.Stream, error) {
	d.record("SetupStream(%d,%s,%v)", dir, format, channels)
	if d.SetupErr != nil {
		return nil, d.SetupErr
	}
	d.mu.Lock()
	d.streamsOpened++
	d.mu.Unlock()
	return &stream{dev: d}, nil
}

func (d *Device) Close() error {
	d.record("Close()")
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.New("device already closed")
	}
	d.closed = true
	return nil
}

type stream struct {
	dev    *Device
	active bool
	closed bool
}

func (s *stream) Activate() error {
	s.dev.record("Activate()")
	if s.dev.ActivateErr != nil {
		return s.dev.ActivateErr
	}
	s.active = true
	return nil
}

func (s *stream) Read(buf []int32, _ time.Duration) (int, error) {
	if !s.active || s.closed {
		return 0, errors.New("stream not active")
	}

	d := s.dev
	d.mu.Lock()
	d.reads++
	var next *Read
	if len(d.Script) > 0 {
		next = &d.Script[0]
		d.Script = d.Script[1:]
	}
	fill := d.Fill
	d.mu.Unlock()

	if next != nil {
		return copy(buf, next.Words), next.Err
	}
	if fill != nil {
		return fill(buf)
	}
	for i := range buf {
		buf[i] = 0
	}
	return len(buf), nil
}

func (s *stream) Deactivate() error {
	s.dev.record("Deactivate()")
	s.active = false
	return nil
}

func (s *stream) Close() error {
	s.dev.record("CloseStream()")
	s.closed = true
	s.dev.mu.Lock()
	s.dev.streamsClosed++
	s.dev.mu.Unlock()
	return nil
}
