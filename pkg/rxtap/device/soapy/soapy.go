//go:build soapy

// Package soapy binds the SoapySDR C API. Build with -tags soapy and the
// SoapySDR development headers installed.
package soapy

/*
#cgo LDFLAGS: -lSoapySDR
#include <stdlib.h>
#include <SoapySDR/Device.h>
#include <SoapySDR/Formats.h>

static int rxtap_read_stream(SoapySDRDevice *dev, SoapySDRStream *stream, void *buf, size_t n, long timeoutUs) {
	void *buffs[1];
	int flags = 0;
	long long timeNs = 0;
	buffs[0] = buf;
	return SoapySDRDevice_readStream(dev, stream, buffs, n, &flags, &timeNs, timeoutUs);
}
*/
import "C"

import (
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/norasector/rxtap/pkg/rxtap/device"
)

// Opener opens devices through SoapySDRDevice_make.
type Opener struct{}

func (Opener) Open(args device.Args) (device.Device, error) {
	var kwargs C.SoapySDRKwargs
	for k, v := range args {
		ck := C.CString(k)
		cv := C.CString(v)
		C.SoapySDRKwargs_set(&kwargs, ck, cv)
		C.free(unsafe.Pointer(ck))
		C.free(unsafe.Pointer(cv))
	}

	dev := C.SoapySDRDevice_make(&kwargs)
	C.SoapySDRKwargs_clear(&kwargs)

	if dev == nil {
		return nil, fmt.Errorf("%w: %s: %s", device.ErrNotFound, args, lastError())
	}
	return &Device{dev: dev}, nil
}

func lastError() string {
	return C.GoString(C.SoapySDRDevice_lastError())
}

func check(op string, ret C.int) error {
	if ret != 0 {
		return fmt.Errorf("%s: %s (code %d)", op, lastError(), int(ret))
	}
	return nil
}

type Device struct {
	mu  sync.Mutex
	dev *C.SoapySDRDevice
}

func (d *Device) SetAntenna(dir device.Direction, channel int, name string) error {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	return check("setAntenna", C.SoapySDRDevice_setAntenna(d.dev, C.int(dir), C.size_t(channel), cname))
}

func (d *Device) SetFrequency(dir device.Direction, channel int, hz float64) error {
	return check("setFrequency", C.SoapySDRDevice_setFrequency(d.dev, C.int(dir), C.size_t(channel), C.double(hz), nil))
}

func (d *Device) SetSampleRate(dir device.Direction, channel int, rate float64) error {
	return check("setSampleRate", C.SoapySDRDevice_setSampleRate(d.dev, C.int(dir), C.size_t(channel), C.double(rate)))
}

func (d *Device) SetBandwidth(dir device.Direction, channel int, hz float64) error {
	return check("setBandwidth", C.SoapySDRDevice_setBandwidth(d.dev, C.int(dir), C.size_t(channel), C.double(hz)))
}

func (d *Device) SetDCOffsetMode(dir device.Direction, channel int, automatic bool) error {
	return check("setDCOffsetMode", C.SoapySDRDevice_setDCOffsetMode(d.dev, C.int(dir), C.size_t(channel), C.bool(automatic)))
}

func (d *Device) HasGainMode(dir device.Direction, channel int) bool {
	return bool(C.SoapySDRDevice_hasGainMode(d.dev, C.int(dir), C.size_t(channel)))
}

func (d *Device) SetGainMode(dir device.Direction, channel int, automatic bool) error {
	return check("setGainMode", C.SoapySDRDevice_setGainMode(d.dev, C.int(dir), C.size_t(channel), C.bool(automatic)))
}

func (d *Device) SetupStream(dir device.Direction, format string, channels []int) (device.Stream, error) {
	if len(channels) == 0 {
		return nil, fmt.Errorf("setupStream: no channels")
	}

	cformat := C.CString(format)
	defer C.free(unsafe.Pointer(cformat))

	chans := make([]C.size_t, len(channels))
	for i, ch := range channels {
		chans[i] = C.size_t(ch)
	}

	stream := C.SoapySDRDevice_setupStream(d.dev, C.int(dir), cformat, &chans[0], C.size_t(len(chans)), nil)
	if stream == nil {
		return nil, fmt.Errorf("setupStream: %s", lastError())
	}
	return &Stream{dev: d, stream: stream}, nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dev == nil {
		return nil
	}
	err := check("unmake", C.SoapySDRDevice_unmake(d.dev))
	d.dev = nil
	return err
}

type Stream struct {
	dev    *Device
	stream *C.SoapySDRStream
}

func (s *Stream) Activate() error {
	return check("activateStream", C.SoapySDRDevice_activateStream(s.dev.dev, s.stream, 0, 0, 0))
}

func (s *Stream) Read(buf []int32, timeout time.Duration) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	ret := C.rxtap_read_stream(s.dev.dev, s.stream, unsafe.Pointer(&buf[0]), C.size_t(len(buf)), C.long(timeout.Microseconds()))
	if ret < 0 {
		return 0, device.NewStatusError(int(ret))
	}
	return int(ret), nil
}

func (s *Stream) Deactivate() error {
	return check("deactivateStream", C.SoapySDRDevice_deactivateStream(s.dev.dev, s.stream, 0, 0))
}

func (s *Stream) Close() error {
	return check("closeStream", C.SoapySDRDevice_closeStream(s.dev.dev, s.stream))
}
