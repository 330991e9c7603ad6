package file

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/norasector/rxtap/pkg/rxtap/device"
)

// FileDevice plays back a capture written by device.RecordingDevice: raw
// stream words stored as little-endian 32 bit integers. Setters are accepted
// and remembered but have no effect on the capture.
type FileDevice struct {
	path        string
	timeBetween time.Duration
	loop        bool

	CenterFreq float64
	SampleRate float64
	Bandwidth  float64
	Antenna    string
}

type Option func(f *FileDevice)

// WithPacing waits d between reads so playback runs at roughly the capture rate.
func WithPacing(d time.Duration) Option {
	return func(f *FileDevice) {
		f.timeBetween = d
	}
}

// WithLoop rewinds the capture when it reaches the end instead of reporting io.EOF.
func WithLoop() Option {
	return func(f *FileDevice) {
		f.loop = true
	}
}

// NewOpener returns an opener that ignores the selector and plays back path.
func NewOpener(path string, opts ...Option) device.Opener {
	return device.OpenerFunc(func(args device.Args) (device.Device, error) {
		return NewFileDevice(path, opts...)
	})
}

func NewFileDevice(path string, opts ...Option) (*FileDevice, error) {
	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: playback file %s", device.ErrNotFound, path)
		}
		return nil, err
	}
	if st.IsDir() {
		return nil, fmt.Errorf("playback location %s is a directory", path)
	}

	f := &FileDevice{path: path}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func (f *FileDevice) SetAntenna(_ device.Direction, _ int, name string) error {
	f.Antenna = name
	return nil
}

func (f *FileDevice) SetFrequency(_ device.Direction, _ int, hz float64) error {
	f.CenterFreq = hz
	return nil
}

func (f *FileDevice) SetSampleRate(_ device.Direction, _ int, rate float64) error {
	f.SampleRate = rate
	return nil
}

func (f *FileDevice) SetBandwidth(_ device.Direction, _ int, hz float64) error {
	f.Bandwidth = hz
	return nil
}

func (f *FileDevice) SetDCOffsetMode(device.Direction, int, bool) error {
	return nil
}

func (f *FileDevice) HasGainMode(device.Direction, int) bool {
	return false
}

func (f *FileDevice) SetGainMode(device.Direction, int, bool) error {
	return fmt.Errorf("gain mode not supported on playback")
}

func (f *FileDevice) SetupStream(dir device.Direction, format string, channels []int) (device.Stream, error) {
	if dir != device.DirectionRX {
		return nil, fmt.Errorf("playback only supports receive streams")
	}
	if format != device.FormatCS16 {
		return nil, fmt.Errorf("unsupported playback format %q", format)
	}
	if len(channels) != 1 || channels[0] != 0 {
		return nil, fmt.Errorf("playback only supports channel 0, got %v", channels)
	}

	readFile, err := os.Open(f.path)
	if err != nil {
		return nil, err
	}

	return &fileStream{
		file:        readFile,
		reader:      bufio.NewReader(readFile),
		timeBetween: f.timeBetween,
		loop:        f.loop,
	}, nil
}

func (f *FileDevice) Close() error {
	return nil
}

type fileStream struct {
	file        *os.File
	reader      *bufio.Reader
	scratch     []byte
	tick        *time.Ticker
	timeBetween time.Duration
	loop        bool
	active      bool
}

func (s *fileStream) Activate() error {
	if s.timeBetween > 0 {
		s.tick = time.NewTicker(s.timeBetween)
	}
	s.active = true
	return nil
}

func (s *fileStream) Read(buf []int32, timeout time.Duration) (int, error) {
	if !s.active {
		return 0, fmt.Errorf("stream not active")
	}

	switch {
	case s.tick != nil && timeout <= 0:
		<-s.tick.C
	case s.tick != nil:
		select {
		case <-s.tick.C:
		case <-time.After(timeout):
			return 0, device.NewStatusError(int(device.StatusTimeout))
		}
	}

	size := len(buf) * 4
	if cap(s.scratch) < size {
		s.scratch = make([]byte, size)
	}
	raw := s.scratch[:size]

	n, err := io.ReadFull(s.reader, raw)
	switch {
	case errors.Is(err, io.EOF) && s.loop:
		if err := s.rewind(); err != nil {
			return 0, err
		}
		// Short read; the caller retries and picks up from the start.
		return 0, nil
	case errors.Is(err, io.EOF):
		return 0, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		if s.loop {
			if err := s.rewind(); err != nil {
				return 0, err
			}
		}
	case err != nil:
		return 0, err
	}

	words := n / 4
	for i := 0; i < words; i++ {
		buf[i] = int32(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return words, nil
}

func (s *fileStream) rewind() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	s.reader.Reset(s.file)
	return nil
}

func (s *fileStream) Deactivate() error {
	if s.tick != nil {
		s.tick.Stop()
	}
	s.active = false
	return nil
}

func (s *fileStream) Close() error {
	return s.file.Close()
}
