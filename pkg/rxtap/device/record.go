package device

import (
	"encoding/binary"
	"io"
	"sync"
	"time"
)

// RecordingDevice wraps a Device and writes every full read from its streams
// to dest as little-endian 32 bit words. Captures play back through the file
// backend.
type RecordingDevice struct {
	Device

	mu   sync.Mutex
	dest io.WriteCloser
}

func NewRecordingDevice(dev Device, dest io.WriteCloser) *RecordingDevice {
	return &RecordingDevice{Device: dev, dest: dest}
}

func (r *RecordingDevice) SetupStream(dir Direction, format string, channels []int) (Stream, error) {
	stream, err := r.Device.SetupStream(dir, format, channels)
	if err != nil {
		return nil, err
	}
	return &recordingStream{Stream: stream, rec: r}, nil
}

func (r *RecordingDevice) Close() error {
	err := r.Device.Close()

	r.mu.Lock()
	defer r.mu.Unlock()
	if cErr := r.dest.Close(); cErr != nil && err == nil {
		err = cErr
	}
	return err
}

func (r *RecordingDevice) write(words []int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return binary.Write(r.dest, binary.LittleEndian, words)
}

type recordingStream struct {
	Stream
	rec *RecordingDevice
}

// Read records only complete, error free reads. Short reads are discarded
// and retried by the reader, so recording them would misalign playback.
func (s *recordingStream) Read(buf []int32, timeout time.Duration) (int, error) {
	n, err := s.Stream.Read(buf, timeout)
	if err != nil || n != len(buf) {
		return n, err
	}
	if err := s.rec.write(buf); err != nil {
		return n, err
	}
	return n, nil
}
