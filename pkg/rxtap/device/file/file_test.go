package file

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/norasector/rxtap/pkg/rxtap/device"
	"github.com/norasector/rxtap/pkg/rxtap/device/mock"
)

// record captures words through a RecordingDevice backed by a mock device.
func record(t *testing.T, words []int32) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.bin")
	out, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}

	dev := device.NewRecordingDevice(&mock.Device{Script: []mock.Read{{Words: words}}}, out)
	stream, err := dev.SetupStream(device.DirectionRX, device.FormatCS16, []int{0})
	if err != nil {
		t.Fatal(err)
	}
	if err := stream.Activate(); err != nil {
		t.Fatal(err)
	}
	buf := make([]int32, len(words))
	if n, err := stream.Read(buf, time.Second); err != nil || n != len(words) {
		t.Fatalf("Read() = %d, %v", n, err)
	}
	if err := dev.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return path
}

func openStream(t *testing.T, path string, opts ...Option) device.Stream {
	t.Helper()
	dev, err := NewFileDevice(path, opts...)
	if err != nil {
		t.Fatal(err)
	}
	stream, err := dev.SetupStream(device.DirectionRX, device.FormatCS16, []int{0})
	if err != nil {
		t.Fatal(err)
	}
	if err := stream.Activate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { stream.Close() })
	return stream
}

func TestPlaybackOfRecording(t *testing.T) {
	words := []int32{2, -4, 6, 1 << 20, -(1 << 30), 7}
	stream := openStream(t, record(t, words))

	buf := make([]int32, 4)
	n, err := stream.Read(buf, time.Second)
	if err != nil || n != 4 {
		t.Fatalf("Read() = %d, %v", n, err)
	}
	if !reflect.DeepEqual(buf, words[:4]) {
		t.Errorf("Read() = %v, want %v", buf, words[:4])
	}

	// trailing partial read
	n, err = stream.Read(buf, time.Second)
	if err != nil || n != 2 {
		t.Fatalf("Read() = %d, %v, want 2 words", n, err)
	}
	if !reflect.DeepEqual(buf[:n], words[4:]) {
		t.Errorf("Read() = %v, want %v", buf[:n], words[4:])
	}

	if _, err := stream.Read(buf, time.Second); !errors.Is(err, io.EOF) {
		t.Errorf("Read() at end error = %v, want io.EOF", err)
	}
}

func TestPlaybackLoop(t *testing.T) {
	words := []int32{10, 20}
	stream := openStream(t, record(t, words), WithLoop(), WithPacing(time.Millisecond))

	buf := make([]int32, 2)
	for i := 0; i < 3; i++ {
		n, err := stream.Read(buf, time.Second)
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if n == 0 {
			// rewind point
			continue
		}
		if !reflect.DeepEqual(buf, words) {
			t.Errorf("Read() = %v, want %v", buf, words)
		}
	}
}

func TestNewFileDevice_Missing(t *testing.T) {
	_, err := NewFileDevice(filepath.Join(t.TempDir(), "nope.bin"))
	if !errors.Is(err, device.ErrNotFound) {
		t.Errorf("NewFileDevice() error = %v, want device.ErrNotFound", err)
	}
}

func TestSetupStream_Rejects(t *testing.T) {
	dev, err := NewFileDevice(record(t, []int32{1}))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		dir      device.Direction
		format   string
		channels []int
	}{
		{"tx", device.DirectionTX, device.FormatCS16, []int{0}},
		{"format", device.DirectionRX, "CF32", []int{0}},
		{"channel", device.DirectionRX, device.FormatCS16, []int{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := dev.SetupStream(tt.dir, tt.format, tt.channels); err == nil {
				t.Error("expected error")
			}
		})
	}
}
