package util

import (
	"sync"

	"github.com/influxdata/influxdb-client-go/api/write"
)

// MockWriteAPI stands in for an influx WriteAPI when no database is
// configured. Points are discarded unless Record is set.
type MockWriteAPI struct {
	Record bool

	mu     sync.Mutex
	points []*write.Point
}

// WriteRecord discards line protocol records.
func (m *MockWriteAPI) WriteRecord(line string) {}

// WritePoint keeps the point in memory when recording.
func (m *MockWriteAPI) WritePoint(point *write.Point) {
	if !m.Record {
		return
	}
	m.mu.Lock()
	m.points = append(m.points, point)
	m.mu.Unlock()
}

// Points returns the points written so far.
func (m *MockWriteAPI) Points() []*write.Point {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*write.Point(nil), m.points...)
}

func (m *MockWriteAPI) Flush() {}

func (m *MockWriteAPI) Close() {}

func (m *MockWriteAPI) Errors() <-chan error { return nil }
