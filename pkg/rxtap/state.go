package rxtap

import "fmt"

type State int32

const (
	StateUninitialized State = iota
	StateStreaming
	StateDraining
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateStreaming:
		return "streaming"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Status is a point-in-time view of a receiver for status reporting.
type Status struct {
	State      string  `json:"state"`
	Alive      bool    `json:"alive"`
	Published  uint64  `json:"blocks_published"`
	ShortReads uint64  `json:"short_reads"`
	Restarts   int32   `json:"restarts"`
	QueueDepth int     `json:"queue_depth"`
	QueueBytes int     `json:"queue_bytes"`
	CenterFreq float64 `json:"center_freq"`
	SampleRate float64 `json:"sample_rate"`
	Bandwidth  float64 `json:"bandwidth"`
	FFTSize    int     `json:"fft_size"`
	PacketSize int     `json:"packet_size"`
}

func (r *Receiver) Status() Status {
	return Status{
		State:      r.State().String(),
		Alive:      r.Alive(),
		Published:  r.Published(),
		ShortReads: r.shortReads.Load(),
		Restarts:   r.restarts.Load(),
		QueueDepth: r.queue.Len(),
		QueueBytes: r.queue.SizeBytes(),
		CenterFreq: r.opts.CenterFreq,
		SampleRate: r.opts.SampleRate,
		Bandwidth:  r.opts.Bandwidth,
		FFTSize:    r.opts.FFTSize,
		PacketSize: r.opts.PacketSize,
	}
}
