package output

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/norasector/rxtap/pkg/rxtap/handoff"
)

// Dispatcher is the consumer side of the handoff queue. It pops blocks and
// offers each one to every sink, skipping sinks that are not ready.
type Dispatcher struct {
	queue   *handoff.Queue
	sinks   []Sink
	metrics api.WriteAPI
	logger  zerolog.Logger
}

func NewDispatcher(queue *handoff.Queue, metrics api.WriteAPI, logger zerolog.Logger, sinks ...Sink) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		sinks:   sinks,
		metrics: metrics,
		logger:  logger,
	}
}

// Start runs every sink and the dispatch loop until ctx is done or a sink fails.
func (d *Dispatcher) Start(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)

	for _, sink := range d.sinks {
		thisSink := sink
		eg.Go(func() error {
			return thisSink.Start(ctx)
		})
	}

	eg.Go(func() error {
		for {
			b, err := d.queue.Pop(ctx)
			if err != nil {
				return err
			}

			skippedSinks := 0
			for _, sink := range d.sinks {
				select {
				case sink.Receive() <- b:
					// We will not wait on blocked sinks.
				default:
					skippedSinks++
				}
			}

			if skippedSinks > 0 {
				d.logger.Debug().Uint64("seq", b.Seq).Int("skipped", skippedSinks).Msg("sinks not ready for block")
			}

			d.metrics.WritePoint(influxdb2.NewPoint("rxtap.dispatch",
				map[string]string{},
				map[string]interface{}{
					"seq":           int64(b.Seq),
					"skipped_sinks": skippedSinks,
					"queue_depth":   d.queue.Len(),
				}, time.Now()))
		}
	})

	return eg.Wait()
}
