package rxtap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/norasector/rxtap/pkg/rxtap/block"
	"github.com/norasector/rxtap/pkg/rxtap/device"
	"github.com/norasector/rxtap/pkg/rxtap/handoff"
	"github.com/norasector/rxtap/pkg/util"
)

// Receiver owns one receive device and publishes corrected sample blocks to a
// handoff queue. A Receiver runs once; it cannot be restarted after Run returns.
type Receiver struct {
	opener   device.Opener
	opts     Options
	queue    *handoff.Queue
	logger   zerolog.Logger
	writeAPI api.WriteAPI

	dev    device.Device
	stream device.Stream
	raw    []int32
	seq    uint64

	restartBackOff backoff.BackOff

	alive      atomic.Bool
	state      atomic.Int32
	ran        atomic.Bool
	published  atomic.Uint64
	shortReads atomic.Uint64
	restarts   atomic.Int32

	releaseOnce sync.Once
}

type ReceiverOption func(r *Receiver) error

func WithInfluxDB(writeAPI api.WriteAPI) ReceiverOption {
	return func(r *Receiver) error {
		r.writeAPI = writeAPI
		return nil
	}
}

func WithLogger(logger zerolog.Logger) ReceiverOption {
	return func(r *Receiver) error {
		r.logger = logger
		return nil
	}
}

// WithRestartBackOff sets the wait policy between stream restarts. It is
// reset when Run starts and after the first full block following a restart.
func WithRestartBackOff(b backoff.BackOff) ReceiverOption {
	return func(r *Receiver) error {
		if b == nil {
			return fmt.Errorf("nil restart backoff")
		}
		r.restartBackOff = b
		return nil
	}
}

// newRestartBackOff never gives up on its own; RestartLimit bounds restarts.
func newRestartBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0
	return b
}

func NewReceiver(opener device.Opener, queue *handoff.Queue, options Options, opts ...ReceiverOption) (*Receiver, error) {
	if opener == nil {
		return nil, fmt.Errorf("must specify a device opener")
	}
	if queue == nil {
		return nil, fmt.Errorf("must specify a handoff queue")
	}

	options = options.withDefaults()
	if err := options.validate(); err != nil {
		return nil, err
	}

	r := &Receiver{
		opener:         opener,
		opts:           options,
		queue:          queue,
		logger:         log.Logger,
		writeAPI:       &util.MockWriteAPI{}, // overwritten with option
		raw:            make([]int32, options.PacketSize*options.FFTSize),
		restartBackOff: newRestartBackOff(),
	}
	r.alive.Store(true)

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	return r, nil
}

func (r *Receiver) State() State {
	return State(r.state.Load())
}

func (r *Receiver) setState(s State) {
	old := State(r.state.Swap(int32(s)))
	if old != s {
		r.logger.Debug().Str("from", old.String()).Str("to", s.String()).Msg("receiver state change")
	}
}

// Alive reports the liveness flag.
func (r *Receiver) Alive() bool {
	return r.alive.Load()
}

// Stop clears the liveness flag. The loop notices at the top of its next
// iteration; a read already in progress completes first.
func (r *Receiver) Stop() {
	r.alive.Store(false)
}

func (r *Receiver) Published() uint64 {
	return r.published.Load()
}

// Initialize opens and configures the device and activates the receive
// stream. On failure the receiver moves to StateFailed.
func (r *Receiver) Initialize() error {
	if s := r.State(); s != StateUninitialized {
		return fmt.Errorf("cannot initialize receiver in state %s", s)
	}

	if err := r.openDevice(); err != nil {
		r.setState(StateFailed)
		return err
	}

	r.logger.Info().
		Str("device", r.opts.DeviceArgs.String()).
		Str("center_freq", util.FormatHz(r.opts.CenterFreq)).
		Str("sample_rate", util.FormatHz(r.opts.SampleRate)).
		Str("bandwidth", util.FormatHz(r.opts.Bandwidth)).
		Int("fft_size", r.opts.FFTSize).
		Int("packet_size", r.opts.PacketSize).
		Msg("receiver streaming")

	r.setState(StateStreaming)
	return nil
}

func (r *Receiver) openDevice() error {
	dev, err := r.opener.Open(r.opts.DeviceArgs)
	switch {
	case errors.Is(err, device.ErrNotFound):
		return fmt.Errorf("%w (%s): %w", ErrDeviceNotFound, r.opts.DeviceArgs, err)
	case err != nil:
		return fmt.Errorf("opening device %s: %w", r.opts.DeviceArgs, err)
	case dev == nil:
		return fmt.Errorf("%w (%s)", ErrDeviceNotFound, r.opts.DeviceArgs)
	}
	r.dev = dev

	if err := r.configure(); err != nil {
		r.closeDevice()
		return err
	}
	if err := r.openStream(); err != nil {
		r.closeDevice()
		return err
	}
	return nil
}

func (r *Receiver) configure() error {
	dir, ch := device.DirectionRX, r.opts.Channel

	if err := r.dev.SetAntenna(dir, ch, r.opts.Antenna); err != nil {
		return fmt.Errorf("setting antenna %s: %w", r.opts.Antenna, err)
	}
	if err := r.dev.SetFrequency(dir, ch, r.opts.CenterFreq); err != nil {
		return fmt.Errorf("setting frequency: %w", err)
	}
	if err := r.dev.SetSampleRate(dir, ch, r.opts.SampleRate); err != nil {
		return fmt.Errorf("setting sample rate: %w", err)
	}
	if err := r.dev.SetBandwidth(dir, ch, r.opts.Bandwidth); err != nil {
		return fmt.Errorf("setting bandwidth: %w", err)
	}
	if err := r.dev.SetDCOffsetMode(dir, ch, true); err != nil {
		return fmt.Errorf("enabling automatic DC offset correction: %w", err)
	}
	if r.dev.HasGainMode(dir, ch) {
		if err := r.dev.SetGainMode(dir, ch, false); err != nil {
			return fmt.Errorf("disabling AGC: %w", err)
		}
	}
	return nil
}

func (r *Receiver) openStream() error {
	stream, err := r.dev.SetupStream(device.DirectionRX, device.FormatCS16, []int{r.opts.Channel})
	if err != nil {
		return fmt.Errorf("setting up %s stream: %w", device.FormatCS16, err)
	}
	if err := stream.Activate(); err != nil {
		if cErr := stream.Close(); cErr != nil {
			r.logger.Warn().Err(cErr).Msg("error closing stream")
		}
		return fmt.Errorf("activating stream: %w", err)
	}
	r.stream = stream
	return nil
}

func (r *Receiver) closeStream() {
	if r.stream == nil {
		return
	}
	if err := r.stream.Deactivate(); err != nil {
		r.logger.Warn().Err(err).Msg("error deactivating stream")
	}
	if err := r.stream.Close(); err != nil {
		r.logger.Warn().Err(err).Msg("error closing stream")
	}
	r.stream = nil
}

func (r *Receiver) closeDevice() {
	r.closeStream()
	if r.dev == nil {
		return
	}
	if err := r.dev.Close(); err != nil {
		r.logger.Warn().Err(err).Msg("error closing device")
	}
	r.dev = nil
}

// release deactivates and closes the stream and device. Safe to call more than once.
func (r *Receiver) release() {
	r.releaseOnce.Do(r.closeDevice)
}

func (r *Receiver) streamName() string {
	return fmt.Sprintf("%s rx%d %s", r.opts.DeviceArgs, r.opts.Channel, device.FormatCS16)
}

// ReadBlock reads PacketSize sub-blocks of FFTSize words and returns them
// corrected and rescaled. The returned block does not share memory with the
// receiver.
func (r *Receiver) ReadBlock() (*block.Block, error) {
	return r.readBlock(context.Background())
}

func (r *Receiver) readBlock(ctx context.Context) (*block.Block, error) {
	if r.State() != StateStreaming || r.stream == nil {
		return nil, ErrNotStreaming
	}

	f := r.opts.FFTSize
	for i := 0; i < r.opts.PacketSize; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := r.readRow(ctx, r.raw[i*f : (i+1)*f]); err != nil {
			return nil, err
		}
	}

	r.seq++
	return block.FromRaw(r.seq, time.Now(), r.raw, r.opts.PacketSize, f)
}

// readRow repeats the read until the stream delivers exactly len(row) words.
func (r *Receiver) readRow(ctx context.Context, row []int32) error {
	var policy backoff.BackOff = &backoff.ZeroBackOff{}
	if r.opts.ShortReadLimit > 0 {
		policy = backoff.WithMaxRetries(policy, uint64(r.opts.ShortReadLimit))
	}
	policy = backoff.WithContext(policy, ctx)

	var lastStatus *device.StatusError
	err := backoff.Retry(func() error {
		n, err := r.stream.Read(row, r.opts.ReadTimeout)

		var statusErr *device.StatusError
		switch {
		case errors.As(err, &statusErr) && statusErr.Status == device.StatusStreamError:
			return backoff.Permanent(&RecoverableError{Stream: r.streamName(), Err: err})
		case errors.As(err, &statusErr):
			lastStatus = statusErr
			r.shortReads.Add(1)
			return errShortRead
		case err != nil:
			return backoff.Permanent(err)
		case n != len(row):
			r.shortReads.Add(1)
			return errShortRead
		}
		return nil
	}, policy)

	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, errShortRead) {
		return ctxErr
	}
	if errors.Is(err, errShortRead) {
		if lastStatus != nil {
			return fmt.Errorf("%w: no full %d word read after %d retries, last status: %w",
				ErrPersistentShortRead, len(row), r.opts.ShortReadLimit, lastStatus)
		}
		return fmt.Errorf("%w: no full %d word read after %d retries", ErrPersistentShortRead, len(row), r.opts.ShortReadLimit)
	}
	return err
}

// restartStream re-opens the stream after a recoverable error, waiting
// according to the restart backoff first.
func (r *Receiver) restartStream(ctx context.Context, cause error) error {
	n := r.restarts.Add(1)
	wait := r.restartBackOff.NextBackOff()
	if wait == backoff.Stop {
		return cause
	}

	r.logger.Warn().Err(cause).Int32("restart", n).Dur("wait", wait).Msg("restarting stream")

	r.closeStream()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
	}
	return r.openStream()
}

// Run initializes the receiver if needed and streams blocks into the queue
// until Stop is called or ctx is cancelled, then drains the queue and
// releases the device. Both of those are normal shutdowns and return nil.
//
// Errors leave the queue untouched so blocks published before the failure
// stay available, in order.
func (r *Receiver) Run(ctx context.Context) error {
	if !r.ran.CompareAndSwap(false, true) {
		return ErrAlreadyRun
	}
	defer r.release()

	if r.State() == StateUninitialized {
		if err := r.Initialize(); err != nil {
			r.logger.Error().Err(err).Msg("failed to initialize receiver")
			return err
		}
	}
	if s := r.State(); s != StateStreaming {
		return fmt.Errorf("cannot run receiver in state %s", s)
	}

	r.restartBackOff.Reset()

	stopOnCancel := context.AfterFunc(ctx, r.Stop)
	defer stopOnCancel()

	if err := r.acquire(ctx); err != nil {
		r.setState(StateFailed)
		r.logger.Error().Err(err).Uint64("published", r.Published()).Msg("acquisition failed")
		return err
	}

	r.setState(StateDraining)
	droppedBytes := r.queue.SizeBytes()
	dropped := r.queue.Drain()
	r.release()
	r.setState(StateStopped)

	r.logger.Info().
		Uint64("published", r.Published()).
		Int("dropped", dropped).
		Str("dropped_size", util.FormatBytes(droppedBytes)).
		Msg("acquisition stopped")
	return nil
}

func (r *Receiver) acquire(ctx context.Context) error {
	restarts := 0
	restarted := false
	for r.alive.Load() {
		var b *block.Block
		readUs, err := util.TimeOperation(func() (err error) {
			b, err = r.readBlock(ctx)
			return err
		})

		var recoverable *RecoverableError
		switch {
		case err == nil:
		case ctx.Err() != nil && errors.Is(err, ctx.Err()):
			// interrupted mid-block; the partial block is dropped
			return nil
		case errors.As(err, &recoverable) && restarts < r.opts.RestartLimit:
			restarts++
			if err := r.restartStream(ctx, err); err != nil {
				if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
					return nil
				}
				return err
			}
			restarted = true
			continue
		default:
			return err
		}

		r.queue.Push(b)
		r.published.Add(1)

		// a full block after a restart means the stream recovered
		if restarted {
			r.restartBackOff.Reset()
			restarted = false
		}

		r.writeAPI.WritePoint(influxdb2.NewPoint("rxtap.block",
			map[string]string{
				"device": r.opts.DeviceArgs.String(),
			},
			map[string]interface{}{
				"seq":         int64(b.Seq),
				"read_us":     readUs,
				"short_reads": int64(r.shortReads.Load()),
				"queue_depth": r.queue.Len(),
				"queue_bytes": r.queue.SizeBytes(),
			}, b.Timestamp))
	}
	return nil
}
