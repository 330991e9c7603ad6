package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/influxdata/influxdb-client-go/api"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/norasector/rxtap/pkg/rxtap"
	"github.com/norasector/rxtap/pkg/rxtap/config"
	"github.com/norasector/rxtap/pkg/rxtap/device"
	"github.com/norasector/rxtap/pkg/rxtap/device/file"
	"github.com/norasector/rxtap/pkg/rxtap/handoff"
	"github.com/norasector/rxtap/pkg/rxtap/output"
	"github.com/norasector/rxtap/pkg/rxtap/viz"
	"github.com/norasector/rxtap/pkg/util"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel)
	configFile := flag.String("config", "rxtap.yaml", "YAML config file")
	flag.Parse()

	opts, err := config.Load(*configFile)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configFile).Msg("error loading config")
	}

	level, err := zerolog.ParseLevel(opts.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid log level")
	}
	log.Logger = log.Logger.Level(level)

	var opener device.Opener
	if opts.PlaybackLocation != "" {
		log.Info().Str("device", "file").Str("path", opts.PlaybackLocation).Msg("playing back capture")
		var fileOpts []file.Option
		if opts.PlaybackLoop {
			fileOpts = append(fileOpts, file.WithLoop())
		}
		if opts.PlaybackPacing > 0 {
			fileOpts = append(fileOpts, file.WithPacing(opts.PlaybackPacing))
		}
		opener = file.NewOpener(opts.PlaybackLocation, fileOpts...)
	} else {
		opener = liveOpener()
	}

	if opts.RecordLocation != "" {
		opener = recordingOpener(opener, opts.RecordLocation)
	}

	var writeAPI api.WriteAPI = &util.MockWriteAPI{}
	if opts.InfluxDB.Host != "" {
		client := influxdb2.NewClient(opts.InfluxDB.Host, "")
		defer client.Close()
		writeAPI = client.WriteAPI(opts.InfluxDB.Organization, opts.InfluxDB.Bucket)
	}

	queue := handoff.NewQueue()

	receiver, err := rxtap.NewReceiver(opener, queue,
		rxtap.Options{
			CenterFreq:     opts.CenterFreq,
			SampleRate:     opts.SampleRate,
			Bandwidth:      opts.Bandwidth,
			FFTSize:        opts.FFTSize,
			PacketSize:     opts.PacketSize,
			ReadTimeout:    opts.ReadTimeout,
			ShortReadLimit: opts.ShortReadLimit,
			RestartLimit:   opts.RestartLimit,
		},
		rxtap.WithInfluxDB(writeAPI),
		rxtap.WithLogger(log.Logger))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create receiver")
	}

	var sinks []output.Sink
	if len(opts.OutputDestinations) > 0 {
		sinks = append(sinks, output.NewUDPSink(opts.OutputDestinations, writeAPI, log.Logger))
	}
	if opts.VizServer.Port > 0 {
		sinks = append(sinks, viz.NewServer(opts.VizServer.Port, opts.VizServer.UpdateInterval, receiver, log.Logger))

		if opts.VizServer.Advertise {
			host, _ := os.Hostname()
			shutdown, err := viz.Advertise(fmt.Sprintf("rxtap on %s", host), opts.VizServer.Port, []string{
				fmt.Sprintf("center_freq=%.0f", opts.CenterFreq),
				fmt.Sprintf("sample_rate=%.0f", opts.SampleRate),
			})
			if err != nil {
				log.Warn().Err(err).Msg("mdns advertisement failed")
			} else {
				defer shutdown()
			}
		}
	}
	dispatcher := output.NewDispatcher(queue, writeAPI, log.Logger, sinks...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eg, ctx := errgroup.WithContext(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	eg.Go(func() error {
		handleSignals(ctx, sigChan, receiver.Stop, cancel)
		return nil
	})

	eg.Go(func() error {
		defer cancel()
		return receiver.Run(ctx)
	})

	eg.Go(func() error {
		return dispatcher.Start(ctx)
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, rxtap.ErrDeviceNotFound) {
			log.Fatal().Err(err).Msg("no device found")
		}
		log.Fatal().Err(err).Msg("exited program")
	}
	log.Info().Uint64("blocks", receiver.Published()).Msg("exited")
}

// recordingOpener tees every sample read from the opened device into path.
func recordingOpener(opener device.Opener, path string) device.Opener {
	return device.OpenerFunc(func(args device.Args) (device.Device, error) {
		dev, err := opener.Open(args)
		if err != nil {
			return nil, err
		}
		f, err := os.Create(path)
		if err != nil {
			dev.Close()
			return nil, fmt.Errorf("creating record file: %w", err)
		}
		log.Info().Str("path", path).Msg("recording samples")
		return device.NewRecordingDevice(dev, f), nil
	})
}

// handleSignals stops the receiver when ctx ends. A signal also cancels the
// run so a read stuck retrying on a stalled device is cut off.
func handleSignals(ctx context.Context, sigs <-chan os.Signal, stop func(), cancel context.CancelFunc) {
	select {
	case sig := <-sigs:
		log.Info().Str("signal", sig.String()).Msg("stopping")
		stop()
		cancel()
	case <-ctx.Done():
		stop()
	}
}
