package output

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/rs/zerolog"

	"github.com/norasector/rxtap/pkg/rxtap/block"
	"github.com/norasector/rxtap/pkg/rxtap/config"
)

const receiveBlocks = 8

// UDPSink sends every block to each destination as one datagram per row.
// Each datagram is a Row message framed with a uint16 length prefix.
type UDPSink struct {
	dests    []config.OutputDestination
	recvChan chan *block.Block
	metrics  api.WriteAPI
	logger   zerolog.Logger
}

func NewUDPSink(dests []config.OutputDestination, metrics api.WriteAPI, logger zerolog.Logger) *UDPSink {
	return &UDPSink{
		dests:    dests,
		recvChan: make(chan *block.Block, receiveBlocks),
		metrics:  metrics,
		logger:   logger,
	}
}

func (s *UDPSink) Receive() chan<- *block.Block {
	return s.recvChan
}

func (s *UDPSink) resolve() ([]*net.UDPAddr, error) {
	destAddrs := make([]*net.UDPAddr, 0, len(s.dests))
	for _, dest := range s.dests {
		ips, err := net.LookupIP(dest.Host)
		if err != nil {
			return nil, err
		}
		if len(ips) == 0 {
			return nil, fmt.Errorf("no IPs returned for %s", dest.Host)
		}

		destAddr := &net.UDPAddr{IP: ips[0], Port: dest.Port}
		destAddrs = append(destAddrs, destAddr)
		s.logger.Info().IPAddr("dest_ip", destAddr.IP).Int("port", dest.Port).Msg("udp output starting")
	}
	return destAddrs, nil
}

func (s *UDPSink) Start(ctx context.Context) error {
	destAddrs, err := s.resolve()
	if err != nil {
		return err
	}

	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	var msg []byte
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b := <-s.recvChan:
			rows, _ := b.Dims()
			sent, dropped, bytesWritten := 0, 0, 0

			for i := 0; i < rows; i++ {
				msg = EncodeRow(msg[:0], b, i)
				frame, err := Frame(msg)
				if err != nil {
					s.logger.Warn().Err(err).Uint64("seq", b.Seq).Int("row", i).Msg("dropping row")
					dropped++
					continue
				}

				for _, destAddr := range destAddrs {
					n, err := conn.WriteToUDP(frame, destAddr)
					if err != nil {
						s.logger.Error().Err(err).Str("dest", destAddr.String()).Msg("error writing")
						dropped++
						continue
					}
					bytesWritten += n
					sent++
				}
			}

			s.metrics.WritePoint(influxdb2.NewPoint("rxtap.udp_sent",
				map[string]string{
					"rows": strconv.Itoa(rows),
				},
				map[string]interface{}{
					"seq":           int64(b.Seq),
					"sent":          sent,
					"dropped":       dropped,
					"bytes_written": bytesWritten,
				}, time.Now()))
		}
	}
}
