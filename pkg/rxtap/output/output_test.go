package output

import (
	"context"
	"errors"
	"net"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/norasector/rxtap/pkg/rxtap/block"
	"github.com/norasector/rxtap/pkg/rxtap/config"
	"github.com/norasector/rxtap/pkg/rxtap/handoff"
	"github.com/norasector/rxtap/pkg/util"
)

func testBlock(t *testing.T, seq uint64, raw []int32, rows, cols int) *block.Block {
	t.Helper()
	b, err := block.FromRaw(seq, time.Unix(1700000000, 123), raw, rows, cols)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestEncodeDecodeRow(t *testing.T) {
	b := testBlock(t, 7, []int32{2, 4, 6, -8, 10, 12}, 2, 3)

	row, err := DecodeRow(EncodeRow(nil, b, 1))
	if err != nil {
		t.Fatalf("DecodeRow() error = %v", err)
	}

	want := &Row{
		Seq:       7,
		Index:     1,
		Rows:      2,
		Cols:      3,
		Timestamp: time.Unix(1700000000, 123),
		Samples:   b.Row(1),
	}
	if !reflect.DeepEqual(row, want) {
		t.Errorf("DecodeRow() = %+v, want %+v", row, want)
	}
}

func TestDecodeRow_SkipsUnknownFields(t *testing.T) {
	b := testBlock(t, 1, []int32{2, 4}, 1, 2)
	msg := protowire.AppendTag(nil, 99, protowire.BytesType)
	msg = protowire.AppendBytes(msg, []byte("future"))
	msg = EncodeRow(msg, b, 0)

	row, err := DecodeRow(msg)
	if err != nil {
		t.Fatalf("DecodeRow() error = %v", err)
	}
	if row.Seq != 1 || len(row.Samples) != 2 {
		t.Errorf("DecodeRow() = %+v", row)
	}
}

func TestDecodeRow_Invalid(t *testing.T) {
	b := testBlock(t, 1, []int32{2, 4}, 1, 2)
	msg := EncodeRow(nil, b, 0)

	if _, err := DecodeRow(msg[:len(msg)-3]); err == nil {
		t.Error("expected error on truncated message")
	}
}

func TestFrame(t *testing.T) {
	frame, err := Frame([]byte("abc"))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(frame, []byte{3, 0, 'a', 'b', 'c'}) {
		t.Errorf("Frame() = %v", frame)
	}
	msg, err := Unframe(frame)
	if err != nil || string(msg) != "abc" {
		t.Errorf("Unframe() = %q, %v", msg, err)
	}

	if _, err := Frame(make([]byte, 70000)); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("Frame() error = %v, want ErrFrameTooLarge", err)
	}
	if _, err := Unframe([]byte{10, 0, 1}); err == nil {
		t.Error("expected error on truncated frame")
	}
}

type chanSink struct {
	recv chan *block.Block
}

func (c *chanSink) Start(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (c *chanSink) Receive() chan<- *block.Block {
	return c.recv
}

func TestDispatcher_FansOutInOrder(t *testing.T) {
	q := handoff.NewQueue()
	fast := &chanSink{recv: make(chan *block.Block, 4)}
	stalled := &chanSink{recv: make(chan *block.Block)}

	for i := uint64(1); i <= 3; i++ {
		q.Push(testBlock(t, i, []int32{2, 4}, 1, 2))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	d := NewDispatcher(q, &util.MockWriteAPI{}, zerolog.Nop(), fast, stalled)
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	for i := uint64(1); i <= 3; i++ {
		select {
		case b := <-fast.recv:
			if b.Seq != i {
				t.Errorf("got seq %d, want %d", b.Seq, i)
			}
		case <-ctx.Done():
			t.Fatal("timed out waiting for blocks")
		}
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Start() error = %v", err)
	}
	if q.Len() != 0 {
		t.Errorf("queue length %d after dispatch", q.Len())
	}
}

func TestUDPSink(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	defer listener.Close()
	port := listener.LocalAddr().(*net.UDPAddr).Port

	metrics := &util.MockWriteAPI{Record: true}
	sink := NewUDPSink([]config.OutputDestination{{Host: "127.0.0.1", Port: port}}, metrics, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- sink.Start(ctx) }()

	b := testBlock(t, 5, []int32{2, 4, 6, 8}, 2, 2)
	sink.Receive() <- b

	if err := listener.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 65536)
	for i := 0; i < 2; i++ {
		n, _, err := listener.ReadFromUDP(buf)
		if err != nil {
			t.Fatalf("ReadFromUDP() error = %v", err)
		}
		msg, err := Unframe(buf[:n])
		if err != nil {
			t.Fatal(err)
		}
		row, err := DecodeRow(msg)
		if err != nil {
			t.Fatal(err)
		}
		if row.Seq != 5 || row.Index != i {
			t.Errorf("datagram %d: seq=%d index=%d", i, row.Seq, row.Index)
		}
		if !reflect.DeepEqual(row.Samples, b.Row(i)) {
			t.Errorf("datagram %d samples = %v, want %v", i, row.Samples, b.Row(i))
		}
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Start() error = %v", err)
	}
}
