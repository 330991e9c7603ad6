package output

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/norasector/rxtap/pkg/rxtap/block"
)

// Row messages use the protobuf wire format:
//
//	message Row {
//	  uint64 seq = 1;
//	  uint32 index = 2;
//	  uint32 rows = 3;
//	  uint32 cols = 4;
//	  int64 timestamp_ns = 5;
//	  repeated double samples = 6; // packed
//	}
const (
	fieldSeq       protowire.Number = 1
	fieldIndex     protowire.Number = 2
	fieldRows      protowire.Number = 3
	fieldCols      protowire.Number = 4
	fieldTimestamp protowire.Number = 5
	fieldSamples   protowire.Number = 6
)

var ErrFrameTooLarge = errors.New("encoded row exceeds frame size")

// Row is one decoded row message.
type Row struct {
	Seq       uint64
	Index     int
	Rows      int
	Cols      int
	Timestamp time.Time
	Samples   []float64
}

// EncodeRow appends row i of b to dst as a Row message.
func EncodeRow(dst []byte, b *block.Block, i int) []byte {
	rows, cols := b.Dims()

	dst = protowire.AppendTag(dst, fieldSeq, protowire.VarintType)
	dst = protowire.AppendVarint(dst, b.Seq)
	dst = protowire.AppendTag(dst, fieldIndex, protowire.VarintType)
	dst = protowire.AppendVarint(dst, uint64(i))
	dst = protowire.AppendTag(dst, fieldRows, protowire.VarintType)
	dst = protowire.AppendVarint(dst, uint64(rows))
	dst = protowire.AppendTag(dst, fieldCols, protowire.VarintType)
	dst = protowire.AppendVarint(dst, uint64(cols))
	dst = protowire.AppendTag(dst, fieldTimestamp, protowire.VarintType)
	dst = protowire.AppendVarint(dst, uint64(b.Timestamp.UnixNano()))

	samples := b.Data.RawRowView(i)
	dst = protowire.AppendTag(dst, fieldSamples, protowire.BytesType)
	dst = protowire.AppendVarint(dst, uint64(len(samples)*8))
	for _, v := range samples {
		dst = protowire.AppendFixed64(dst, math.Float64bits(v))
	}
	return dst
}

// DecodeRow parses a Row message. Unknown fields are skipped.
func DecodeRow(buf []byte) (*Row, error) {
	row := &Row{}
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		buf = buf[n:]

		if typ == protowire.VarintType && num >= fieldSeq && num <= fieldTimestamp {
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			buf = buf[n:]

			switch num {
			case fieldSeq:
				row.Seq = v
			case fieldIndex:
				row.Index = int(v)
			case fieldRows:
				row.Rows = int(v)
			case fieldCols:
				row.Cols = int(v)
			case fieldTimestamp:
				row.Timestamp = time.Unix(0, int64(v))
			}
			continue
		}

		if num == fieldSamples && typ == protowire.BytesType {
			packed, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			buf = buf[n:]

			for len(packed) > 0 {
				bits, n := protowire.ConsumeFixed64(packed)
				if n < 0 {
					return nil, protowire.ParseError(n)
				}
				packed = packed[n:]
				row.Samples = append(row.Samples, math.Float64frombits(bits))
			}
			continue
		}

		n = protowire.ConsumeFieldValue(num, typ, buf)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		buf = buf[n:]
	}

	if row.Cols != len(row.Samples) {
		return nil, fmt.Errorf("row declares %d columns but carries %d samples", row.Cols, len(row.Samples))
	}
	return row, nil
}

// Frame prefixes an encoded message with its little-endian uint16 length.
func Frame(msg []byte) ([]byte, error) {
	if len(msg) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(msg))
	}
	frame := make([]byte, 2, 2+len(msg))
	binary.LittleEndian.PutUint16(frame, uint16(len(msg)))
	return append(frame, msg...), nil
}

// Unframe strips the length prefix written by Frame.
func Unframe(frame []byte) ([]byte, error) {
	if len(frame) < 2 {
		return nil, fmt.Errorf("frame too short: %d bytes", len(frame))
	}
	size := int(binary.LittleEndian.Uint16(frame))
	if len(frame)-2 < size {
		return nil, fmt.Errorf("truncated frame: header says %d bytes, have %d", size, len(frame)-2)
	}
	return frame[2 : 2+size], nil
}
