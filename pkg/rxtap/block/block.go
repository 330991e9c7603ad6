package block

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ScaleFactor is applied to every raw word after the framing bit is dropped.
// Downstream consumers are normalized against this exact value.
// TODO: re-derive from the LMS7 ADC full scale and document it; the value has no recorded derivation.
const ScaleFactor = 2e-36

// Block is one published unit of samples: Rows sub-blocks of Cols values each,
// in the order the sub-blocks were read from the stream.
type Block struct {
	Seq       uint64
	Timestamp time.Time
	Data      *mat.Dense
}

// Rescale drops the packet-start flag carried in the least significant bit
// and scales the remaining value.
func Rescale(v int32) float64 {
	return float64(v>>1) * ScaleFactor
}

// FromRaw builds a block from rows*cols raw words laid out row by row.
// raw is not retained.
func FromRaw(seq uint64, ts time.Time, raw []int32, rows, cols int) (*Block, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("invalid block shape %dx%d", rows, cols)
	}
	if len(raw) != rows*cols {
		return nil, fmt.Errorf("raw length %d does not match block shape %dx%d", len(raw), rows, cols)
	}

	data := make([]float64, len(raw))
	for i, v := range raw {
		data[i] = Rescale(v)
	}

	return &Block{
		Seq:       seq,
		Timestamp: ts,
		Data:      mat.NewDense(rows, cols, data),
	}, nil
}

func (b *Block) Dims() (rows, cols int) {
	return b.Data.Dims()
}

// Row returns a copy of row i.
func (b *Block) Row(i int) []float64 {
	return mat.Row(nil, i, b.Data)
}

// RowMeans returns the mean of every row.
func (b *Block) RowMeans() []float64 {
	rows, cols := b.Dims()
	ret := make([]float64, rows)
	for i := 0; i < rows; i++ {
		ret[i] = floats.Sum(b.Data.RawRowView(i)) / float64(cols)
	}
	return ret
}

// SizeBytes is the in-memory size of the sample payload.
func (b *Block) SizeBytes() int {
	rows, cols := b.Dims()
	return rows * cols * 8
}
