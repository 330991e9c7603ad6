package viz

import (
	"bytes"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/norasector/rxtap/pkg/rxtap/block"
)

func plotWithDefaults() *plot.Plot {
	p := plot.New()
	p.BackgroundColor = color.Black
	p.Title.TextStyle.Color = color.White
	p.Y.Label.TextStyle.Color = color.White
	p.Y.Color = color.White
	p.X.Label.TextStyle.Color = color.White
	p.X.Color = color.White
	p.Legend.TextStyle.Color = color.White
	p.X.Tick.Color = color.White
	p.Y.Tick.Color = color.White
	p.X.Tick.Label.Color = color.White
	p.Y.Tick.Label.Color = color.White

	return p
}

// BlockPlotter renders the first row of a block and the per-row means.
type BlockPlotter struct {
	name string
}

func NewBlockPlotter(name string) *BlockPlotter {
	return &BlockPlotter{name: name}
}

// Render returns the PNG encoding of the plot for b.
func (bp *BlockPlotter) Render(b *block.Block) ([]byte, error) {
	rows, _ := b.Dims()
	if rows == 0 {
		return nil, fmt.Errorf("block %d is empty", b.Seq)
	}

	p := plotWithDefaults()
	p.Title.Text = fmt.Sprintf("%s block %d", bp.name, b.Seq)
	p.Y.Label.Text = "Amplitude"
	p.X.Label.Text = "n"

	p.Add(plotter.NewGrid())

	if err := plotutil.AddLines(p,
		"row 0", toXYs(b.Row(0)),
		"row mean", toXYs(b.RowMeans()),
	); err != nil {
		return nil, err
	}

	w, err := p.WriterTo(8*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return nil, err
	}
	var imageData bytes.Buffer
	if _, err := w.WriteTo(&imageData); err != nil {
		return nil, err
	}
	return imageData.Bytes(), nil
}

func toXYs(vals []float64) plotter.XYs {
	ret := make(plotter.XYs, len(vals))
	for i, v := range vals {
		ret[i] = plotter.XY{X: float64(i), Y: v}
	}
	return ret
}
