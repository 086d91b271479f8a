package filter

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"go-edge/pkg/config"
	"go-edge/pkg/raster"
)

// Gauss is a separable Gaussian blur.
type Gauss struct {
	kernelFilter
	rowKernel []float64
	norm      float64
}

// Init samples the 1-D kernel w[i] = exp(-((i-k)/sigma)^2 / 2) and picks the
// normalizer. With NormalizeKernelSum the weighted sum is divided by the sum
// of the 2-D weights, (sum w)^2; with NormalizeAnalytic by 2*pi*sigma^2.
func (g *Gauss) Init(cfg config.FilterConfig) error {
	if err := g.init(cfg, true); err != nil {
		return err
	}
	k := cfg.HalfWidth()
	g.rowKernel = make([]float64, cfg.KernelSize)
	for i := range g.rowKernel {
		t := float64(i-k) / cfg.Sigma
		g.rowKernel[i] = math.Exp(-t * t / 2)
	}
	switch cfg.Normalization {
	case config.NormalizeAnalytic:
		g.norm = 2 * math.Pi * cfg.Sigma * cfg.Sigma
	default:
		s := floats.Sum(g.rowKernel)
		g.norm = s * s
	}
	return nil
}

// RowKernel returns a copy of the sampled 1-D kernel.
func (g *Gauss) RowKernel() []float64 {
	return append([]float64(nil), g.rowKernel...)
}

// Normalizer returns the divisor applied to the weighted sum.
func (g *Gauss) Normalizer() float64 {
	return g.norm
}

func (g *Gauss) Process(in, out *raster.Raster[uint8]) error {
	return g.process("gauss", in, out, g.kernelConv)
}

func (g *Gauss) kernelConv(in *raster.Raster[uint8], row, col, ch int) (float64, error) {
	k := g.cfg.HalfWidth()
	n := g.cfg.KernelSize
	window := make([]float64, n)
	rowSums := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v, err := in.Get(row-k+i, col-k+j, ch)
			if err != nil {
				return 0, err
			}
			window[j] = float64(v)
		}
		rowSums[i] = floats.Dot(window, g.rowKernel)
	}
	return floats.Dot(rowSums, g.rowKernel) / g.norm, nil
}
