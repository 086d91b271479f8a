package filter

import (
	"go-edge/pkg/config"
	"go-edge/pkg/raster"
)

// Mean replaces each interior pixel with the average of its window.
type Mean struct {
	kernelFilter
}

func (m *Mean) Init(cfg config.FilterConfig) error {
	return m.init(cfg, false)
}

func (m *Mean) Process(in, out *raster.Raster[uint8]) error {
	return m.process("mean", in, out, m.kernelConv)
}

func (m *Mean) kernelConv(in *raster.Raster[uint8], row, col, ch int) (float64, error) {
	k := m.cfg.HalfWidth()
	sum := 0.0
	for r := row - k; r <= row+k; r++ {
		for c := col - k; c <= col+k; c++ {
			v, err := in.Get(r, c, ch)
			if err != nil {
				return 0, err
			}
			sum += float64(v)
		}
	}
	n := m.cfg.KernelSize * m.cfg.KernelSize
	return sum / float64(n), nil
}
