package edge

import (
	"fmt"

	"github.com/golang/glog"

	"go-edge/pkg/config"
	"go-edge/pkg/parallel"
	"go-edge/pkg/raster"
)

// Sobel writes the gradient magnitude of every pixel, without thresholding.
type Sobel struct {
	cfg   config.EdgeConfig
	ready bool
}

func (s *Sobel) Init(cfg config.EdgeConfig) error {
	s.ready = false
	if err := cfg.Validate(false); err != nil {
		return err
	}
	s.cfg = cfg
	s.ready = true
	return nil
}

func (s *Sobel) Process(in, out *raster.Raster[uint8]) error {
	if !s.ready {
		return fmt.Errorf("sobel: operator not initialized: %w", config.ErrInvalidConfiguration)
	}
	if err := checkDims("sobel", in, out); err != nil {
		return err
	}
	glog.V(2).Infof("sobel: %dx%dx%d", in.Height(), in.Width(), in.Channels())

	return parallel.Rows(s.cfg.Workers, 0, in.Height(), func(r0, r1 int) error {
		for row := r0; row < r1; row++ {
			for col := 0; col < in.Width(); col++ {
				for ch := 0; ch < in.Channels(); ch++ {
					g, err := Gradient(in, SobelX, SobelY, s.cfg.Magnitude, row, col, ch)
					if err != nil {
						return fmt.Errorf("sobel: %w", err)
					}
					if err := out.Set(row, col, ch, g.Magnitude); err != nil {
						return fmt.Errorf("sobel: %w", err)
					}
				}
			}
		}
		return nil
	})
}
