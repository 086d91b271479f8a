// Package filter implements sliding-window smoothing filters over byte
// rasters. The border band that the window cannot cover is copied verbatim
// from the input.
package filter

import (
	"fmt"
	"math"

	"github.com/golang/glog"

	"go-edge/pkg/config"
	"go-edge/pkg/parallel"
	"go-edge/pkg/raster"
)

// Filter is a square, odd-sized kernel filter.
type Filter interface {
	Init(cfg config.FilterConfig) error
	// Process writes the filtered in into out, which must have the same
	// dimensions as in.
	Process(in, out *raster.Raster[uint8]) error
}

// kernelConvFunc computes the filter response at one interior pixel.
type kernelConvFunc func(in *raster.Raster[uint8], row, col, ch int) (float64, error)

// kernelFilter carries the state shared by every kernel filter.
type kernelFilter struct {
	cfg   config.FilterConfig
	ready bool
}

func (f *kernelFilter) init(cfg config.FilterConfig, gaussian bool) error {
	f.ready = false
	if err := cfg.Validate(gaussian); err != nil {
		return err
	}
	f.cfg = cfg
	f.ready = true
	return nil
}

// KernelSize returns the configured window size.
func (f *kernelFilter) KernelSize() int {
	return f.cfg.KernelSize
}

func (f *kernelFilter) process(name string, in, out *raster.Raster[uint8], conv kernelConvFunc) error {
	if !f.ready {
		return fmt.Errorf("%s: filter not initialized: %w", name, config.ErrInvalidConfiguration)
	}
	if !raster.SameDims(in, out) {
		return fmt.Errorf("%s: output %dx%dx%d for input %dx%dx%d: %w", name,
			out.Height(), out.Width(), out.Channels(),
			in.Height(), in.Width(), in.Channels(), raster.ErrRegionMismatch)
	}
	k := f.cfg.HalfWidth()
	height, width := in.Height(), in.Width()
	if height < 2*k+1 || width < 2*k+1 {
		return fmt.Errorf("%s: %dx%d raster for kernel %d: %w", name, height, width, f.cfg.KernelSize, raster.ErrRegionTooSmall)
	}
	glog.V(2).Infof("%s: %dx%dx%d, kernel %d, %d workers", name, height, width, in.Channels(), f.cfg.KernelSize, f.cfg.Workers)

	if err := copyBoundary(in, out, k); err != nil {
		return fmt.Errorf("%s: boundary: %w", name, err)
	}
	return parallel.Rows(f.cfg.Workers, k, height-k, func(r0, r1 int) error {
		for row := r0; row < r1; row++ {
			for col := k; col < width-k; col++ {
				for ch := 0; ch < in.Channels(); ch++ {
					v, err := conv(in, row, col, ch)
					if err != nil {
						return fmt.Errorf("%s: %w", name, err)
					}
					if err := out.Set(row, col, ch, narrow(v)); err != nil {
						return fmt.Errorf("%s: %w", name, err)
					}
				}
			}
		}
		return nil
	})
}

// copyBoundary copies the top, bottom, left and right bands of half-width k
// from in to out. The side bands exclude the rows covered by the top and
// bottom bands.
func copyBoundary(in, out *raster.Raster[uint8], k int) error {
	if k == 0 {
		return nil
	}
	height, width := in.Height(), in.Width()
	bands := [][4]int{
		{0, 0, k, width},
		{height - k, 0, height, width},
		{k, 0, height - k, k},
		{k, width - k, height - k, width},
	}
	for _, b := range bands {
		if err := in.CloneInto(b[0], b[1], b[2], b[3], out); err != nil {
			return err
		}
	}
	return nil
}

// narrow rounds v to the nearest byte value.
func narrow(v float64) uint8 {
	v = math.Round(v)
	switch {
	case v <= 0:
		return 0
	case v >= math.MaxUint8:
		return math.MaxUint8
	}
	return uint8(v)
}

// Apply runs f on in and returns a newly allocated result.
func Apply(f Filter, in *raster.Raster[uint8]) (*raster.Raster[uint8], error) {
	out := raster.SameShape[uint8](in)
	if err := f.Process(in, out); err != nil {
		return nil, err
	}
	return out, nil
}
