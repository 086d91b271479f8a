package edge

import (
	"fmt"
	"math"

	"github.com/golang/glog"

	"go-edge/pkg/config"
	"go-edge/pkg/parallel"
	"go-edge/pkg/raster"
)

// Canny runs gradient computation, non-maximum suppression, double
// thresholding and hysteresis linking. Its output is a binary 0/1 raster.
type Canny struct {
	cfg   config.EdgeConfig
	ready bool
}

func (c *Canny) Init(cfg config.EdgeConfig) error {
	c.ready = false
	if err := cfg.Validate(true); err != nil {
		return err
	}
	c.cfg = cfg
	c.ready = true
	return nil
}

func (c *Canny) Process(in, out *raster.Raster[uint8]) error {
	if !c.ready {
		return fmt.Errorf("canny: operator not initialized: %w", config.ErrInvalidConfiguration)
	}
	if err := checkDims("canny", in, out); err != nil {
		return err
	}
	glog.V(2).Infof("canny: %dx%dx%d, thresholds %d/%d, hysteresis %s",
		in.Height(), in.Width(), in.Channels(), c.cfg.Low, c.cfg.High, c.cfg.Hysteresis)

	maps := NewGradientMaps(in)
	if err := ComputeGradients(in, maps, c.cfg.Magnitude, c.cfg.Workers); err != nil {
		return fmt.Errorf("canny: gradient: %w", err)
	}
	if err := NonMaxSuppress(maps, c.cfg.Workers); err != nil {
		return fmt.Errorf("canny: suppression: %w", err)
	}
	weak := raster.SameShape[uint8](in)
	if err := DoubleThreshold(maps.Suppressed, weak, out, c.cfg.Low, c.cfg.High); err != nil {
		return fmt.Errorf("canny: threshold: %w", err)
	}
	if err := Hysteresis(weak, out, c.cfg.Hysteresis); err != nil {
		return fmt.Errorf("canny: hysteresis: %w", err)
	}
	return nil
}

// GradientMaps holds the per-pixel gradient stage output. Magnitude stays
// untouched after the gradient stage; Suppressed starts as a copy of it and
// is zeroed at non-maxima.
type GradientMaps struct {
	Magnitude   *raster.Raster[uint8]
	Suppressed  *raster.Raster[uint8]
	Orientation *raster.Raster[float64]
}

// NewGradientMaps allocates gradient maps with the dimensions of in.
func NewGradientMaps(in *raster.Raster[uint8]) *GradientMaps {
	return &GradientMaps{
		Magnitude:   raster.SameShape[uint8](in),
		Suppressed:  raster.SameShape[uint8](in),
		Orientation: raster.SameShape[float64](in),
	}
}

func (m *GradientMaps) check(in *raster.Raster[uint8]) error {
	if !raster.SameDims(in, m.Magnitude) || !raster.SameDims(in, m.Suppressed) || !raster.SameDims(in, m.Orientation) {
		return fmt.Errorf("gradient maps for %dx%dx%d: %w", in.Height(), in.Width(), in.Channels(), raster.ErrRegionMismatch)
	}
	return nil
}

// ComputeGradients fills maps with the Sobel gradient of every pixel of in.
func ComputeGradients(in *raster.Raster[uint8], maps *GradientMaps, mode config.MagnitudeMode, workers int) error {
	if err := maps.check(in); err != nil {
		return err
	}
	return parallel.Rows(workers, 0, in.Height(), func(r0, r1 int) error {
		for row := r0; row < r1; row++ {
			for col := 0; col < in.Width(); col++ {
				for ch := 0; ch < in.Channels(); ch++ {
					g, err := Gradient(in, SobelX, SobelY, mode, row, col, ch)
					if err != nil {
						return err
					}
					if err := maps.Magnitude.Set(row, col, ch, g.Magnitude); err != nil {
						return err
					}
					if err := maps.Suppressed.Set(row, col, ch, g.Magnitude); err != nil {
						return err
					}
					if err := maps.Orientation.Set(row, col, ch, g.Orientation); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
}

// sectorNeighbours lists, per 45 degree sector of [0, pi), the two neighbour
// offsets {drow, dcol} bracketing the gradient direction on its positive
// side. The negative side uses the negated offsets. Rows grow downwards, so
// a positive angle points to smaller rows.
var sectorNeighbours = [4][2][2]int{
	{{0, 1}, {-1, 1}},
	{{-1, 1}, {-1, 0}},
	{{-1, 0}, {-1, -1}},
	{{-1, -1}, {0, -1}},
}

// sector maps an orientation in [0, 2*pi) to its sector and the
// interpolation weight 4*residual/pi.
func sector(theta float64) (int, float64) {
	if theta >= math.Pi {
		theta -= math.Pi
	}
	s := int(theta / (math.Pi / 4))
	s = min(max(s, 0), 3)
	residual := theta - float64(s)*math.Pi/4
	return s, 4 * residual / math.Pi
}

// interpolate blends the magnitudes at offsets a and b from (row, col). It
// returns -1 when either neighbour lies outside the raster.
func interpolate(mag *raster.Raster[uint8], row, col, ch int, a, b [2]int, w float64) float64 {
	va, err := mag.Get(row+a[0], col+a[1], ch)
	if err != nil {
		return -1
	}
	vb, err := mag.Get(row+b[0], col+b[1], ch)
	if err != nil {
		return -1
	}
	return (1-w)*float64(va) + w*float64(vb)
}

// NonMaxSuppress zeroes maps.Suppressed wherever the magnitude is smaller
// than the interpolated magnitude on either side along the gradient.
func NonMaxSuppress(maps *GradientMaps, workers int) error {
	mag := maps.Magnitude
	if err := maps.check(mag); err != nil {
		return err
	}
	return parallel.Rows(workers, 0, mag.Height(), func(r0, r1 int) error {
		for row := r0; row < r1; row++ {
			for col := 0; col < mag.Width(); col++ {
				for ch := 0; ch < mag.Channels(); ch++ {
					center, err := mag.Get(row, col, ch)
					if err != nil {
						return err
					}
					theta, err := maps.Orientation.Get(row, col, ch)
					if err != nil {
						return err
					}
					s, w := sector(theta)
					a, b := sectorNeighbours[s][0], sectorNeighbours[s][1]
					ahead := interpolate(mag, row, col, ch, a, b, w)
					behind := interpolate(mag, row, col, ch, [2]int{-a[0], -a[1]}, [2]int{-b[0], -b[1]}, w)
					if float64(center) < ahead || float64(center) < behind {
						if err := maps.Suppressed.Set(row, col, ch, 0); err != nil {
							return err
						}
					}
				}
			}
		}
		return nil
	})
}

// DoubleThreshold writes weak = suppressed > low and strong = suppressed >
// high as 0/1 maps.
func DoubleThreshold(suppressed, weak, strong *raster.Raster[uint8], low, high int) error {
	if low >= high {
		return fmt.Errorf("thresholds %d/%d: %w", low, high, config.ErrInvalidConfiguration)
	}
	if !raster.SameDims(suppressed, weak) || !raster.SameDims(suppressed, strong) {
		return fmt.Errorf("threshold maps: %w", raster.ErrRegionMismatch)
	}
	for ch := 0; ch < suppressed.Channels(); ch++ {
		for row := 0; row < suppressed.Height(); row++ {
			for col := 0; col < suppressed.Width(); col++ {
				v, err := suppressed.Get(row, col, ch)
				if err != nil {
					return err
				}
				if err := weak.Set(row, col, ch, indicator(int(v) > low)); err != nil {
					return err
				}
				if err := strong.Set(row, col, ch, indicator(int(v) > high)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func indicator(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// Hysteresis promotes weak pixels 8-connected to strong pixels of out into
// out. Neighbourhoods are clamped at the raster border.
func Hysteresis(weak, out *raster.Raster[uint8], mode config.HysteresisMode) error {
	if !raster.SameDims(weak, out) {
		return fmt.Errorf("hysteresis maps: %w", raster.ErrRegionMismatch)
	}
	if mode == config.HysteresisSinglePass {
		return linkOnce(weak, out)
	}
	return linkFixpoint(weak, out)
}

// linkOnce promotes the neighbours of the pixels that are strong in a
// snapshot of out taken before the pass.
func linkOnce(weak, out *raster.Raster[uint8]) error {
	strong := out.Clone()
	for ch := 0; ch < out.Channels(); ch++ {
		for row := 0; row < out.Height(); row++ {
			for col := 0; col < out.Width(); col++ {
				if v, _ := strong.Get(row, col, ch); v != 1 {
					continue
				}
				if _, err := promoteNeighbours(weak, out, row, col, ch); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// linkFixpoint floods from every strong pixel through weak pixels.
func linkFixpoint(weak, out *raster.Raster[uint8]) error {
	for ch := 0; ch < out.Channels(); ch++ {
		var stack [][2]int
		for row := 0; row < out.Height(); row++ {
			for col := 0; col < out.Width(); col++ {
				if v, _ := out.Get(row, col, ch); v == 1 {
					stack = append(stack, [2]int{row, col})
				}
			}
		}
		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			promoted, err := promoteNeighbours(weak, out, p[0], p[1], ch)
			if err != nil {
				return err
			}
			stack = append(stack, promoted...)
		}
	}
	return nil
}

// promoteNeighbours copies the weak indicator into out for every weak
// neighbour of (row, col) that is not already an edge, and returns the
// promoted positions.
func promoteNeighbours(weak, out *raster.Raster[uint8], row, col, ch int) ([][2]int, error) {
	var promoted [][2]int
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			r := min(max(row+dr, 0), out.Height()-1)
			c := min(max(col+dc, 0), out.Width()-1)
			w, err := weak.Get(r, c, ch)
			if err != nil {
				return nil, err
			}
			cur, err := out.Get(r, c, ch)
			if err != nil {
				return nil, err
			}
			if w != 1 || cur == 1 {
				continue
			}
			if err := out.Set(r, c, ch, w); err != nil {
				return nil, err
			}
			promoted = append(promoted, [2]int{r, c})
		}
	}
	return promoted, nil
}
