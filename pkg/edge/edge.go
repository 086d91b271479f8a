// Package edge implements 3x3 gradient edge detectors: a Sobel magnitude map
// and the Canny pipeline.
package edge

import (
	"fmt"
	"math"

	"go-edge/pkg/config"
	"go-edge/pkg/raster"
)

// Kernel3 is a 3x3 integer convolution kernel indexed [row][col].
type Kernel3 [3][3]int

var (
	SobelX = Kernel3{
		{-1, 0, 1},
		{-2, 0, 2},
		{-1, 0, 1},
	}
	SobelY = Kernel3{
		{1, 2, 1},
		{0, 0, 0},
		{-1, -2, -1},
	}
)

// Operator is a gradient-based edge detector.
type Operator interface {
	Init(cfg config.EdgeConfig) error
	// Process writes the edge map of in into out, which must have the same
	// dimensions as in.
	Process(in, out *raster.Raster[uint8]) error
}

// GradientSample is the gradient at one pixel of one channel.
type GradientSample struct {
	// ResponseX and ResponseY are the raw kernel sums.
	ResponseX int
	ResponseY int
	// Magnitude is saturated to the byte range.
	Magnitude uint8
	// Orientation is atan2(ResponseY, ResponseX) in [0, 2*pi).
	Orientation float64
}

// Gradient evaluates kx and ky centred at (row, col) on channel ch. Pixels on
// the outermost ring yield the zero sample.
func Gradient(in *raster.Raster[uint8], kx, ky Kernel3, mode config.MagnitudeMode, row, col, ch int) (GradientSample, error) {
	if !in.Contains(row, col, ch) {
		return GradientSample{}, fmt.Errorf("gradient at (%d,%d,%d): %w", row, col, ch, raster.ErrOutOfRange)
	}
	if row == 0 || row == in.Height()-1 || col == 0 || col == in.Width()-1 {
		return GradientSample{}, nil
	}

	var sx, sy int
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			v, err := in.Get(row-1+i, col-1+j, ch)
			if err != nil {
				return GradientSample{}, err
			}
			sx += int(v) * kx[i][j]
			sy += int(v) * ky[i][j]
		}
	}

	theta := math.Atan2(float64(sy), float64(sx))
	if theta < 0 {
		theta += 2 * math.Pi
	}
	if theta >= 2*math.Pi {
		theta = 0
	}
	return GradientSample{
		ResponseX:   sx,
		ResponseY:   sy,
		Magnitude:   magnitude(sx, sy, mode),
		Orientation: theta,
	}, nil
}

func magnitude(sx, sy int, mode config.MagnitudeMode) uint8 {
	var m float64
	switch mode {
	case config.MagnitudeEuclidean:
		m = math.Round(math.Hypot(float64(sx), float64(sy)))
	default:
		m = float64(max(abs(sx), abs(sy)))
	}
	if m > math.MaxUint8 {
		return math.MaxUint8
	}
	return uint8(m)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Apply runs op on in and returns a newly allocated result.
func Apply(op Operator, in *raster.Raster[uint8]) (*raster.Raster[uint8], error) {
	out := raster.SameShape[uint8](in)
	if err := op.Process(in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func checkDims(name string, in, out *raster.Raster[uint8]) error {
	if !raster.SameDims(in, out) {
		return fmt.Errorf("%s: output %dx%dx%d for input %dx%dx%d: %w", name,
			out.Height(), out.Width(), out.Channels(),
			in.Height(), in.Width(), in.Channels(), raster.ErrRegionMismatch)
	}
	return nil
}
