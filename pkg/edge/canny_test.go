package edge

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-edge/pkg/config"
	"go-edge/pkg/raster"
)

func runCanny(t *testing.T, cfg config.EdgeConfig, in *raster.Raster[uint8]) *raster.Raster[uint8] {
	t.Helper()
	var c Canny
	require.NoError(t, c.Init(cfg))
	out, err := Apply(&c, in)
	require.NoError(t, err)
	return out
}

func TestCannyAllZero(t *testing.T) {
	in, err := raster.New[uint8](9, 13, 3)
	require.NoError(t, err)
	out := runCanny(t, config.DefaultEdgeConfig(), in)
	assert.True(t, raster.SameDims(in, out))
	assert.Equal(t, out.Size(), out.Count(0))
}

func TestCannyVerticalStep(t *testing.T) {
	const h, w, at = 12, 12, 6
	in := verticalStep(t, h, w, 1, at, 200)
	for _, mode := range []config.HysteresisMode{config.HysteresisSinglePass, config.HysteresisFixpoint} {
		cfg := config.DefaultEdgeConfig()
		cfg.Hysteresis = mode
		out := runCanny(t, cfg, in)
		for row := 0; row < h; row++ {
			for col := 0; col < w; col++ {
				got, _ := out.Get(row, col, 0)
				if row > 0 && row < h-1 && (col == at-1 || col == at) {
					assert.Equal(t, uint8(1), got, "%s (%d,%d)", mode, row, col)
				} else {
					assert.Zero(t, got, "%s (%d,%d)", mode, row, col)
				}
			}
		}
	}
}

func TestCannyOutputIsBinary(t *testing.T) {
	in := noise(t, 20, 24, 3, 9)
	out := runCanny(t, config.EdgeConfig{Low: 10, High: 60}, in)
	assert.Equal(t, out.Size(), out.Count(0)+out.Count(1))
	assert.Positive(t, out.Count(1))
	// the outermost ring never carries an edge
	for ch := 0; ch < 3; ch++ {
		for col := 0; col < 24; col++ {
			top, _ := out.Get(0, col, ch)
			bottom, _ := out.Get(19, col, ch)
			assert.Zero(t, top)
			assert.Zero(t, bottom)
		}
	}
}

func TestCannyWorkersMatchSequential(t *testing.T) {
	in := noise(t, 27, 21, 2, 4)
	seq := config.EdgeConfig{Low: 15, High: 80, Workers: 1}
	par := seq
	par.Workers = 4
	assert.Equal(t, runCanny(t, seq, in).Values(), runCanny(t, par, in).Values())
}

func TestSector(t *testing.T) {
	cases := []struct {
		theta  float64
		sector int
		weight float64
	}{
		{0, 0, 0},
		{math.Pi / 8, 0, 0.5},
		{3 * math.Pi / 8, 1, 0.5},
		{math.Pi / 2, 2, 0},
		{7 * math.Pi / 8, 3, 0.5},
		{math.Pi, 0, 0},
		{9 * math.Pi / 8, 0, 0.5},
		{11 * math.Pi / 8, 1, 0.5},
		{15 * math.Pi / 8, 3, 0.5},
	}
	for _, tc := range cases {
		s, w := sector(tc.theta)
		assert.Equal(t, tc.sector, s, "theta %g", tc.theta)
		assert.InDelta(t, tc.weight, w, 1e-9, "theta %g", tc.theta)
	}
}

func TestNonMaxSuppress(t *testing.T) {
	row := []uint8{0, 10, 30, 20, 0}
	in := fromFunc(t, 3, 5, 1, func(_, col, _ int) uint8 { return row[col] })
	maps := &GradientMaps{
		Magnitude:   in,
		Suppressed:  in.Clone(),
		Orientation: raster.SameShape[float64](in),
	}
	require.NoError(t, NonMaxSuppress(maps, 1))

	want := []uint8{0, 0, 30, 0, 0}
	for col, v := range want {
		got, _ := maps.Suppressed.Get(1, col, 0)
		assert.Equal(t, v, got, "col %d", col)
	}
	// on the top row the side reaching above the raster is unconstrained
	got, _ := maps.Suppressed.Get(0, 1, 0)
	assert.Equal(t, uint8(10), got)
	// the pristine magnitude is never modified
	assert.Equal(t, in.Values(), maps.Magnitude.Values())
}

func TestNonMaxSuppressDiagonal(t *testing.T) {
	// a ridge along the anti-diagonal, gradient just past 135 degrees
	mag := fromFunc(t, 5, 5, 1, func(row, col, _ int) uint8 {
		switch row + col {
		case 4:
			return 90
		case 3, 5:
			return 40
		}
		return 0
	})
	orient := raster.SameShape[float64](mag)
	orient.Fill(3*math.Pi/4 + 0.05)
	maps := &GradientMaps{Magnitude: mag, Suppressed: mag.Clone(), Orientation: orient}
	require.NoError(t, NonMaxSuppress(maps, 1))

	for r := 1; r < 4; r++ {
		got, _ := maps.Suppressed.Get(r, 4-r, 0)
		assert.Equal(t, uint8(90), got, "ridge (%d,%d)", r, 4-r)
		got, _ = maps.Suppressed.Get(r, 3-r, 0)
		assert.Zero(t, got, "flank (%d,%d)", r, 3-r)
	}
}

func TestDoubleThreshold(t *testing.T) {
	supp := fromFunc(t, 1, 5, 1, func(_, col, _ int) uint8 { return []uint8{0, 20, 21, 100, 101}[col] })
	weak := raster.SameShape[uint8](supp)
	strong := raster.SameShape[uint8](supp)
	require.NoError(t, DoubleThreshold(supp, weak, strong, 20, 100))
	assert.Equal(t, []uint8{0, 0, 1, 1, 1}, weak.Values())
	assert.Equal(t, []uint8{0, 0, 0, 0, 1}, strong.Values())

	assert.ErrorIs(t, DoubleThreshold(supp, weak, strong, 50, 50), config.ErrInvalidConfiguration)
	wrong, err := raster.New[uint8](1, 4, 1)
	require.NoError(t, err)
	assert.ErrorIs(t, DoubleThreshold(supp, weak, wrong, 20, 100), raster.ErrRegionMismatch)
}

func TestDoubleThresholdMonotonic(t *testing.T) {
	supp := noise(t, 24, 24, 2, 21)
	weak := raster.SameShape[uint8](supp)
	strong := raster.SameShape[uint8](supp)

	prev := math.MaxInt
	for high := 10; high <= 255; high += 15 {
		require.NoError(t, DoubleThreshold(supp, weak, strong, 5, high))
		n := strong.Count(1)
		assert.LessOrEqual(t, n, prev, "high %d", high)
		prev = n
	}

	for _, mode := range []config.HysteresisMode{config.HysteresisSinglePass, config.HysteresisFixpoint} {
		prevWeak, prevLinked := math.MaxInt, math.MaxInt
		for low := 0; low < 240; low += 20 {
			require.NoError(t, DoubleThreshold(supp, weak, strong, low, 240))
			nWeak := weak.Count(1)
			assert.LessOrEqual(t, nWeak, prevWeak, "low %d", low)
			prevWeak = nWeak

			require.NoError(t, Hysteresis(weak, strong, mode))
			nLinked := strong.Count(1)
			assert.LessOrEqual(t, nLinked, prevLinked, "%s low %d", mode, low)
			prevLinked = nLinked
		}
	}
}

func TestHysteresisDepth(t *testing.T) {
	build := func() (weak, strong *raster.Raster[uint8]) {
		weak = fromFunc(t, 5, 9, 1, func(row, col, _ int) uint8 {
			if (row == 2 && col >= 1 && col <= 7) || (row == 0 && col == 8) {
				return 1
			}
			return 0
		})
		strong = raster.SameShape[uint8](weak)
		require.NoError(t, strong.Set(2, 1, 0, 1))
		return weak, strong
	}

	weak, out := build()
	require.NoError(t, Hysteresis(weak, out, config.HysteresisSinglePass))
	assert.Equal(t, 2, out.Count(1))
	v, _ := out.Get(2, 2, 0)
	assert.Equal(t, uint8(1), v)

	weak, out = build()
	require.NoError(t, Hysteresis(weak, out, config.HysteresisFixpoint))
	assert.Equal(t, 7, out.Count(1))
	v, _ = out.Get(0, 8, 0)
	assert.Zero(t, v, "isolated weak pixel stays off")
}

func TestHysteresisClampsAtBorder(t *testing.T) {
	weak := fromFunc(t, 3, 3, 1, func(row, col, _ int) uint8 {
		if row == 0 && col <= 1 {
			return 1
		}
		return 0
	})
	out := raster.SameShape[uint8](weak)
	require.NoError(t, out.Set(0, 0, 0, 1))
	require.NoError(t, Hysteresis(weak, out, config.HysteresisSinglePass))
	assert.Equal(t, []uint8{1, 1, 0, 0, 0, 0, 0, 0, 0}, out.Values())
}

func TestGradientMapsDims(t *testing.T) {
	in := noise(t, 6, 6, 1, 2)
	maps := NewGradientMaps(in)
	other := noise(t, 6, 7, 1, 2)
	assert.ErrorIs(t, ComputeGradients(other, maps, config.MagnitudeMaxAbs, 1), raster.ErrRegionMismatch)
	require.NoError(t, ComputeGradients(in, maps, config.MagnitudeMaxAbs, 1))
	assert.Equal(t, maps.Magnitude.Values(), maps.Suppressed.Values())
}
