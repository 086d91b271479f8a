package config

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterConfigValidate(t *testing.T) {
	cases := []struct {
		name     string
		cfg      FilterConfig
		gaussian bool
		ok       bool
	}{
		{"mean odd", FilterConfig{KernelSize: 3}, false, true},
		{"mean even", FilterConfig{KernelSize: 4}, false, false},
		{"mean zero", FilterConfig{KernelSize: 0}, false, false},
		{"mean negative", FilterConfig{KernelSize: -3}, false, false},
		{"mean ignores sigma", FilterConfig{KernelSize: 5, Sigma: -1}, false, true},
		{"gauss ok", FilterConfig{KernelSize: 5, Sigma: 1}, true, true},
		{"gauss zero sigma", FilterConfig{KernelSize: 5}, true, false},
		{"gauss analytic", FilterConfig{KernelSize: 5, Sigma: 2, Normalization: NormalizeAnalytic}, true, true},
		{"gauss bad normalization", FilterConfig{KernelSize: 5, Sigma: 2, Normalization: "median"}, true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate(tc.gaussian)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidConfiguration)
			}
		})
	}
}

func TestEdgeConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultEdgeConfig().Validate(true))
	assert.ErrorIs(t, EdgeConfig{Low: 100, High: 100}.Validate(true), ErrInvalidConfiguration)
	assert.ErrorIs(t, EdgeConfig{Low: 120, High: 100}.Validate(true), ErrInvalidConfiguration)
	assert.ErrorIs(t, EdgeConfig{Low: -1, High: 100}.Validate(true), ErrInvalidConfiguration)
	assert.ErrorIs(t, EdgeConfig{Low: 1, High: 300}.Validate(true), ErrInvalidConfiguration)
	assert.ErrorIs(t, EdgeConfig{Low: 1, High: 2, Magnitude: "l1"}.Validate(true), ErrInvalidConfiguration)
	// thresholds are irrelevant to Sobel
	assert.NoError(t, EdgeConfig{Low: 120, High: 100}.Validate(false))
}

func TestOperatorValidate(t *testing.T) {
	op := DefaultOperator()
	for _, name := range []string{OpMean, OpGauss, OpSobel, OpCanny} {
		op.Name = name
		assert.NoError(t, op.Validate(), name)
	}
	op.Name = "laplace"
	assert.ErrorIs(t, op.Validate(), ErrInvalidConfiguration)
}

func TestRegisterFlags(t *testing.T) {
	op := DefaultOperator()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	op.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{
		"-op", "gauss", "-kernel", "7", "-sigma", "2.5",
		"-normalization", "analytic", "-low", "10", "-high", "90",
		"-magnitude", "euclidean", "-hysteresis", "single",
	}))
	assert.Equal(t, OpGauss, op.Name)
	assert.Equal(t, 7, op.Filter.KernelSize)
	assert.Equal(t, 3, op.Filter.HalfWidth())
	assert.Equal(t, 2.5, op.Filter.Sigma)
	assert.Equal(t, NormalizeAnalytic, op.Filter.Normalization)
	assert.Equal(t, 10, op.Edge.Low)
	assert.Equal(t, 90, op.Edge.High)
	assert.Equal(t, MagnitudeEuclidean, op.Edge.Magnitude)
	assert.Equal(t, HysteresisSinglePass, op.Edge.Hysteresis)
}
