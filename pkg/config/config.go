// Package config holds the operator configuration shared by the filters, the
// edge detectors and the processing services.
package config

import (
	"errors"
	"flag"
	"fmt"
	"strings"
)

var ErrInvalidConfiguration = errors.New("invalid configuration")

// Normalization selects how the Gaussian filter divides its weighted sum.
type Normalization string

const (
	// NormalizeKernelSum divides by the sum of the sampled 2-D kernel weights.
	NormalizeKernelSum Normalization = "kernel-sum"
	// NormalizeAnalytic divides by 2*pi*sigma^2.
	NormalizeAnalytic Normalization = "analytic"
)

// MagnitudeMode selects how a gradient pair is reduced to one magnitude.
type MagnitudeMode string

const (
	MagnitudeMaxAbs    MagnitudeMode = "maxabs"
	MagnitudeEuclidean MagnitudeMode = "euclidean"
)

// HysteresisMode selects how far weak edges are promoted from strong ones.
type HysteresisMode string

const (
	// HysteresisSinglePass promotes only the direct neighbours of pixels
	// that were strong after double thresholding.
	HysteresisSinglePass HysteresisMode = "single"
	// HysteresisFixpoint follows chains of weak pixels until nothing changes.
	HysteresisFixpoint HysteresisMode = "fixpoint"
)

// Operator names.
const (
	OpMean  = "mean"
	OpGauss = "gauss"
	OpSobel = "sobel"
	OpCanny = "canny"
)

type FilterConfig struct {
	KernelSize    int           `json:"kernel_size"`
	Sigma         float64       `json:"sigma"`
	Normalization Normalization `json:"normalization,omitempty"`
	Workers       int           `json:"workers,omitempty"`
}

type EdgeConfig struct {
	Low        int            `json:"low"`
	High       int            `json:"high"`
	Magnitude  MagnitudeMode  `json:"magnitude,omitempty"`
	Hysteresis HysteresisMode `json:"hysteresis,omitempty"`
	Workers    int            `json:"workers,omitempty"`
}

// Operator names one image operator together with its parameters.
type Operator struct {
	Name   string       `json:"name"`
	Filter FilterConfig `json:"filter"`
	Edge   EdgeConfig   `json:"edge"`
}

func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		KernelSize:    5,
		Sigma:         1.4,
		Normalization: NormalizeKernelSum,
		Workers:       1,
	}
}

func DefaultEdgeConfig() EdgeConfig {
	return EdgeConfig{
		Low:        20,
		High:       100,
		Magnitude:  MagnitudeMaxAbs,
		Hysteresis: HysteresisFixpoint,
		Workers:    1,
	}
}

func DefaultOperator() Operator {
	return Operator{
		Name:   OpCanny,
		Filter: DefaultFilterConfig(),
		Edge:   DefaultEdgeConfig(),
	}
}

// HalfWidth returns k = (KernelSize-1)/2.
func (c FilterConfig) HalfWidth() int {
	return (c.KernelSize - 1) / 2
}

// Validate checks the fields used by every kernel filter. The sigma is only
// checked when gaussian is set.
func (c FilterConfig) Validate(gaussian bool) error {
	if c.KernelSize <= 0 || c.KernelSize%2 == 0 {
		return fmt.Errorf("kernel size %d must be odd and positive: %w", c.KernelSize, ErrInvalidConfiguration)
	}
	if !gaussian {
		return nil
	}
	if c.Sigma <= 0 {
		return fmt.Errorf("sigma %g must be positive: %w", c.Sigma, ErrInvalidConfiguration)
	}
	switch c.Normalization {
	case "", NormalizeKernelSum, NormalizeAnalytic:
	default:
		return fmt.Errorf("unknown normalization %q: %w", c.Normalization, ErrInvalidConfiguration)
	}
	return nil
}

// Validate checks the magnitude mode and, when thresholds is set, the
// double-threshold pair.
func (c EdgeConfig) Validate(thresholds bool) error {
	switch c.Magnitude {
	case "", MagnitudeMaxAbs, MagnitudeEuclidean:
	default:
		return fmt.Errorf("unknown magnitude mode %q: %w", c.Magnitude, ErrInvalidConfiguration)
	}
	if !thresholds {
		return nil
	}
	if c.Low < 0 || c.High > 255 {
		return fmt.Errorf("thresholds %d/%d outside [0,255]: %w", c.Low, c.High, ErrInvalidConfiguration)
	}
	if c.Low >= c.High {
		return fmt.Errorf("low threshold %d must be below high threshold %d: %w", c.Low, c.High, ErrInvalidConfiguration)
	}
	switch c.Hysteresis {
	case "", HysteresisSinglePass, HysteresisFixpoint:
	default:
		return fmt.Errorf("unknown hysteresis mode %q: %w", c.Hysteresis, ErrInvalidConfiguration)
	}
	return nil
}

func (o Operator) Validate() error {
	switch o.Name {
	case OpMean:
		return o.Filter.Validate(false)
	case OpGauss:
		return o.Filter.Validate(true)
	case OpSobel:
		return o.Edge.Validate(false)
	case OpCanny:
		return o.Edge.Validate(true)
	default:
		return fmt.Errorf("unknown operator %q (want %s): %w", o.Name,
			strings.Join([]string{OpMean, OpGauss, OpSobel, OpCanny}, ", "), ErrInvalidConfiguration)
	}
}

// RegisterFlags binds the operator fields to command-line flags on fs,
// using the current values as defaults.
func (o *Operator) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&o.Name, "op", o.Name, "Operator: mean, gauss, sobel or canny")
	fs.IntVar(&o.Filter.KernelSize, "kernel", o.Filter.KernelSize, "Filter kernel size (odd)")
	fs.Float64Var(&o.Filter.Sigma, "sigma", o.Filter.Sigma, "Gaussian sigma")
	fs.Func("normalization", "Gaussian normalization: kernel-sum or analytic", func(s string) error {
		o.Filter.Normalization = Normalization(s)
		return nil
	})
	fs.IntVar(&o.Edge.Low, "low", o.Edge.Low, "Canny low threshold")
	fs.IntVar(&o.Edge.High, "high", o.Edge.High, "Canny high threshold")
	fs.Func("magnitude", "Gradient magnitude: maxabs or euclidean", func(s string) error {
		o.Edge.Magnitude = MagnitudeMode(s)
		return nil
	})
	fs.Func("hysteresis", "Canny hysteresis: single or fixpoint", func(s string) error {
		o.Edge.Hysteresis = HysteresisMode(s)
		return nil
	})
}

// SetWorkers sets the per-image worker count on both sub-configs.
func (o *Operator) SetWorkers(n int) {
	o.Filter.Workers = n
	o.Edge.Workers = n
}
