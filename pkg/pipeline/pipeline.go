// Package pipeline builds image operators from configuration and runs them
// either on a whole raster or tile by tile.
package pipeline

import (
	"context"
	"fmt"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"go-edge/pkg/config"
	"go-edge/pkg/edge"
	"go-edge/pkg/filter"
	"go-edge/pkg/raster"
	"go-edge/pkg/tile"
)

// Stage is a configured operator.
type Stage interface {
	Name() string
	// Halo is the number of context pixels a tile needs on each side for
	// its core to match the whole-image result.
	Halo() int
	// Tileable reports whether the operator only looks at a bounded
	// neighbourhood of each pixel.
	Tileable() bool
	// MinSize is the smallest height and width the operator accepts.
	MinSize() int
	Process(in, out *raster.Raster[uint8]) error
}

type processor interface {
	Process(in, out *raster.Raster[uint8]) error
}

type stage struct {
	name     string
	halo     int
	tileable bool
	minSize  int
	proc     processor
}

func (s *stage) Name() string   { return s.name }
func (s *stage) Halo() int      { return s.halo }
func (s *stage) Tileable() bool { return s.tileable }
func (s *stage) MinSize() int   { return s.minSize }

func (s *stage) Process(in, out *raster.Raster[uint8]) error {
	return s.proc.Process(in, out)
}

// New initializes the operator named by op.
func New(op config.Operator) (Stage, error) {
	if err := op.Validate(); err != nil {
		return nil, err
	}
	switch op.Name {
	case config.OpMean:
		f := &filter.Mean{}
		if err := f.Init(op.Filter); err != nil {
			return nil, err
		}
		return &stage{name: op.Name, halo: op.Filter.HalfWidth(), tileable: true, minSize: op.Filter.KernelSize, proc: f}, nil
	case config.OpGauss:
		f := &filter.Gauss{}
		if err := f.Init(op.Filter); err != nil {
			return nil, err
		}
		return &stage{name: op.Name, halo: op.Filter.HalfWidth(), tileable: true, minSize: op.Filter.KernelSize, proc: f}, nil
	case config.OpSobel:
		e := &edge.Sobel{}
		if err := e.Init(op.Edge); err != nil {
			return nil, err
		}
		return &stage{name: op.Name, halo: 1, tileable: true, minSize: 1, proc: e}, nil
	case config.OpCanny:
		// hysteresis can link pixels across the whole image
		e := &edge.Canny{}
		if err := e.Init(op.Edge); err != nil {
			return nil, err
		}
		return &stage{name: op.Name, halo: 1, tileable: false, minSize: 1, proc: e}, nil
	}
	return nil, fmt.Errorf("operator %q: %w", op.Name, config.ErrInvalidConfiguration)
}

// Run processes the whole of in and returns a new raster.
func Run(s Stage, in *raster.Raster[uint8]) (*raster.Raster[uint8], error) {
	out := raster.SameShape[uint8](in)
	if err := s.Process(in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// RunTiled splits in into haloed tiles of size tileSize, processes up to
// workers tiles at a time and stitches the cores together. Stages that are
// not tileable run on the whole raster.
func RunTiled(ctx context.Context, s Stage, in *raster.Raster[uint8], tileSize, workers int) (*raster.Raster[uint8], error) {
	if !s.Tileable() {
		glog.V(1).Infof("pipeline: %s is not tileable, processing whole raster", s.Name())
		return Run(s, in)
	}
	tiles, err := tile.Split(in.Height(), in.Width(), tileSize, s.Halo())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Name(), err)
	}
	glog.V(1).Infof("pipeline: %s over %d tiles of %d, %d workers", s.Name(), len(tiles), tileSize, workers)

	out := raster.SameShape[uint8](in)
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for _, t := range tiles {
		t := t
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			core, err := ProcessTile(s, in, t)
			if err != nil {
				return err
			}
			// tile cores are disjoint
			return tile.Place(out, t, core)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ProcessTile runs s on the padded region of t and returns the core.
func ProcessTile(s Stage, in *raster.Raster[uint8], t tile.Tile) (*raster.Raster[uint8], error) {
	padded, err := tile.Extract(in, t)
	if err != nil {
		return nil, fmt.Errorf("tile %d: %w", t.ID, err)
	}
	return ProcessPadded(s, padded, t)
}

// ProcessPadded runs s on an already extracted padded block of t and
// returns the core.
func ProcessPadded(s Stage, padded *raster.Raster[uint8], t tile.Tile) (*raster.Raster[uint8], error) {
	processed, err := Run(s, padded)
	if err != nil {
		return nil, fmt.Errorf("tile %d: %w", t.ID, err)
	}
	return tile.Core(processed, t)
}
