// Package tile partitions a raster into a grid of tiles with a halo of
// context pixels, so that a neighbourhood operator applied to each padded
// tile yields exactly the whole-image result on the tile core.
package tile

import (
	"fmt"

	"go-edge/pkg/raster"
)

// DefaultSize is the edge length of a core tile.
const DefaultSize = 256

// Tile describes one grid cell. Row/Col/Height/Width bound the core in
// raster coordinates; the Pad fields bound the core plus halo, clamped to
// the raster.
type Tile struct {
	ID        int `json:"id"`
	Row       int `json:"row"`
	Col       int `json:"col"`
	Height    int `json:"height"`
	Width     int `json:"width"`
	PadRow    int `json:"pad_row"`
	PadCol    int `json:"pad_col"`
	PadHeight int `json:"pad_height"`
	PadWidth  int `json:"pad_width"`
}

// OffsetRow is the core's first row inside the padded block.
func (t Tile) OffsetRow() int { return t.Row - t.PadRow }

// OffsetCol is the core's first column inside the padded block.
func (t Tile) OffsetCol() int { return t.Col - t.PadCol }

// Split covers a height x width raster with a row-major grid of tiles of
// size tileSize. A trailing strip thinner than halo+1 is merged into the
// strip before it, so every padded tile is large enough for a window of
// half-width halo.
func Split(height, width, tileSize, halo int) ([]Tile, error) {
	if height < 1 || width < 1 {
		return nil, fmt.Errorf("split %dx%d: %w", height, width, raster.ErrRegionTooSmall)
	}
	if halo < 0 || tileSize < halo+1 {
		return nil, fmt.Errorf("tile size %d for halo %d: %w", tileSize, halo, raster.ErrRegionTooSmall)
	}

	rows := strips(height, tileSize, halo)
	cols := strips(width, tileSize, halo)
	tiles := make([]Tile, 0, len(rows)*len(cols))
	for _, r := range rows {
		for _, c := range cols {
			pr0, pr1 := max(r[0]-halo, 0), min(r[1]+halo, height)
			pc0, pc1 := max(c[0]-halo, 0), min(c[1]+halo, width)
			tiles = append(tiles, Tile{
				ID:        len(tiles),
				Row:       r[0],
				Col:       c[0],
				Height:    r[1] - r[0],
				Width:     c[1] - c[0],
				PadRow:    pr0,
				PadCol:    pc0,
				PadHeight: pr1 - pr0,
				PadWidth:  pc1 - pc0,
			})
		}
	}
	return tiles, nil
}

// strips returns the [start, end) bounds along one axis.
func strips(n, size, halo int) [][2]int {
	var out [][2]int
	for start := 0; start < n; start += size {
		out = append(out, [2]int{start, min(start+size, n)})
	}
	if last := len(out) - 1; last > 0 && out[last][1]-out[last][0] < halo+1 {
		out[last-1][1] = out[last][1]
		out = out[:last]
	}
	return out
}

// Extract copies the padded region of t out of r.
func Extract(r *raster.Raster[uint8], t Tile) (*raster.Raster[uint8], error) {
	return r.ExtractBlock(t.PadRow, t.PadCol, t.PadRow+t.PadHeight, t.PadCol+t.PadWidth)
}

// Core crops a processed padded block down to the core of t.
func Core(processed *raster.Raster[uint8], t Tile) (*raster.Raster[uint8], error) {
	if processed.Height() != t.PadHeight || processed.Width() != t.PadWidth {
		return nil, fmt.Errorf("tile %d: block %dx%d, padded region %dx%d: %w",
			t.ID, processed.Height(), processed.Width(), t.PadHeight, t.PadWidth, raster.ErrRegionMismatch)
	}
	r0, c0 := t.OffsetRow(), t.OffsetCol()
	return processed.ExtractBlock(r0, c0, r0+t.Height, c0+t.Width)
}

// Place writes a core block into out at the position of t.
func Place(out *raster.Raster[uint8], t Tile, core *raster.Raster[uint8]) error {
	return out.WriteBlock(t.Row, t.Col, t.Row+t.Height, t.Col+t.Width, core)
}
