// Package raster provides a dense height x width x channels buffer with
// bounds-checked element access and rectangular block copies.
package raster

import (
	"errors"
	"fmt"
)

var (
	ErrOutOfRange     = errors.New("raster: coordinate out of range")
	ErrRegionMismatch = errors.New("raster: region size mismatch")
	ErrRegionTooSmall = errors.New("raster: region too small")
)

// Number is the set of element types a Raster can hold.
type Number interface {
	~uint8 | ~uint16 | ~uint32 | ~int | ~int16 | ~int32 | ~int64 | ~float32 | ~float64
}

// Raster is a channel-planar image buffer. Each channel is stored as a
// row-major height x width plane.
type Raster[T Number] struct {
	height   int
	width    int
	channels int
	data     []T
}

// New allocates a zeroed raster.
func New[T Number](height, width, channels int) (*Raster[T], error) {
	if height < 1 || width < 1 || channels < 1 {
		return nil, fmt.Errorf("new %dx%dx%d: %w", height, width, channels, ErrRegionTooSmall)
	}
	return &Raster[T]{
		height:   height,
		width:    width,
		channels: channels,
		data:     make([]T, height*width*channels),
	}, nil
}

// FromValues builds a raster from a channel-planar copy of its elements, as
// returned by Values.
func FromValues[T Number](height, width, channels int, values []T) (*Raster[T], error) {
	r, err := New[T](height, width, channels)
	if err != nil {
		return nil, err
	}
	if len(values) != len(r.data) {
		return nil, fmt.Errorf("%d values for %dx%dx%d: %w", len(values), height, width, channels, ErrRegionMismatch)
	}
	copy(r.data, values)
	return r, nil
}

// SameShape allocates a zeroed raster with the dimensions of r.
func SameShape[T Number, S Number](r *Raster[S]) *Raster[T] {
	return &Raster[T]{
		height:   r.height,
		width:    r.width,
		channels: r.channels,
		data:     make([]T, len(r.data)),
	}
}

func (r *Raster[T]) Height() int   { return r.height }
func (r *Raster[T]) Width() int    { return r.width }
func (r *Raster[T]) Channels() int { return r.channels }
func (r *Raster[T]) Size() int     { return len(r.data) }

// Contains reports whether (row, col, ch) addresses an element of r.
func (r *Raster[T]) Contains(row, col, ch int) bool {
	return row >= 0 && row < r.height &&
		col >= 0 && col < r.width &&
		ch >= 0 && ch < r.channels
}

// SameDims reports whether r and o have identical height, width and channels.
func SameDims[T Number, S Number](r *Raster[T], o *Raster[S]) bool {
	return r.height == o.height && r.width == o.width && r.channels == o.channels
}

func (r *Raster[T]) index(row, col, ch int) int {
	return r.width*(ch*r.height+row) + col
}

// Get returns the element at (row, col, ch).
func (r *Raster[T]) Get(row, col, ch int) (T, error) {
	if !r.Contains(row, col, ch) {
		var zero T
		return zero, r.rangeError(row, col, ch)
	}
	return r.data[r.index(row, col, ch)], nil
}

// Set stores v at (row, col, ch).
func (r *Raster[T]) Set(row, col, ch int, v T) error {
	if !r.Contains(row, col, ch) {
		return r.rangeError(row, col, ch)
	}
	r.data[r.index(row, col, ch)] = v
	return nil
}

// Fill sets every element to v.
func (r *Raster[T]) Fill(v T) {
	for i := range r.data {
		r.data[i] = v
	}
}

// Values returns a copy of the elements in channel-planar order.
func (r *Raster[T]) Values() []T {
	out := make([]T, len(r.data))
	copy(out, r.data)
	return out
}

// Clone returns a deep copy of r.
func (r *Raster[T]) Clone() *Raster[T] {
	return &Raster[T]{
		height:   r.height,
		width:    r.width,
		channels: r.channels,
		data:     r.Values(),
	}
}

// Count returns the number of elements equal to v.
func (r *Raster[T]) Count(v T) int {
	n := 0
	for _, x := range r.data {
		if x == v {
			n++
		}
	}
	return n
}

func (r *Raster[T]) rangeError(row, col, ch int) error {
	return fmt.Errorf("(%d,%d,%d) in %dx%dx%d: %w", row, col, ch, r.height, r.width, r.channels, ErrOutOfRange)
}

// checkRegion validates [r0,r1) x [c0,c1) against the bounds of r.
func (r *Raster[T]) checkRegion(r0, c0, r1, c1 int) error {
	if r0 < 0 || c0 < 0 || r0 > r1 || c0 > c1 || r1 > r.height || c1 > r.width {
		return fmt.Errorf("region [%d,%d)x[%d,%d) in %dx%d: %w", r0, r1, c0, c1, r.height, r.width, ErrOutOfRange)
	}
	return nil
}

// ExtractBlock returns a copy of the region [r0,r1) x [c0,c1), all channels.
func (r *Raster[T]) ExtractBlock(r0, c0, r1, c1 int) (*Raster[T], error) {
	if err := r.checkRegion(r0, c0, r1, c1); err != nil {
		return nil, err
	}
	block, err := New[T](r1-r0, c1-c0, r.channels)
	if err != nil {
		return nil, fmt.Errorf("extract block: %w", err)
	}
	for ch := 0; ch < r.channels; ch++ {
		for row := r0; row < r1; row++ {
			src := r.index(row, c0, ch)
			dst := block.index(row-r0, 0, ch)
			copy(block.data[dst:dst+block.width], r.data[src:src+block.width])
		}
	}
	return block, nil
}

// WriteBlock copies block into the region [r0,r1) x [c0,c1) of r.
func (r *Raster[T]) WriteBlock(r0, c0, r1, c1 int, block *Raster[T]) error {
	if err := r.checkRegion(r0, c0, r1, c1); err != nil {
		return err
	}
	if block.height != r1-r0 || block.width != c1-c0 || block.channels != r.channels {
		return fmt.Errorf("block %dx%dx%d into %dx%dx%d: %w",
			block.height, block.width, block.channels, r1-r0, c1-c0, r.channels, ErrRegionMismatch)
	}
	for ch := 0; ch < r.channels; ch++ {
		for row := r0; row < r1; row++ {
			dst := r.index(row, c0, ch)
			src := block.index(row-r0, 0, ch)
			copy(r.data[dst:dst+block.width], block.data[src:src+block.width])
		}
	}
	return nil
}

// CloneInto copies the region [r0,r1) x [c0,c1) of r into the same
// coordinates of other.
func (r *Raster[T]) CloneInto(r0, c0, r1, c1 int, other *Raster[T]) error {
	if err := r.checkRegion(r0, c0, r1, c1); err != nil {
		return err
	}
	if r1 > other.height || c1 > other.width || other.channels != r.channels {
		return fmt.Errorf("clone [%d,%d)x[%d,%d) into %dx%dx%d: %w",
			r0, r1, c0, c1, other.height, other.width, other.channels, ErrRegionMismatch)
	}
	if r == other {
		return nil
	}
	for ch := 0; ch < r.channels; ch++ {
		for row := r0; row < r1; row++ {
			src := r.index(row, c0, ch)
			dst := other.index(row, c0, ch)
			copy(other.data[dst:dst+c1-c0], r.data[src:src+c1-c0])
		}
	}
	return nil
}
