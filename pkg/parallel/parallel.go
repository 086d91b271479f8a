// Package parallel splits row ranges across goroutines.
package parallel

import (
	"golang.org/x/sync/errgroup"
)

// Rows calls fn on contiguous bands covering [lo, hi). With workers <= 1 the
// whole range is handled on the calling goroutine. The first error returned
// by any band is returned.
func Rows(workers, lo, hi int, fn func(r0, r1 int) error) error {
	n := hi - lo
	if n <= 0 {
		return nil
	}
	if workers <= 1 || n == 1 {
		return fn(lo, hi)
	}
	workers = min(workers, n)
	band := (n + workers - 1) / workers

	var g errgroup.Group
	for start := lo; start < hi; start += band {
		r0, r1 := start, min(start+band, hi)
		g.Go(func() error {
			return fn(r0, r1)
		})
	}
	return g.Wait()
}
