package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-edge/pkg/config"
	"go-edge/pkg/imageio"
	"go-edge/pkg/raster"
)

func writeInput(t *testing.T, dir string) {
	t.Helper()
	r, err := raster.New[uint8](30, 40, 1)
	require.NoError(t, err)
	for row := 0; row < 30; row++ {
		for col := 20; col < 40; col++ {
			require.NoError(t, r.Set(row, col, 0, 200))
		}
	}
	require.NoError(t, imageio.Save(filepath.Join(dir, "step.png"), r))
}

func TestRunModesAgree(t *testing.T) {
	input := t.TempDir()
	writeInput(t, input)

	for _, name := range []string{config.OpGauss, config.OpCanny} {
		outputs := map[string][]uint8{}
		for _, mode := range []string{modeSequential, modeTiled, modePipelined} {
			op := config.DefaultOperator()
			op.Name = name
			opts := options{
				input:    input,
				output:   filepath.Join(t.TempDir(), "out"),
				logs:     filepath.Join(t.TempDir(), "logs"),
				mode:     mode,
				workers:  3,
				tileSize: 9,
				channels: 1,
				timeout:  30 * time.Second,
				op:       op,
			}
			require.NoError(t, run(context.Background(), opts), "%s %s", name, mode)

			out, err := imageio.Load(filepath.Join(opts.output, "step_"+name+".png"), 1)
			require.NoError(t, err)
			outputs[mode] = out.Values()

			reports, err := os.ReadDir(opts.logs)
			require.NoError(t, err)
			assert.Len(t, reports, 1)
		}
		assert.Equal(t, outputs[modeSequential], outputs[modeTiled], name)
		assert.Equal(t, outputs[modeSequential], outputs[modePipelined], name)
	}
}

func TestRunCannyOutputIsDisplayable(t *testing.T) {
	input := t.TempDir()
	writeInput(t, input)
	opts := options{
		input: input, output: t.TempDir(), logs: t.TempDir(),
		mode: modeSequential, workers: 1, channels: 1, op: config.DefaultOperator(),
	}
	require.NoError(t, run(context.Background(), opts))
	out, err := imageio.Load(filepath.Join(opts.output, "step_canny.png"), 1)
	require.NoError(t, err)
	assert.Positive(t, out.Count(255))
	assert.Equal(t, out.Size(), out.Count(0)+out.Count(255))
}

func TestRunErrors(t *testing.T) {
	opts := options{input: t.TempDir(), output: t.TempDir(), logs: t.TempDir(), mode: modeSequential, channels: 1, op: config.DefaultOperator()}
	assert.Error(t, run(context.Background(), opts), "empty input directory")

	opts.mode = "batch"
	assert.ErrorIs(t, run(context.Background(), opts), config.ErrInvalidConfiguration)

	opts.mode = modeTiled
	opts.op.Name = "median"
	assert.ErrorIs(t, run(context.Background(), opts), config.ErrInvalidConfiguration)
}

func TestRunRejectsImageSmallerThanKernel(t *testing.T) {
	input := t.TempDir()
	r, err := raster.New[uint8](3, 3, 1)
	require.NoError(t, err)
	require.NoError(t, imageio.Save(filepath.Join(input, "tiny.png"), r))

	for _, mode := range []string{modeSequential, modeTiled, modePipelined} {
		op := config.DefaultOperator()
		op.Name = config.OpMean
		op.Filter.KernelSize = 5
		opts := options{
			input: input, output: t.TempDir(), logs: t.TempDir(),
			mode: mode, workers: 2, tileSize: 8, channels: 1,
			timeout: 30 * time.Second, op: op,
		}
		start := time.Now()
		assert.ErrorIs(t, run(context.Background(), opts), raster.ErrRegionTooSmall, mode)
		assert.Less(t, time.Since(start), 10*time.Second, mode)
	}
}
