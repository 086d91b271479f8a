// Command processor applies one operator to every image of a directory on
// the local machine: on whole images, tile by tile, or through an in-process
// coordinator, worker pool and assembler.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang/glog"

	"go-edge/pkg/assembler"
	"go-edge/pkg/common"
	"go-edge/pkg/config"
	"go-edge/pkg/coordinator"
	"go-edge/pkg/imageio"
	"go-edge/pkg/pipeline"
	"go-edge/pkg/processor"
	"go-edge/pkg/queue"
	"go-edge/pkg/raster"
	"go-edge/pkg/stats"
	"go-edge/pkg/tile"
)

const (
	modeSequential = "sequential"
	modeTiled      = "tiled"
	modePipelined  = "pipelined"
)

type options struct {
	input    string
	output   string
	logs     string
	mode     string
	workers  int
	tileSize int
	channels int
	timeout  time.Duration
	op       config.Operator
}

func main() {
	opts := options{op: config.DefaultOperator()}
	flag.StringVar(&opts.input, "input", "/input", "Input directory path")
	flag.StringVar(&opts.output, "output", "/data/output", "Output directory path")
	flag.StringVar(&opts.logs, "logs", "logs", "Directory for the performance report")
	flag.StringVar(&opts.mode, "mode", modeSequential, "Mode: sequential, tiled or pipelined")
	flag.IntVar(&opts.workers, "workers", 1, "Row bands per image (sequential), concurrent tiles (tiled) or pool workers (pipelined)")
	flag.DurationVar(&opts.timeout, "timeout", 10*time.Minute, "Maximum wait for pipelined assembly")
	flag.IntVar(&opts.tileSize, "tile", tile.DefaultSize, "Tile size for tiled mode")
	flag.IntVar(&opts.channels, "channels", 1, "Channels to load: 1 (gray), 3 (RGB) or 4 (RGBA)")
	opts.op.RegisterFlags(flag.CommandLine)
	flag.Parse()
	defer glog.Flush()

	if err := run(context.Background(), opts); err != nil {
		glog.Exitf("processor: %v", err)
	}
}

func run(ctx context.Context, opts options) error {
	startTime := time.Now()
	switch opts.mode {
	case modeSequential, modeTiled, modePipelined:
	default:
		return fmt.Errorf("invalid mode %q: %w", opts.mode, config.ErrInvalidConfiguration)
	}
	if opts.mode == modeSequential {
		opts.op.SetWorkers(opts.workers)
	}
	stage, err := pipeline.New(opts.op)
	if err != nil {
		return err
	}

	glog.Infof("=== Starting %s %s processing ===", opts.mode, stage.Name())
	glog.Infof("Input path: %s, output path: %s, workers: %d", opts.input, opts.output, opts.workers)

	if err := os.MkdirAll(opts.output, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	inputPaths, err := imageio.FindImages(opts.input, "_"+stage.Name())
	if err != nil {
		return err
	}
	if len(inputPaths) == 0 {
		return fmt.Errorf("no images found in %s", opts.input)
	}
	outputPaths := make([]string, len(inputPaths))
	for i, path := range inputPaths {
		outputPaths[i] = imageio.OutputPath(opts.output, path, stage.Name())
	}
	glog.Infof("Found %d images to process", len(inputPaths))

	var totalProcessTime *float64
	if opts.mode == modePipelined {
		if err := runPipelined(ctx, opts, inputPaths, outputPaths); err != nil {
			return err
		}
	} else {
		total := 0.0
		for i, inputPath := range inputPaths {
			elapsed, err := processImage(ctx, opts, stage, inputPath, outputPaths[i])
			if err != nil {
				return fmt.Errorf("image %s: %w", filepath.Base(inputPath), err)
			}
			total += elapsed
		}
		totalProcessTime = &total
	}

	totalTime := time.Since(startTime).Seconds()
	result := stats.PerformanceData{
		Mode:             opts.mode,
		Operator:         opts.op,
		ImagesProcessed:  len(inputPaths),
		TotalTime:        totalTime,
		AverageTime:      totalTime / float64(len(inputPaths)),
		InputPaths:       inputPaths,
		OutputPaths:      outputPaths,
		Timestamp:        startTime,
		TotalProcessTime: totalProcessTime,
		Workers:          &opts.workers,
	}
	if opts.mode != modeSequential {
		result.TileSize = &opts.tileSize
	}
	report, err := stats.WritePerformanceResults(opts.logs, opts.mode+"_", []stats.PerformanceData{result})
	if err != nil {
		glog.Warningf("Failed to write performance results: %v", err)
	} else {
		glog.Infof("Performance report written to %s", report)
	}

	glog.Infof("=== Processing complete in %.2fs ===", totalTime)
	return nil
}

// processImage runs stage on one file and returns the time spent inside the
// operator.
func processImage(ctx context.Context, opts options, stage pipeline.Stage, inputPath, outputPath string) (float64, error) {
	img, err := imageio.Load(inputPath, opts.channels)
	if err != nil {
		return 0, err
	}

	startTime := time.Now()
	var out *raster.Raster[uint8]
	if opts.mode == modeTiled {
		out, err = pipeline.RunTiled(ctx, stage, img, opts.tileSize, opts.workers)
	} else {
		out, err = pipeline.Run(stage, img)
	}
	if err != nil {
		return 0, err
	}
	elapsed := time.Since(startTime).Seconds()

	if opts.op.Name == config.OpCanny {
		out = imageio.ExpandBinary(out)
	}
	if err := imageio.Save(outputPath, out); err != nil {
		return 0, err
	}
	glog.Infof("  %s (%dx%d) %.2fs", filepath.Base(inputPath), img.Width(), img.Height(), elapsed)
	return elapsed, nil
}

// runPipelined queues every image on an in-memory queue and waits until the
// assembler has written all of them.
func runPipelined(ctx context.Context, opts options, inputPaths, outputPaths []string) error {
	q := queue.NewMemory()
	defer q.Close()

	coord, err := coordinator.NewCoordinator(q, opts.op, opts.tileSize, opts.channels)
	if err != nil {
		return err
	}
	workerPool := processor.NewWorkerPool(q, opts.workers, "local")
	workerPool.ReadBlock = 100 * time.Millisecond
	imageAssembler := assembler.NewAssembler(q, "local")
	imageAssembler.ReadBlock = 100 * time.Millisecond
	completed := make(chan int, len(inputPaths))
	imageAssembler.OnComplete = func(info *common.ImageInfo, _ *raster.Raster[uint8]) {
		completed <- info.ID
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		workerPool.Start()
	}()
	go func() {
		defer wg.Done()
		imageAssembler.Start()
	}()
	defer func() {
		workerPool.Stop()
		imageAssembler.Stop()
		wg.Wait()
	}()

	if err := coord.ProcessImages(ctx, inputPaths, outputPaths); err != nil {
		return err
	}

	timeout := time.NewTimer(opts.timeout)
	defer timeout.Stop()
	for remaining := len(inputPaths); remaining > 0; remaining-- {
		select {
		case id := <-completed:
			glog.V(1).Infof("Image %d assembled, %d remaining", id, remaining-1)
		case <-timeout.C:
			return fmt.Errorf("%d images not assembled after %s", remaining, opts.timeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
