// Command service runs the distributed pipeline over Redis Streams. One
// binary plays the coordinator, worker or assembler role, or all three.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/golang/glog"

	"go-edge/pkg/assembler"
	"go-edge/pkg/config"
	"go-edge/pkg/coordinator"
	"go-edge/pkg/imageio"
	"go-edge/pkg/processor"
	"go-edge/pkg/queue"
	"go-edge/pkg/tile"
)

func main() {
	op := config.DefaultOperator()
	var (
		redisAddr  = flag.String("redis", "localhost:6379", "Redis address")
		prefix     = flag.String("prefix", "edge", "Redis key prefix")
		inputDir   = flag.String("input", "/data/input", "Input directory")
		outputDir  = flag.String("output", "/data/output", "Output directory")
		numWorkers = flag.Int("workers", 10, "Number of worker goroutines")
		tileSize   = flag.Int("tile", tile.DefaultSize, "Tile size")
		channels   = flag.Int("channels", 1, "Channels to load: 1 (gray), 3 (RGB) or 4 (RGBA)")
		mode       = flag.String("mode", "all", "Mode: coordinator, worker, assembler, or all")
	)
	op.RegisterFlags(flag.CommandLine)
	flag.Parse()
	defer glog.Flush()

	hostname, _ := os.Hostname()
	serviceID := fmt.Sprintf("%s-%d", hostname, time.Now().Unix())

	glog.Infof("Starting edge detection service")
	glog.Infof("Mode: %s, Service ID: %s", *mode, serviceID)
	glog.Infof("Redis: %s, Workers: %d, Operator: %s", *redisAddr, *numWorkers, op.Name)

	ctx := context.Background()
	q, err := queue.NewRedis(ctx, *redisAddr, *prefix)
	if err != nil {
		glog.Exitf("Failed to connect to Redis: %v", err)
	}
	defer q.Close()

	if err := q.EnsureGroups(ctx); err != nil {
		glog.Errorf("Failed to ensure Redis groups: %v", err)
	}
	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		glog.Exitf("Failed to create output directory: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup
	switch *mode {
	case "coordinator":
		if err := runCoordinator(ctx, q, op, *inputDir, *outputDir, *tileSize, *channels); err != nil {
			glog.Exitf("Coordinator failed: %v", err)
		}

	case "worker":
		workerPool := processor.NewWorkerPool(q, *numWorkers, serviceID)
		wg.Add(1)
		go func() {
			defer wg.Done()
			workerPool.Start()
		}()
		<-sigChan
		workerPool.Stop()

	case "assembler":
		imageAssembler := assembler.NewAssembler(q, serviceID)
		wg.Add(1)
		go func() {
			defer wg.Done()
			imageAssembler.Start()
		}()
		<-sigChan
		imageAssembler.Stop()

	case "all":
		workerPool := processor.NewWorkerPool(q, *numWorkers, serviceID)
		wg.Add(1)
		go func() {
			defer wg.Done()
			workerPool.Start()
		}()

		imageAssembler := assembler.NewAssembler(q, serviceID)
		wg.Add(1)
		go func() {
			defer wg.Done()
			imageAssembler.Start()
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := runCoordinator(ctx, q, op, *inputDir, *outputDir, *tileSize, *channels); err != nil {
				glog.Errorf("Coordinator failed: %v", err)
			}
		}()

		<-sigChan
		glog.Info("Shutting down all components...")
		workerPool.Stop()
		imageAssembler.Stop()

	default:
		glog.Exitf("Invalid mode: %s. Use coordinator, worker, assembler, or all", *mode)
	}

	wg.Wait()
	glog.Info("Service shutdown complete")
}

func runCoordinator(ctx context.Context, q queue.Queue, op config.Operator, inputDir, outputDir string, tileSize, channels int) error {
	imagePaths, err := imageio.FindImages(inputDir, "_"+op.Name)
	if err != nil {
		return err
	}
	if len(imagePaths) == 0 {
		glog.Warningf("No images found in %s", inputDir)
		return nil
	}
	outputPaths := make([]string, len(imagePaths))
	for i, path := range imagePaths {
		outputPaths[i] = imageio.OutputPath(outputDir, path, op.Name)
	}

	glog.Infof("Coordinator: processing %d images", len(imagePaths))
	coord, err := coordinator.NewCoordinator(q, op, tileSize, channels)
	if err != nil {
		return err
	}

	startTime := time.Now()
	coord.FirstImageID = int(startTime.Unix()) * 1000
	if err := coord.ProcessImages(ctx, imagePaths, outputPaths); err != nil {
		return err
	}
	glog.Infof("Coordinator: all images queued in %.2fs", time.Since(startTime).Seconds())
	return nil
}
