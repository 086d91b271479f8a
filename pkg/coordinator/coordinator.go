// Package coordinator loads images, partitions them into haloed tiles and
// queues one job per tile.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"go-edge/pkg/common"
	"go-edge/pkg/config"
	"go-edge/pkg/imageio"
	"go-edge/pkg/pipeline"
	"go-edge/pkg/queue"
	"go-edge/pkg/raster"
	"go-edge/pkg/tile"
)

type Coordinator struct {
	queue    queue.Queue
	op       config.Operator
	stage    pipeline.Stage
	tileSize int
	channels int

	// FirstImageID offsets the ids assigned by ProcessImages so that
	// separate runs sharing a queue do not collide.
	FirstImageID int
}

// NewCoordinator validates op and prepares a coordinator that loads images
// with the given number of channels.
func NewCoordinator(q queue.Queue, op config.Operator, tileSize, channels int) (*Coordinator, error) {
	stage, err := pipeline.New(op)
	if err != nil {
		return nil, err
	}
	return &Coordinator{
		queue:    q,
		op:       op,
		stage:    stage,
		tileSize: tileSize,
		channels: channels,
	}, nil
}

func (c *Coordinator) ProcessImage(ctx context.Context, imageID int, inputPath, outputPath string) error {
	glog.Infof("Coordinator: processing image %d from %s", imageID, inputPath)
	startTime := time.Now()

	img, err := imageio.Load(inputPath, c.channels)
	if err != nil {
		return fmt.Errorf("failed to load image: %w", err)
	}
	loadTime := time.Now()

	n, err := c.submit(ctx, imageID, img, inputPath, outputPath, startTime, loadTime)
	if err != nil {
		return err
	}
	glog.Infof("Coordinator: queued %d tiles for image %d in %.2fs", n, imageID, time.Since(startTime).Seconds())
	return nil
}

// SubmitRaster queues an in-memory raster as image imageID and returns the
// number of tiles queued.
func (c *Coordinator) SubmitRaster(ctx context.Context, imageID int, img *raster.Raster[uint8], outputPath string) (int, error) {
	now := time.Now()
	return c.submit(ctx, imageID, img, "", outputPath, now, now)
}

func (c *Coordinator) submit(ctx context.Context, imageID int, img *raster.Raster[uint8], inputPath, outputPath string, startTime, loadTime time.Time) (int, error) {
	if size := c.stage.MinSize(); img.Height() < size || img.Width() < size {
		return 0, fmt.Errorf("image %d is %dx%d, %s needs at least %dx%d: %w",
			imageID, img.Width(), img.Height(), c.stage.Name(), size, size, raster.ErrRegionTooSmall)
	}
	tiles, jobType, err := c.partition(img)
	if err != nil {
		return 0, fmt.Errorf("failed to partition image %d: %w", imageID, err)
	}

	info := &common.ImageInfo{
		ID:            imageID,
		InputPath:     inputPath,
		OutputPath:    outputPath,
		Width:         img.Width(),
		Height:        img.Height(),
		Channels:      img.Channels(),
		ExpectedTiles: len(tiles),
		Operator:      c.op,
		LoadTime:      loadTime,
		StartTime:     startTime,
	}
	if err := c.queue.StoreImageInfo(ctx, info); err != nil {
		return 0, fmt.Errorf("failed to store image info: %w", err)
	}
	glog.V(1).Infof("Coordinator: image %d (%dx%d) will generate %d %s jobs", imageID, img.Width(), img.Height(), len(tiles), jobType)

	for _, t := range tiles {
		padded, err := tile.Extract(img, t)
		if err != nil {
			return 0, fmt.Errorf("failed to extract tile %d: %w", t.ID, err)
		}
		job := &common.JobMessage{
			Type:      jobType,
			Operator:  c.op,
			ImageTile: common.NewImageTile(imageID, t, padded),
		}
		if _, err := c.queue.AddJob(ctx, job); err != nil {
			return 0, fmt.Errorf("failed to queue tile %d: %w", t.ID, err)
		}
	}
	return len(tiles), nil
}

// partition splits img with the stage halo, or returns a single whole-image
// tile when the stage cannot be tiled.
func (c *Coordinator) partition(img *raster.Raster[uint8]) ([]tile.Tile, string, error) {
	if !c.stage.Tileable() {
		return []tile.Tile{common.WholeImage(img.Height(), img.Width())}, common.JobTypeImage, nil
	}
	tiles, err := tile.Split(img.Height(), img.Width(), c.tileSize, c.stage.Halo())
	return tiles, common.JobTypeTile, err
}

// ProcessImages queues every image concurrently. Image i gets id
// FirstImageID+i and is written to outputPaths[i].
func (c *Coordinator) ProcessImages(ctx context.Context, imagePaths, outputPaths []string) error {
	if len(imagePaths) != len(outputPaths) {
		return fmt.Errorf("%d inputs for %d outputs", len(imagePaths), len(outputPaths))
	}
	g, ctx := errgroup.WithContext(ctx)
	for i, inputPath := range imagePaths {
		i, inputPath := i, inputPath
		g.Go(func() error {
			id := c.FirstImageID + i
			if err := c.ProcessImage(ctx, id, inputPath, outputPaths[i]); err != nil {
				return fmt.Errorf("image %d: %w", id, err)
			}
			return nil
		})
	}
	return g.Wait()
}
