// Package assembler collects processed tiles, stitches them into the output
// raster of each image and saves the image once every tile has arrived.
package assembler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"

	"go-edge/pkg/common"
	"go-edge/pkg/config"
	"go-edge/pkg/imageio"
	"go-edge/pkg/queue"
	"go-edge/pkg/raster"
	"go-edge/pkg/tile"
)

type Assembler struct {
	queue       queue.Queue
	assemblerID string
	imageMap    map[int]*ImageAssembly
	mutex       sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc

	ReadBlock          time.Duration
	CheckpointInterval time.Duration
	// OnComplete, when set, is called with every fully assembled image.
	OnComplete func(info *common.ImageInfo, out *raster.Raster[uint8])
}

type ImageAssembly struct {
	info           *common.ImageInfo
	output         *raster.Raster[uint8]
	tilesReceived  int
	processedTiles map[int]bool
	completed      bool
	mutex          sync.Mutex
}

func NewAssembler(q queue.Queue, assemblerID string) *Assembler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Assembler{
		queue:              q,
		assemblerID:        assemblerID,
		imageMap:           make(map[int]*ImageAssembly),
		ctx:                ctx,
		cancel:             cancel,
		ReadBlock:          5 * time.Second,
		CheckpointInterval: 10 * time.Second,
	}
}

// Start consumes results until Stop is called.
func (a *Assembler) Start() {
	var wg sync.WaitGroup

	wg.Add(1)
	go a.resultProcessor(&wg)

	wg.Add(1)
	go a.checkpointMonitor(&wg)

	glog.Infof("Assembler %s started", a.assemblerID)
	wg.Wait()
}

func (a *Assembler) Stop() {
	glog.Info("Assembler: shutting down")
	a.cancel()
}

func (a *Assembler) resultProcessor(wg *sync.WaitGroup) {
	defer wg.Done()

	consumer := fmt.Sprintf("assembler-%s", a.assemblerID)
	for {
		select {
		case <-a.ctx.Done():
			return
		default:
		}

		msgID, result, err := a.queue.ReadResult(a.ctx, consumer, a.ReadBlock)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) {
				return
			}
			if a.ctx.Err() == nil {
				glog.Warningf("Assembler read error: %v", err)
			}
			continue
		}
		if result == nil {
			continue
		}
		if result.ProcessedTile == nil {
			_ = a.queue.AckResult(a.ctx, msgID)
			continue
		}

		if err := a.HandleResult(a.ctx, result.ProcessedTile); err != nil {
			glog.Errorf("Failed to assemble tile: %v", err)
		} else {
			_ = a.queue.AckResult(context.WithoutCancel(a.ctx), msgID)
		}
	}
}

// HandleResult writes one processed tile into its image. Repeated tiles are
// ignored. The image is saved and marked completed when its last tile
// arrives, after which its raster is released.
func (a *Assembler) HandleResult(ctx context.Context, pt *common.ProcessedImageTile) error {
	assembly, err := a.getOrCreateAssembly(ctx, pt.ImageID)
	if err != nil {
		return fmt.Errorf("failed to get assembly: %w", err)
	}
	if assembly == nil {
		glog.V(1).Infof("Image %d already completed elsewhere, dropping tile %d", pt.ImageID, pt.Tile.ID)
		return nil
	}

	marked, err := a.addTile(ctx, assembly, pt)
	if err != nil || !marked {
		return err
	}
	// the queue now answers IsImageCompleted for late duplicates
	a.mutex.Lock()
	delete(a.imageMap, pt.ImageID)
	a.mutex.Unlock()
	return nil
}

// addTile places pt and finishes the image on its last tile. It reports
// whether the image was completed and marked so on the queue.
func (a *Assembler) addTile(ctx context.Context, assembly *ImageAssembly, pt *common.ProcessedImageTile) (bool, error) {
	assembly.mutex.Lock()
	defer assembly.mutex.Unlock()

	if assembly.completed {
		return false, nil
	}
	if assembly.processedTiles[pt.Tile.ID] {
		glog.V(1).Infof("Tile %d for image %d already processed", pt.Tile.ID, pt.ImageID)
		return false, nil
	}

	core, err := pt.Raster()
	if err != nil {
		return false, err
	}
	if err := tile.Place(assembly.output, pt.Tile, core); err != nil {
		return false, fmt.Errorf("image %d tile %d: %w", pt.ImageID, pt.Tile.ID, err)
	}
	assembly.processedTiles[pt.Tile.ID] = true
	assembly.tilesReceived++

	if assembly.tilesReceived < assembly.info.ExpectedTiles {
		if assembly.tilesReceived%10 == 0 {
			glog.V(1).Infof("Image %d progress: %d/%d tiles",
				pt.ImageID, assembly.tilesReceived, assembly.info.ExpectedTiles)
		}
		return false, nil
	}

	if err := a.saveImage(assembly); err != nil {
		return false, fmt.Errorf("failed to save image: %w", err)
	}
	assembly.completed = true
	marked := true
	if err := a.queue.MarkImageCompleted(ctx, pt.ImageID); err != nil {
		glog.Warningf("Failed to mark image %d as completed: %v", pt.ImageID, err)
		marked = false
	}
	if a.OnComplete != nil {
		a.OnComplete(assembly.info, assembly.output)
	}
	glog.Infof("Image %d assembled: %d tiles in %.2fs",
		pt.ImageID, assembly.tilesReceived, time.Since(assembly.info.StartTime).Seconds())

	// an unmarked image keeps only its completed flag
	assembly.output = nil
	assembly.processedTiles = nil
	return marked, nil
}

// getOrCreateAssembly returns nil when the image was already completed by
// another assembler.
func (a *Assembler) getOrCreateAssembly(ctx context.Context, imageID int) (*ImageAssembly, error) {
	a.mutex.RLock()
	if assembly, exists := a.imageMap[imageID]; exists {
		a.mutex.RUnlock()
		return assembly, nil
	}
	a.mutex.RUnlock()

	a.mutex.Lock()
	defer a.mutex.Unlock()

	if assembly, exists := a.imageMap[imageID]; exists {
		return assembly, nil
	}

	done, err := a.queue.IsImageCompleted(ctx, imageID)
	if err != nil {
		return nil, err
	}
	if done {
		return nil, nil
	}
	info, err := a.queue.GetImageInfo(ctx, imageID)
	if err != nil {
		return nil, err
	}
	output, err := raster.New[uint8](info.Height, info.Width, info.Channels)
	if err != nil {
		return nil, fmt.Errorf("image %d: %w", imageID, err)
	}

	assembly := &ImageAssembly{
		info:           info,
		output:         output,
		processedTiles: make(map[int]bool),
	}
	a.imageMap[imageID] = assembly

	glog.V(1).Infof("Created assembly for image %d (%dx%d, %d tiles expected)",
		imageID, info.Width, info.Height, info.ExpectedTiles)
	return assembly, nil
}

// saveImage writes the assembled output. Binary edge maps are stretched to
// 0/255.
func (a *Assembler) saveImage(assembly *ImageAssembly) error {
	if assembly.info.OutputPath == "" {
		return nil
	}
	out := assembly.output
	if assembly.info.Operator.Name == config.OpCanny {
		out = imageio.ExpandBinary(out)
	}
	return imageio.Save(assembly.info.OutputPath, out)
}

// Active returns the number of images held in memory.
func (a *Assembler) Active() int {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return len(a.imageMap)
}

// Incomplete returns the number of images still waiting for tiles.
func (a *Assembler) Incomplete() int {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	n := 0
	for _, assembly := range a.imageMap {
		assembly.mutex.Lock()
		if !assembly.completed {
			n++
		}
		assembly.mutex.Unlock()
	}
	return n
}

func (a *Assembler) checkpointMonitor(wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(a.CheckpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.mutex.RLock()
			active := len(a.imageMap)
			incomplete := 0
			for _, assembly := range a.imageMap {
				assembly.mutex.Lock()
				if !assembly.completed {
					incomplete++
					glog.Infof("Image %d progress: %d/%d tiles received",
						assembly.info.ID, assembly.tilesReceived, assembly.info.ExpectedTiles)
				}
				assembly.mutex.Unlock()
			}
			a.mutex.RUnlock()

			if active > 0 {
				glog.Infof("Assembler status: %d active images, %d incomplete", active, incomplete)
			}
		}
	}
}
