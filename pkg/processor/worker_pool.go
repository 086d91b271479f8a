// Package processor runs the worker side of the distributed pipeline: it
// consumes tile jobs, applies the job's operator to the padded tile and
// publishes the cropped core.
package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"go-edge/pkg/common"
	"go-edge/pkg/config"
	"go-edge/pkg/pipeline"
	"go-edge/pkg/queue"
	"go-edge/pkg/raster"
)

var ErrInvalidJob = errors.New("invalid job")

type WorkerPool struct {
	queue          queue.Queue
	numWorkers     int
	workerID       string
	tilesProcessed atomic.Int64
	ctx            context.Context
	cancel         context.CancelFunc

	// ReadBlock bounds each blocking read so workers notice Stop.
	ReadBlock time.Duration
	// RetryInterval is how often stale jobs are claimed; jobs pending for
	// MinIdle are considered abandoned.
	RetryInterval time.Duration
	MinIdle       time.Duration
}

func NewWorkerPool(q queue.Queue, numWorkers int, workerID string) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		queue:         q,
		numWorkers:    max(numWorkers, 1),
		workerID:      workerID,
		ctx:           ctx,
		cancel:        cancel,
		ReadBlock:     5 * time.Second,
		RetryInterval: 30 * time.Second,
		MinIdle:       30 * time.Second,
	}
}

// Start runs the workers and the retry monitor until Stop is called.
func (wp *WorkerPool) Start() {
	var wg sync.WaitGroup
	for i := 0; i < wp.numWorkers; i++ {
		wg.Add(1)
		go wp.worker(i, &wg)
	}
	wg.Add(1)
	go wp.retryMonitor(&wg)

	glog.Infof("WorkerPool: started %d workers", wp.numWorkers)
	wg.Wait()
}

func (wp *WorkerPool) Stop() {
	glog.Info("WorkerPool: shutting down")
	wp.cancel()
}

// TilesProcessed returns the number of jobs completed and acked.
func (wp *WorkerPool) TilesProcessed() int64 {
	return wp.tilesProcessed.Load()
}

func (wp *WorkerPool) worker(id int, wg *sync.WaitGroup) {
	defer wg.Done()

	consumer := fmt.Sprintf("%s-worker-%d", wp.workerID, id)
	glog.V(1).Infof("Worker %d started as consumer %s", id, consumer)

	for {
		select {
		case <-wp.ctx.Done():
			glog.V(1).Infof("Worker %d shutting down", id)
			return
		default:
		}

		msgID, job, err := wp.queue.ReadJob(wp.ctx, consumer, wp.ReadBlock)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) {
				return
			}
			if wp.ctx.Err() == nil {
				glog.Warningf("Worker %d read error: %v", id, err)
			}
			if msgID != "" {
				// undecodable payloads never succeed
				_ = wp.queue.AckJob(wp.ctx, msgID)
			}
			continue
		}
		if job == nil {
			continue
		}
		wp.handle(id, msgID, job)
	}
}

// handle processes one job and acks it on success. Failed jobs stay
// pending so the retry monitor can hand them to another consumer.
func (wp *WorkerPool) handle(worker int, msgID string, job *common.JobMessage) {
	// a job already taken finishes even when Stop is called
	ctx := context.WithoutCancel(wp.ctx)
	result, err := ProcessJob(job, wp.workerID)
	if errors.Is(err, ErrInvalidJob) {
		glog.Errorf("Worker %d: dropping job %s: %v", worker, msgID, err)
		_ = wp.queue.AckJob(ctx, msgID)
		return
	}
	if err == nil {
		_, err = wp.queue.AddResult(ctx, result)
	}
	if err != nil {
		glog.Errorf("Worker %d failed to process job %s: %v", worker, msgID, err)
		return
	}
	if err := wp.queue.AckJob(ctx, msgID); err != nil {
		glog.Warningf("Worker %d failed to ack job %s: %v", worker, msgID, err)
	}
	if count := wp.tilesProcessed.Add(1); count%100 == 0 {
		glog.Infof("WorkerPool: processed %d tiles total", count)
	}
}

// ProcessJob applies the job's operator to its padded tile and returns the
// result carrying the tile core.
func ProcessJob(job *common.JobMessage, workerID string) (*common.ResultMessage, error) {
	startTime := time.Now()

	if job.ImageTile == nil || (job.Type != common.JobTypeTile && job.Type != common.JobTypeImage) {
		return nil, fmt.Errorf("job type %q: %w", job.Type, ErrInvalidJob)
	}
	tile := job.ImageTile
	stage, err := pipeline.New(job.Operator)
	if err != nil {
		return nil, fmt.Errorf("image %d tile %d: %w: %w", tile.ImageID, tile.Tile.ID, ErrInvalidJob, err)
	}
	padded, err := tile.Raster()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidJob, err)
	}
	core, err := pipeline.ProcessPadded(stage, padded, tile.Tile)
	if err != nil {
		if deterministic(err) {
			return nil, fmt.Errorf("image %d: %w: %w", tile.ImageID, ErrInvalidJob, err)
		}
		return nil, fmt.Errorf("image %d: %w", tile.ImageID, err)
	}

	return &common.ResultMessage{
		ProcessedTile: common.NewProcessedImageTile(tile.ImageID, tile.Tile, core),
		WorkerID:      workerID,
		ProcessTime:   time.Since(startTime).Seconds(),
	}, nil
}

// deterministic reports whether err would recur on every retry of the job.
func deterministic(err error) bool {
	return errors.Is(err, raster.ErrRegionTooSmall) ||
		errors.Is(err, raster.ErrRegionMismatch) ||
		errors.Is(err, config.ErrInvalidConfiguration)
}

func (wp *WorkerPool) retryMonitor(wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(wp.RetryInterval)
	defer ticker.Stop()

	consumer := fmt.Sprintf("%s-retry-monitor", wp.workerID)
	for {
		select {
		case <-wp.ctx.Done():
			return
		case <-ticker.C:
			claimed, err := wp.queue.ClaimStaleJobs(wp.ctx, consumer, wp.MinIdle, 50)
			if err != nil {
				if wp.ctx.Err() == nil {
					glog.Warningf("Failed to claim stale jobs: %v", err)
				}
				continue
			}
			if len(claimed) > 0 {
				glog.Infof("Claimed %d stale jobs for retry", len(claimed))
			}
			for _, c := range claimed {
				wp.handle(-1, c.ID, c.Job)
			}
		}
	}
}
