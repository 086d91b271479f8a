// Package queue carries tile jobs from the coordinator to the workers and
// tile results from the workers to the assembler, together with per-image
// metadata.
package queue

import (
	"context"
	"errors"
	"time"

	"go-edge/pkg/common"
)

const (
	WorkersGroup    = "workers"
	AssemblersGroup = "assemblers"
)

var (
	ErrImageNotFound = errors.New("queue: image info not found")
	ErrClosed        = errors.New("queue: closed")
)

// ClaimedJob is a pending job taken over from an idle consumer.
type ClaimedJob struct {
	ID  string
	Job *common.JobMessage
}

// Queue is a pair of consumer-group streams plus an image metadata store.
// Read calls block for at most the given duration and return a nil message
// with a nil error when nothing arrived. Messages stay pending until acked.
type Queue interface {
	EnsureGroups(ctx context.Context) error

	AddJob(ctx context.Context, job *common.JobMessage) (string, error)
	ReadJob(ctx context.Context, consumer string, block time.Duration) (string, *common.JobMessage, error)
	AckJob(ctx context.Context, id string) error

	AddResult(ctx context.Context, res *common.ResultMessage) (string, error)
	ReadResult(ctx context.Context, consumer string, block time.Duration) (string, *common.ResultMessage, error)
	AckResult(ctx context.Context, id string) error

	StoreImageInfo(ctx context.Context, info *common.ImageInfo) error
	GetImageInfo(ctx context.Context, imageID int) (*common.ImageInfo, error)
	MarkImageCompleted(ctx context.Context, imageID int) error
	IsImageCompleted(ctx context.Context, imageID int) (bool, error)

	// ClaimStaleJobs reassigns to consumer up to count jobs that have been
	// pending for at least minIdle.
	ClaimStaleJobs(ctx context.Context, consumer string, minIdle time.Duration, count int) ([]ClaimedJob, error)

	Close() error
}
