package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/redis/go-redis/v9"

	"go-edge/pkg/common"
)

const imageInfoTTL = 24 * time.Hour

// Redis implements Queue on Redis Streams with one consumer group per
// stream.
type Redis struct {
	client *redis.Client
	prefix string
}

var _ Queue = (*Redis)(nil)

// NewRedis connects to addr and checks the connection. Keys are namespaced
// with prefix, "edge" when empty.
func NewRedis(ctx context.Context, addr, prefix string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return newRedis(client, prefix), nil
}

func newRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "edge"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) jobsStream() string {
	return r.prefix + ":jobs"
}

func (r *Redis) resultsStream() string {
	return r.prefix + ":results"
}

func (r *Redis) imageInfoKey(imageID int) string {
	return fmt.Sprintf("%s:image:%d:info", r.prefix, imageID)
}

func (r *Redis) imageStatusKey(imageID int) string {
	return fmt.Sprintf("%s:image:%d:status", r.prefix, imageID)
}

// EnsureGroups creates both streams and their consumer groups. Existing
// groups are left alone.
func (r *Redis) EnsureGroups(ctx context.Context) error {
	for stream, group := range map[string]string{r.jobsStream(): WorkersGroup, r.resultsStream(): AssemblersGroup} {
		err := r.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
		if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("create group %s on %s: %w", group, stream, err)
		}
	}
	return nil
}

func (r *Redis) add(ctx context.Context, stream string, v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{"data": b},
	}).Result()
}

// read returns the payload of the next undelivered message, or an empty id
// when the block timed out.
func (r *Redis) read(ctx context.Context, stream, group, consumer string, block time.Duration) (string, []byte, error) {
	result, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    1,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, err
	}
	if len(result) == 0 || len(result[0].Messages) == 0 {
		return "", nil, nil
	}
	msg := result[0].Messages[0]
	return msg.ID, bytesFromInterface(msg.Values["data"]), nil
}

func (r *Redis) AddJob(ctx context.Context, job *common.JobMessage) (string, error) {
	return r.add(ctx, r.jobsStream(), job)
}

func (r *Redis) ReadJob(ctx context.Context, consumer string, block time.Duration) (string, *common.JobMessage, error) {
	id, data, err := r.read(ctx, r.jobsStream(), WorkersGroup, consumer, block)
	if err != nil || id == "" {
		return "", nil, err
	}
	var job common.JobMessage
	if err := json.Unmarshal(data, &job); err != nil {
		return id, nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return id, &job, nil
}

func (r *Redis) AckJob(ctx context.Context, id string) error {
	return r.client.XAck(ctx, r.jobsStream(), WorkersGroup, id).Err()
}

func (r *Redis) AddResult(ctx context.Context, res *common.ResultMessage) (string, error) {
	return r.add(ctx, r.resultsStream(), res)
}

func (r *Redis) ReadResult(ctx context.Context, consumer string, block time.Duration) (string, *common.ResultMessage, error) {
	id, data, err := r.read(ctx, r.resultsStream(), AssemblersGroup, consumer, block)
	if err != nil || id == "" {
		return "", nil, err
	}
	var res common.ResultMessage
	if err := json.Unmarshal(data, &res); err != nil {
		return id, nil, fmt.Errorf("decode result %s: %w", id, err)
	}
	return id, &res, nil
}

func (r *Redis) AckResult(ctx context.Context, id string) error {
	return r.client.XAck(ctx, r.resultsStream(), AssemblersGroup, id).Err()
}

func (r *Redis) StoreImageInfo(ctx context.Context, info *common.ImageInfo) error {
	b, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.imageInfoKey(info.ID), b, imageInfoTTL).Err()
}

func (r *Redis) GetImageInfo(ctx context.Context, imageID int) (*common.ImageInfo, error) {
	data, err := r.client.Get(ctx, r.imageInfoKey(imageID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("image %d: %w", imageID, ErrImageNotFound)
	}
	if err != nil {
		return nil, err
	}
	var info common.ImageInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (r *Redis) MarkImageCompleted(ctx context.Context, imageID int) error {
	return r.client.Set(ctx, r.imageStatusKey(imageID), "completed", imageInfoTTL).Err()
}

func (r *Redis) IsImageCompleted(ctx context.Context, imageID int) (bool, error) {
	result, err := r.client.Get(ctx, r.imageStatusKey(imageID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return result == "completed", nil
}

func (r *Redis) ClaimStaleJobs(ctx context.Context, consumer string, minIdle time.Duration, count int) ([]ClaimedJob, error) {
	pending, err := r.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: r.jobsStream(),
		Group:  WorkersGroup,
		Idle:   minIdle,
		Start:  "-",
		End:    "+",
		Count:  int64(count),
	}).Result()
	if err != nil || len(pending) == 0 {
		return nil, err
	}

	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		ids = append(ids, p.ID)
	}
	claimed, err := r.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   r.jobsStream(),
		Group:    WorkersGroup,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, err
	}

	jobs := make([]ClaimedJob, 0, len(claimed))
	for _, msg := range claimed {
		var job common.JobMessage
		if err := json.Unmarshal(bytesFromInterface(msg.Values["data"]), &job); err != nil {
			glog.Warningf("queue: dropping undecodable job %s: %v", msg.ID, err)
			_ = r.AckJob(ctx, msg.ID)
			continue
		}
		jobs = append(jobs, ClaimedJob{ID: msg.ID, Job: &job})
	}
	return jobs, nil
}

func bytesFromInterface(v any) []byte {
	switch t := v.(type) {
	case string:
		return []byte(t)
	case []byte:
		return t
	default:
		b, _ := json.Marshal(t)
		return b
	}
}
