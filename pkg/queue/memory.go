package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"go-edge/pkg/common"
)

// Memory is an in-process Queue with the same delivery semantics as the
// Redis implementation: each message goes to one consumer and stays
// pending until acked or claimed by another consumer.
type Memory struct {
	mu        sync.Mutex
	jobs      *memStream
	results   *memStream
	info      map[int][]byte
	completed map[int]bool
	closed    bool
	now       func() time.Time
}

var _ Queue = (*Memory)(nil)

type memEntry struct {
	seq       int
	data      []byte
	consumer  string
	delivered time.Time
}

type memStream struct {
	seq     int
	ready   []memEntry
	pending map[string]memEntry
	// wake is closed and replaced whenever a message is added.
	wake chan struct{}
}

func newMemStream() *memStream {
	return &memStream{
		pending: make(map[string]memEntry),
		wake:    make(chan struct{}),
	}
}

func NewMemory() *Memory {
	return &Memory{
		jobs:      newMemStream(),
		results:   newMemStream(),
		info:      make(map[int][]byte),
		completed: make(map[int]bool),
		now:       time.Now,
	}
}

func entryID(seq int) string {
	return fmt.Sprintf("%d-0", seq)
}

func (m *Memory) EnsureGroups(context.Context) error {
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.jobs.wake)
		close(m.results.wake)
	}
	return nil
}

// Pending returns the number of delivered but unacked jobs and results.
func (m *Memory) Pending() (jobs, results int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs.pending), len(m.results.pending)
}

func (m *Memory) add(s *memStream, v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrClosed
	}
	s.seq++
	s.ready = append(s.ready, memEntry{seq: s.seq, data: b})
	close(s.wake)
	s.wake = make(chan struct{})
	return entryID(s.seq), nil
}

func (m *Memory) read(ctx context.Context, s *memStream, consumer string, block time.Duration) (string, []byte, error) {
	timer := time.NewTimer(block)
	defer timer.Stop()
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return "", nil, ErrClosed
		}
		if len(s.ready) > 0 {
			e := s.ready[0]
			s.ready = s.ready[1:]
			e.consumer = consumer
			e.delivered = m.now()
			id := entryID(e.seq)
			s.pending[id] = e
			m.mu.Unlock()
			return id, e.data, nil
		}
		wake := s.wake
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", nil, ctx.Err()
		case <-timer.C:
			return "", nil, nil
		case <-wake:
		}
	}
}

func (m *Memory) ack(s *memStream, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(s.pending, id)
	return nil
}

func (m *Memory) AddJob(_ context.Context, job *common.JobMessage) (string, error) {
	return m.add(m.jobs, job)
}

func (m *Memory) ReadJob(ctx context.Context, consumer string, block time.Duration) (string, *common.JobMessage, error) {
	id, data, err := m.read(ctx, m.jobs, consumer, block)
	if err != nil || id == "" {
		return "", nil, err
	}
	var job common.JobMessage
	if err := json.Unmarshal(data, &job); err != nil {
		return id, nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return id, &job, nil
}

func (m *Memory) AckJob(_ context.Context, id string) error {
	return m.ack(m.jobs, id)
}

func (m *Memory) AddResult(_ context.Context, res *common.ResultMessage) (string, error) {
	return m.add(m.results, res)
}

func (m *Memory) ReadResult(ctx context.Context, consumer string, block time.Duration) (string, *common.ResultMessage, error) {
	id, data, err := m.read(ctx, m.results, consumer, block)
	if err != nil || id == "" {
		return "", nil, err
	}
	var res common.ResultMessage
	if err := json.Unmarshal(data, &res); err != nil {
		return id, nil, fmt.Errorf("decode result %s: %w", id, err)
	}
	return id, &res, nil
}

func (m *Memory) AckResult(_ context.Context, id string) error {
	return m.ack(m.results, id)
}

func (m *Memory) StoreImageInfo(_ context.Context, info *common.ImageInfo) error {
	b, err := json.Marshal(info)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.info[info.ID] = b
	return nil
}

func (m *Memory) GetImageInfo(_ context.Context, imageID int) (*common.ImageInfo, error) {
	m.mu.Lock()
	b, ok := m.info[imageID]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("image %d: %w", imageID, ErrImageNotFound)
	}
	var info common.ImageInfo
	if err := json.Unmarshal(b, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (m *Memory) MarkImageCompleted(_ context.Context, imageID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed[imageID] = true
	return nil
}

func (m *Memory) IsImageCompleted(_ context.Context, imageID int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completed[imageID], nil
}

func (m *Memory) ClaimStaleJobs(_ context.Context, consumer string, minIdle time.Duration, count int) ([]ClaimedJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var stale []memEntry
	for _, e := range m.jobs.pending {
		if now.Sub(e.delivered) >= minIdle {
			stale = append(stale, e)
		}
	}
	slices.SortFunc(stale, func(a, b memEntry) int { return a.seq - b.seq })
	if len(stale) > count {
		stale = stale[:count]
	}

	claimed := make([]ClaimedJob, 0, len(stale))
	for _, e := range stale {
		id := entryID(e.seq)
		var job common.JobMessage
		if err := json.Unmarshal(e.data, &job); err != nil {
			delete(m.jobs.pending, id)
			continue
		}
		e.consumer = consumer
		e.delivered = now
		m.jobs.pending[id] = e
		claimed = append(claimed, ClaimedJob{ID: id, Job: &job})
	}
	return claimed, nil
}
