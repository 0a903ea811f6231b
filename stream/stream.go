// Package stream implements the stream/event controller: per-stream
// monotonic task-id counters, a cross-stream "last observed" status
// matrix, and a capped, reusable device event pool, delegating the
// actual event bookkeeping against memory-pool bufs into mempool.Pool
// (spec.md §4.9).
package stream

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/dartrt/dartrt/internal/obslog"
	"github.com/dartrt/dartrt/mempool"
)

type statusKey struct {
	user int
	mem  int
}

// Controller is the process-wide stream/event controller. A single
// spin-lock-equivalent mutex guards the task-id map and status matrix;
// the heavier event bookkeeping (per-buf event lists) lives behind
// mempool.Pool's own mutex, acquired only while Controller's lock is
// not held.
type Controller struct {
	mu      sync.Mutex
	taskIDs map[int]*int64
	status  map[statusKey]int64
	events  *mempool.EventPool
	pool    *mempool.Pool
	logger  *zap.Logger
}

// Option configures a Controller at construction.
type Option func(*Controller)

// WithEventPoolCap overrides the event pool's reuse cap (default
// mempool.DefaultEventPoolCap).
func WithEventPoolCap(capacity int) Option {
	return func(c *Controller) { c.events = mempool.NewEventPool(nil, capacity) }
}

// WithEventBackend installs a non-default EventBackend, for device
// backends whose events complete asynchronously.
func WithEventBackend(backend mempool.EventBackend) Option {
	return func(c *Controller) { c.events = mempool.NewEventPool(backend, 0) }
}

// WithLogger installs a non-default logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// New builds a Controller whose record_event/wait_event/sync_all_events
// calls delegate into pool.
func New(pool *mempool.Pool, opts ...Option) *Controller {
	c := &Controller{
		taskIDs: make(map[int]*int64),
		status:  make(map[statusKey]int64),
		pool:    pool,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.events == nil {
		c.events = mempool.NewEventPool(nil, mempool.DefaultEventPoolCap)
	}
	c.logger = obslog.NopIfNil(c.logger)
	return c
}

// Launch increments and returns the next monotonic task id for stream.
func (c *Controller) Launch(streamID int) int64 {
	counter := c.counterFor(streamID)
	return atomic.AddInt64(counter, 1)
}

func (c *Controller) counterFor(streamID int) *int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	counter, ok := c.taskIDs[streamID]
	if !ok {
		counter = new(int64)
		c.taskIDs[streamID] = counter
	}
	return counter
}

// Update monotonically raises status[userStream][memStream] to tid.
func (c *Controller) Update(tid int64, userStream, memStream int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := statusKey{user: userStream, mem: memStream}
	if tid > c.status[key] {
		c.status[key] = tid
	}
}

// Status returns the last observed task id for (userStream, memStream).
func (c *Controller) Status(userStream, memStream int) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status[statusKey{user: userStream, mem: memStream}]
}

// RecordEvent acquires a pooled Event and records it against addrs in
// the memory pool under (taskID, userStream).
func (c *Controller) RecordEvent(taskID int64, userStream int, addrs []mempool.MemStreamAddr) *mempool.Event {
	c.mu.Lock()
	ev := c.events.Acquire()
	c.mu.Unlock()

	c.pool.RecordEvent(taskID, userStream, addrs, ev)
	return ev
}

// WaitEvent waits for every event recorded at or before taskID under
// (userStream, memStream), then raises the status matrix.
func (c *Controller) WaitEvent(taskID int64, userStream, memStream int) {
	c.pool.WaitEvent(taskID, userStream, memStream)
	c.Update(taskID, userStream, memStream)
}

// SyncAllStreams syncs the device (forcing every outstanding event to
// completion via the memory pool) then raises every stream's own
// status entry to its latest launched task id.
func (c *Controller) SyncAllStreams() {
	c.pool.SyncAllEvents()

	c.mu.Lock()
	latest := make(map[int]int64, len(c.taskIDs))
	for streamID, counter := range c.taskIDs {
		latest[streamID] = atomic.LoadInt64(counter)
	}
	c.mu.Unlock()

	for streamID, tid := range latest {
		c.Update(tid, streamID, streamID)
	}
}
