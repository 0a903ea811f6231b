package mempool

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/dartrt/dartrt/metrics"
	"github.com/dartrt/dartrt/storage"
)

const defaultUnitSize int64 = 1 << 30 // 1 GiB, spec.md §4.5 default block unit size

// Hooks are the pluggable VMM/eager-free integration points spec.md
// §4.5 names (mem_mapper, mem_eager_freer, mem_block_expander,
// wait_pipeline, sync_all_streams). Nil fields get a default no-op or
// direct-allocation behavior appropriate for a single-process CPU pool.
type Hooks struct {
	// MemMapper maps `need` additional bytes at addr when growing a Used
	// buf out of adjacent EagerFree space under VMM.
	MemMapper func(need, addr int64) error
	// MemEagerFreer unmaps the physical pages backing [addr, addr+size).
	MemEagerFreer func(addr, size int64)
	// WaitPipeline drains in-flight device work before a defrag/retry
	// round. The pool's lock is dropped around this call.
	WaitPipeline func()
	// SyncAllStreams blocks until every stream has drained.
	SyncAllStreams func()
}

func (h *Hooks) normalize() {
	if h.MemMapper == nil {
		h.MemMapper = func(int64, int64) error { return nil }
	}
	if h.MemEagerFreer == nil {
		h.MemEagerFreer = func(int64, int64) {}
	}
	if h.WaitPipeline == nil {
		h.WaitPipeline = func() {}
	}
	if h.SyncAllStreams == nil {
		h.SyncAllStreams = func() {}
	}
}

// Stats are the pool's readable counters (spec.md §4.5 "Statistics").
type Stats struct {
	Used          int64
	Peak          int64
	Alloc         int64
	UsedByEvent   int64
	EagerFree     int64
	IterUsedPeak  int64
	IterAllocPeak int64
}

// Idle returns Alloc - Used, the pool's derived idle-byte statistic.
func (s Stats) Idle() int64 { return s.Alloc - s.Used }

type addrEntry struct {
	buf   *MemBuf
	alloc *MemBufAllocator
}

type streamPair struct {
	userStream int
	memStream  int
}

// Pool is the dynamic device memory pool (spec.md §4.5).
type Pool struct {
	mu sync.Mutex

	allocators map[allocatorKey]*MemBufAllocator
	addrIndex  map[int64]addrEntry
	eventIndex map[streamPair]map[*MemBuf]struct{}

	nextAddr int64
	unitSize int64

	device storage.Allocator

	vmmEnabled             bool
	eagerRoundsSinceDefrag int

	stats Stats
	hooks Hooks

	logger  *zap.Logger
	metrics *metrics.Registry
}

// Option configures a Pool at construction.
type Option func(*Pool)

// WithUnitSize overrides the default 1 GiB block unit size.
func WithUnitSize(bytes int64) Option {
	return func(p *Pool) { p.unitSize = bytes }
}

// WithVMM enables the eager-free/VMM code paths: alloc steps 4, 5 and 7
// and Defrag become live rather than no-ops. With VMM enabled, step 6's
// retry in the opposite persistence class is skipped; step 9 runs either
// way.
func WithVMM(enabled bool) Option {
	return func(p *Pool) { p.vmmEnabled = enabled }
}

// WithHooks installs the VMM/eager-free integration points.
func WithHooks(h Hooks) Option {
	return func(p *Pool) { p.hooks = h }
}

// WithLogger attaches structured logging for protocol violations (spec.md
// §7.4) and kernel-adjacent diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pool) { p.logger = logger }
}

// WithMetrics attaches a metrics.Registry. Pass nil (the default) to
// disable collection.
func WithMetrics(m *metrics.Registry) Option {
	return func(p *Pool) { p.metrics = m }
}

// New builds a Pool over device, the byte-level allocator used to
// materialize new blocks.
func New(device storage.Allocator, opts ...Option) *Pool {
	p := &Pool{
		allocators: make(map[allocatorKey]*MemBufAllocator),
		addrIndex:  make(map[int64]addrEntry),
		eventIndex: make(map[streamPair]map[*MemBuf]struct{}),
		unitSize:   defaultUnitSize,
		device:     device,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.hooks.normalize()
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	return p
}

// alignUp512 rounds size up to the pool's 512-byte alignment. A
// zero-byte request still yields one full 512-byte buf (spec.md §8's
// "alloc(0) -> 512-byte buf" testable property): a zero-sized buf would
// give callers a dangling address with nothing backing it.
func alignUp512(size int64) int64 {
	const align = 512
	if size == 0 {
		return align
	}
	return (size + align - 1) &^ (align - 1)
}

func (p *Pool) allocatorFor(key allocatorKey) *MemBufAllocator {
	a, ok := p.allocators[key]
	if !ok {
		a = newMemBufAllocator(key)
		p.allocators[key] = a
	}
	return a
}

// expandBlock grows allocator a with a fresh block sized to the smallest
// multiple of the pool's unit size that is >= request.
func (p *Pool) expandBlock(a *MemBufAllocator, request int64) (*MemBuf, error) {
	size := request
	if rem := size % p.unitSize; rem != 0 {
		size += p.unitSize - rem
	}
	if size < p.unitSize {
		size = p.unitSize
	}

	ptr, err := p.device.Allocate(size)
	if err != nil {
		return nil, fmt.Errorf("mempool: expand block of %d bytes: %w", size, err)
	}

	block := &MemBlock{
		Addr:     p.nextAddr,
		Size:     size,
		StreamID: a.key.streamID,
		MinAddr:  p.nextAddr,
		MaxAddr:  p.nextAddr,
		bytes:    ptr.Bytes,
	}
	p.nextAddr += size
	p.stats.Alloc += size
	if p.stats.Alloc > p.stats.IterAllocPeak {
		p.stats.IterAllocPeak = p.stats.Alloc
	}

	return a.carveWholeBlock(block), nil
}

// Alloc implements spec.md §4.5's allocation algorithm.
func (p *Pool) Alloc(size int64, fromPersistent bool, streamID int) (*MemBuf, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocLocked(alignUp512(size), fromPersistent, streamID, true)
}

func (p *Pool) allocLocked(size int64, fromPersistent bool, streamID int, allowRetrySwap bool) (*MemBuf, error) {
	key := allocatorKey{streamID: streamID, fromPersistent: fromPersistent, useSmallPool: false}
	a := p.allocatorFor(key)

	if len(a.blocks) == 0 {
		buf, err := p.expandBlock(a, size)
		if err != nil {
			return nil, err
		}
		a.freeSet.remove(buf)
		return p.finishAlloc(a, a.split(buf, size), size)
	}

	if candidate := a.freeSet.bestFit(size); candidate != nil {
		a.freeSet.remove(candidate)
		return p.finishAlloc(a, a.split(candidate, size), size)
	}

	if p.vmmEnabled {
		if buf := p.tryEagerAdjacent(a, size); buf != nil {
			return p.finishAlloc(a, buf, size)
		}
		if candidate := a.eagerFreeSet.bestFit(size); candidate != nil {
			a.eagerFreeSet.remove(candidate)
			if err := p.hooks.MemMapper(candidate.Size, candidate.Addr); err != nil {
				return nil, fmt.Errorf("mempool: mem_mapper: %w", err)
			}
			candidate.Status = StatusIdle
			return p.finishAlloc(a, a.split(candidate, size), size)
		}
	}

	if allowRetrySwap && !p.vmmEnabled {
		if buf, err := p.allocLocked(size, !fromPersistent, streamID, false); err == nil {
			return buf, nil
		}
	}

	if p.vmmEnabled {
		p.mu.Unlock()
		p.hooks.WaitPipeline()
		p.hooks.SyncAllStreams()
		p.mu.Lock()
		p.freeIdleMemsByEagerFreeLocked()
		if candidate := a.freeSet.bestFit(size); candidate != nil {
			a.freeSet.remove(candidate)
			return p.finishAlloc(a, a.split(candidate, size), size)
		}
	}

	if buf, err := p.expandBlock(a, size); err == nil {
		a.freeSet.remove(buf)
		return p.finishAlloc(a, a.split(buf, size), size)
	}

	p.syncAllEventsLocked()
	if candidate := a.freeSet.bestFit(size); candidate != nil {
		a.freeSet.remove(candidate)
		return p.finishAlloc(a, a.split(candidate, size), size)
	}

	return nil, fmt.Errorf("mempool: out of device memory for %d bytes", size)
}

// tryEagerAdjacent scans free Idle bufs for an adjacent EagerFree
// neighbor whose combined size covers the request (spec.md §4.5 step 4).
func (p *Pool) tryEagerAdjacent(a *MemBufAllocator, size int64) *MemBuf {
	for _, idle := range a.freeSet.items {
		if n := idle.next; n != nil && n.Status == StatusEagerFree && idle.Size+n.Size >= size {
			need := size - idle.Size
			if err := p.hooks.MemMapper(need, n.Addr); err != nil {
				continue
			}
			a.freeSet.remove(idle)
			a.eagerFreeSet.remove(n)
			n.Status = StatusIdle
			merged := a.coalesce(idle, StatusIdle)
			return a.split(merged, size)
		}
		if pr := idle.prev; pr != nil && pr.Status == StatusEagerFree && idle.Size+pr.Size >= size {
			need := size - idle.Size
			if err := p.hooks.MemMapper(need, pr.Addr); err != nil {
				continue
			}
			a.freeSet.remove(idle)
			a.eagerFreeSet.remove(pr)
			pr.Status = StatusIdle
			merged := a.coalesce(idle, StatusIdle)
			return a.split(merged, size)
		}
	}
	return nil
}

func (p *Pool) finishAlloc(a *MemBufAllocator, buf *MemBuf, size int64) (*MemBuf, error) {
	buf.Status = StatusUsed
	p.addrIndex[buf.Addr] = addrEntry{buf: buf, alloc: a}

	p.stats.Used += buf.Size
	if p.stats.Used > p.stats.Peak {
		p.stats.Peak = p.stats.Used
	}
	if p.stats.Used > p.stats.IterUsedPeak {
		p.stats.IterUsedPeak = p.stats.Used
	}
	if buf.Addr < buf.block.MinAddr {
		buf.block.MinAddr = buf.Addr
	}
	if end := buf.Addr + buf.Size; end > buf.block.MaxAddr {
		buf.block.MaxAddr = end
	}

	p.metrics.AddMempoolAlloc(buf.Size)
	p.metrics.SetMempoolUsage(p.stats.Used, p.stats.Peak, p.stats.UsedByEvent, p.stats.EagerFree)
	return buf, nil
}

// Free implements spec.md §4.5's free algorithm.
func (p *Pool) Free(addr int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.freeLocked(addr, StatusIdle)
}

// FreeEager frees addr directly into the EagerFree set rather than Idle,
// used by callers that want the buf's pages unmapped immediately.
func (p *Pool) FreeEager(addr int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.freeLocked(addr, StatusEagerFree)
}

func (p *Pool) freeLocked(addr int64, target Status) {
	entry, ok := p.addrIndex[addr]
	if !ok {
		p.logger.Warn("mempool: free of unknown address", zap.Int64("addr", addr))
		return
	}
	buf := entry.buf

	if buf.HasEvents() {
		buf.Status = StatusUsedByEvent
		p.stats.Used -= buf.Size
		p.stats.UsedByEvent += buf.Size
		p.metrics.SetMempoolUsage(p.stats.Used, p.stats.Peak, p.stats.UsedByEvent, p.stats.EagerFree)
		return
	}

	p.releaseBufLocked(entry, target)
}

// releaseBufLocked performs the actual status flip, coalesce and
// set-insertion once a buf has no outstanding events. buf.Status going
// in reflects whichever counter currently holds its bytes (Used, or
// UsedByEvent if freeLocked already pinned it pending event drain) —
// release must credit that same counter back, not assume Used.
func (p *Pool) releaseBufLocked(entry addrEntry, target Status) {
	buf, a := entry.buf, entry.alloc
	delete(p.addrIndex, buf.Addr)

	if buf.Status == StatusUsedByEvent {
		p.stats.UsedByEvent -= buf.Size
	} else {
		p.stats.Used -= buf.Size
	}

	buf.Status = target
	merged := a.coalesce(buf, target)
	if target == StatusEagerFree {
		a.eagerFreeSet.insert(merged)
	} else {
		a.freeSet.insert(merged)
	}

	p.metrics.SetMempoolUsage(p.stats.Used, p.stats.Peak, p.stats.UsedByEvent, p.stats.EagerFree)
}

// Stats returns a snapshot of the pool's counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// freeIdleMemsByEagerFreeLocked moves every Idle buf across all
// allocators to EagerFree, invoking mem_eager_freer on each (spec.md
// §4.5 "Eager free / VMM semantics").
func (p *Pool) freeIdleMemsByEagerFreeLocked() {
	for _, a := range p.allocators {
		idle := append([]*MemBuf(nil), a.freeSet.items...)
		for _, buf := range idle {
			a.freeSet.remove(buf)
			buf.Status = StatusEagerFree
			merged := a.coalesce(buf, StatusEagerFree)
			a.eagerFreeSet.insert(merged)
			p.hooks.MemEagerFreer(merged.Addr, merged.Size)
			p.stats.EagerFree += merged.Size
		}
	}
	p.eagerRoundsSinceDefrag++
}

// Defrag is a no-op unless VMM is enabled and at least one eager-free
// round has happened since the last Defrag call (spec.md §4.5).
func (p *Pool) Defrag() {
	p.mu.Lock()
	if !p.vmmEnabled || p.eagerRoundsSinceDefrag == 0 {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.hooks.WaitPipeline()
	p.hooks.SyncAllStreams()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.freeIdleMemsByEagerFreeLocked()
	p.eagerRoundsSinceDefrag = 0
}
