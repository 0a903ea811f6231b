// Package mempool implements the dynamic device memory pool (spec.md
// §4.5): per-stream, per-persistence-class sub-allocation over device
// memory blocks, with best-fit allocation, address-order coalescing free,
// continuous allocation, free-part/keep-part partitioning and
// cross-stream event bookkeeping.
package mempool

import "fmt"

// Status is a MemBuf's lifecycle state.
type Status int

const (
	// StatusIdle bufs sit in an allocator's free_set, available for reuse.
	StatusIdle Status = iota
	// StatusUsed bufs are handed out and not yet freed.
	StatusUsed
	// StatusEagerFree bufs had their physical pages unmapped by
	// free_idle_mems_by_eager_free but remain reserved virtually.
	StatusEagerFree
	// StatusUsedByEvent bufs were freed while outstanding cross-stream
	// events still referenced them; actual release is deferred.
	StatusUsedByEvent
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "Idle"
	case StatusUsed:
		return "Used"
	case StatusEagerFree:
		return "EagerFree"
	case StatusUsedByEvent:
		return "UsedByEvent"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// MemBlock is a contiguous device memory region backing many bufs
// (spec.md §4.5). min_addr/max_addr record the high-water sub-region
// ever used inside the block, for peak statistics.
type MemBlock struct {
	Addr     int64
	Size     int64
	StreamID int
	MinAddr  int64
	MaxAddr  int64

	bytes []byte // simulated device backing store for this block
}

// Bytes returns the block's simulated backing store.
func (b *MemBlock) Bytes() []byte { return b.bytes }

// eventEntry is one (task_id, event) pair recorded against a buf under a
// user_stream key.
type eventEntry struct {
	taskID int64
	event  *Event
}

// MemBuf is a doubly-linked (in address order, within its owning block)
// carve-out of a MemBlock (spec.md §4.5).
type MemBuf struct {
	prev, next *MemBuf

	Addr     int64
	Size     int64
	StreamID int
	Status   Status
	OwnerTag string

	block *MemBlock

	// events maps user_stream_id -> ordered list of (task_id, event).
	events map[int]([]eventEntry)
}

// Prev returns the address-order predecessor within the owning block, or
// nil if this buf is the block's first.
func (b *MemBuf) Prev() *MemBuf { return b.prev }

// Next returns the address-order successor within the owning block, or
// nil if this buf is the block's last.
func (b *MemBuf) Next() *MemBuf { return b.next }

// Bytes returns the buf's view into its block's simulated backing store.
func (b *MemBuf) Bytes() []byte {
	off := b.Addr - b.block.Addr
	return b.block.bytes[off : off+b.Size]
}

// HasEvents reports whether any user_stream still has outstanding
// (task_id, event) entries against this buf.
func (b *MemBuf) HasEvents() bool {
	for _, entries := range b.events {
		if len(entries) > 0 {
			return true
		}
	}
	return false
}
