package mempool

// allocatorKey identifies one MemBufAllocator (spec.md §4.5).
type allocatorKey struct {
	streamID       int
	fromPersistent bool
	useSmallPool   bool
}

// MemBufAllocator owns one (stream, persistence, size-class) partition
// of device memory: its block list, a free_set (Idle) and an
// eager_free_set (EagerFree), each sorted by (size, addr) for best-fit
// lookup.
type MemBufAllocator struct {
	key allocatorKey

	blocks       []*MemBlock
	freeSet      bufSet
	eagerFreeSet bufSet
}

func newMemBufAllocator(key allocatorKey) *MemBufAllocator {
	return &MemBufAllocator{key: key}
}

// carveWholeBlock creates one Idle buf spanning the whole of a freshly
// expanded block and inserts it into the free set.
func (a *MemBufAllocator) carveWholeBlock(block *MemBlock) *MemBuf {
	a.blocks = append(a.blocks, block)
	buf := &MemBuf{
		Addr:     block.Addr,
		Size:     block.Size,
		StreamID: a.key.streamID,
		Status:   StatusIdle,
		block:    block,
	}
	a.freeSet.insert(buf)
	return buf
}

// split takes a candidate buf of size >= request. If the remainder is at
// least 512 bytes it is split off as a fresh Idle buf linked immediately
// after candidate and reinserted into fromSet's counterpart free set;
// otherwise the whole candidate is returned unsplit (spec.md §4.5 "Split
// policy").
func (a *MemBufAllocator) split(candidate *MemBuf, request int64) *MemBuf {
	remainder := candidate.Size - request
	if remainder < 512 {
		return candidate
	}
	tail := &MemBuf{
		Addr:     candidate.Addr + request,
		Size:     remainder,
		StreamID: candidate.StreamID,
		Status:   StatusIdle,
		block:    candidate.block,
		prev:     candidate,
		next:     candidate.next,
	}
	if candidate.next != nil {
		candidate.next.prev = tail
	}
	candidate.next = tail
	candidate.Size = request

	a.freeSet.insert(tail)
	return candidate
}

// coalesce merges buf with an address-adjacent prev/next sharing the
// given status, removing the absorbed neighbor from its set. Returns the
// (possibly merged) buf.
func (a *MemBufAllocator) coalesce(buf *MemBuf, status Status) *MemBuf {
	setFor := func(s Status) *bufSet {
		if s == StatusEagerFree {
			return &a.eagerFreeSet
		}
		return &a.freeSet
	}

	if prev := buf.prev; prev != nil && prev.Status == status {
		setFor(status).remove(prev)
		prev.Size += buf.Size
		prev.next = buf.next
		if buf.next != nil {
			buf.next.prev = prev
		}
		buf = prev
	}
	if next := buf.next; next != nil && next.Status == status {
		setFor(status).remove(next)
		buf.Size += next.Size
		buf.next = next.next
		if next.next != nil {
			next.next.prev = buf
		}
	}
	return buf
}
