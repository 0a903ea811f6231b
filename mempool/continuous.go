package mempool

import "fmt"

// AllocContinuous sums sizes, allocates one contiguous buf for the
// total, then splits it in place into len(sizes) Used pieces addressed
// back-to-back. The last piece absorbs any rounding remainder introduced
// by the 512-byte alignment of the total (spec.md §4.5 "Continuous
// allocation").
func (p *Pool) AllocContinuous(sizes []int64, fromPersistent bool, streamID int) ([]*MemBuf, error) {
	if len(sizes) == 0 {
		return nil, fmt.Errorf("mempool: alloc_continuous requires at least one size")
	}
	var total int64
	for _, s := range sizes {
		total += s
	}

	big, err := p.Alloc(total, fromPersistent, streamID)
	if err != nil {
		return nil, fmt.Errorf("mempool: alloc_continuous: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.addrIndex[big.Addr]
	if !ok {
		return nil, fmt.Errorf("mempool: alloc_continuous: internal error, big buf not indexed")
	}
	delete(p.addrIndex, big.Addr)

	bufs := make([]*MemBuf, len(sizes))
	offset := big.Addr
	remaining := big.Size
	for i, sz := range sizes {
		pieceSize := sz
		if i == len(sizes)-1 {
			pieceSize = remaining
		}
		bufs[i] = &MemBuf{
			Addr:     offset,
			Size:     pieceSize,
			StreamID: streamID,
			Status:   StatusUsed,
			block:    big.block,
		}
		p.addrIndex[offset] = addrEntry{buf: bufs[i], alloc: entry.alloc}
		offset += pieceSize
		remaining -= pieceSize
	}

	for i, buf := range bufs {
		if i > 0 {
			buf.prev = bufs[i-1]
			bufs[i-1].next = buf
		}
	}
	bufs[0].prev = big.prev
	if big.prev != nil {
		big.prev.next = bufs[0]
	}
	bufs[len(bufs)-1].next = big.next
	if big.next != nil {
		big.next.prev = bufs[len(bufs)-1]
	}

	return bufs, nil
}

// KeepRegion names one sub-range of a larger buf that must survive a
// FreePartKeepPart call as a fresh Used buf.
type KeepRegion struct {
	Addr int64
	Size int64
}

// FreePartKeepPart frees every address in freeAddrs and, for each region
// in keep (addresses must be disjoint from each other), carves out a new
// Used buf of the given size rather than freeing it. Duplicate keep
// addresses are detected and the second occurrence is skipped, logged as
// a protocol violation (spec.md §4.5 "Free-part / keep-part", resolving
// the Open Question on duplicate keep addresses per SPEC_FULL.md §7).
func (p *Pool) FreePartKeepPart(freeAddrs []int64, keep []KeepRegion) {
	p.mu.Lock()
	seenKeep := make(map[int64]bool, len(keep))
	dedupedKeep := keep[:0]
	for _, k := range keep {
		if seenKeep[k.Addr] {
			p.logger.Sugar().Warnf("mempool: duplicate keep address %d, skipping", k.Addr)
			continue
		}
		seenKeep[k.Addr] = true
		dedupedKeep = append(dedupedKeep, k)
	}
	p.mu.Unlock()

	for _, addr := range freeAddrs {
		isKept := false
		for _, k := range dedupedKeep {
			if k.Addr == addr {
				isKept = true
				break
			}
		}
		if !isKept {
			p.Free(addr)
		}
	}

	// Kept regions that coincide with the start of a buf already being
	// Used need no action; regions that fall inside a freed/free buf are
	// carved out as new Used bufs by re-splitting at their boundary.
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, k := range dedupedKeep {
		p.keepRegionLocked(k)
	}
}

func (p *Pool) keepRegionLocked(k KeepRegion) {
	if _, ok := p.addrIndex[k.Addr]; ok {
		// Already a distinct, indexed buf (e.g. it was never in freeAddrs).
		return
	}
	for _, a := range p.allocators {
		if buf := findEnclosing(a.freeSet.items, k.Addr); buf != nil {
			a.freeSet.remove(buf)
			p.carveKeepFromLocked(a, buf, k)
			return
		}
	}
	p.logger.Sugar().Warnf("mempool: keep address %d not found in any free buf", k.Addr)
}

func findEnclosing(items []*MemBuf, addr int64) *MemBuf {
	for _, b := range items {
		if addr >= b.Addr && addr < b.Addr+b.Size {
			return b
		}
	}
	return nil
}

// carveKeepFromLocked splits buf (already removed from its free set) so
// that [k.Addr, k.Addr+k.Size) becomes a new Used buf, reinserting the
// leading and trailing remainders back into the free set when they are
// at least 512 bytes, and folding them into the kept buf otherwise.
func (p *Pool) carveKeepFromLocked(a *MemBufAllocator, buf *MemBuf, k KeepRegion) {
	leadSize := k.Addr - buf.Addr
	trailSize := (buf.Addr + buf.Size) - (k.Addr + k.Size)

	keptAddr, keptSize := k.Addr, k.Size

	// A remainder under the pool's 512-byte minimum split size (same
	// bound as MemBufAllocator.split) is too small to stand as its own
	// free buf; fold it into the kept region instead of handing the
	// free set a fragment no allocation can ever satisfy.
	if leadSize > 0 && leadSize < 512 {
		keptAddr = buf.Addr
		keptSize += leadSize
		leadSize = 0
	}
	if trailSize > 0 && trailSize < 512 {
		keptSize += trailSize
		trailSize = 0
	}

	kept := &MemBuf{Addr: keptAddr, Size: keptSize, StreamID: buf.StreamID, Status: StatusUsed, block: buf.block}

	var lead, trail *MemBuf
	if leadSize > 0 {
		lead = &MemBuf{Addr: buf.Addr, Size: leadSize, StreamID: buf.StreamID, Status: StatusIdle, block: buf.block, prev: buf.prev}
		if buf.prev != nil {
			buf.prev.next = lead
		}
	}
	if trailSize > 0 {
		trail = &MemBuf{Addr: keptAddr + keptSize, Size: trailSize, StreamID: buf.StreamID, Status: StatusIdle, block: buf.block, next: buf.next}
		if buf.next != nil {
			buf.next.prev = trail
		}
	}

	chain := []*MemBuf{}
	if lead != nil {
		chain = append(chain, lead)
	}
	chain = append(chain, kept)
	if trail != nil {
		chain = append(chain, trail)
	}
	for i := range chain {
		if i > 0 {
			chain[i-1].next = chain[i]
			chain[i].prev = chain[i-1]
		}
	}
	if lead == nil {
		kept.prev = buf.prev
	}
	if trail == nil {
		kept.next = buf.next
	}

	if lead != nil {
		a.freeSet.insert(lead)
	}
	if trail != nil {
		a.freeSet.insert(trail)
	}
	p.addrIndex[kept.Addr] = addrEntry{buf: kept, alloc: a}
	p.stats.Used += kept.Size
	if p.stats.Used > p.stats.Peak {
		p.stats.Peak = p.stats.Used
	}
}
