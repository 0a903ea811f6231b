package mempool

// MemStreamAddr names one (memory_stream, addr) pair an event touches,
// for RecordEvent's call signature (spec.md §4.9).
type MemStreamAddr struct {
	MemStream int
	Addr      int64
}

// RecordEvent appends one event entry per address and indexes the owning
// buf under (user_stream, mem_stream) for later WaitEvent lookups.
func (p *Pool) RecordEvent(taskID int64, userStream int, addrs []MemStreamAddr, event *Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, a := range addrs {
		entry, ok := p.addrIndex[a.Addr]
		if !ok {
			p.logger.Sugar().Warnf("mempool: record_event on unknown address %d", a.Addr)
			continue
		}
		buf := entry.buf
		if buf.events == nil {
			buf.events = make(map[int][]eventEntry)
		}
		buf.events[userStream] = append(buf.events[userStream], eventEntry{taskID: taskID, event: event})

		key := streamPair{userStream: userStream, memStream: a.MemStream}
		set, ok := p.eventIndex[key]
		if !ok {
			set = make(map[*MemBuf]struct{})
			p.eventIndex[key] = set
		}
		set[buf] = struct{}{}
	}
}

// WaitEvent pops every entry with task_id <= taskID from bufs indexed
// under (user_stream, mem_stream). A buf whose event list empties is
// removed from all indices and, if it was UsedByEvent, finally released.
func (p *Pool) WaitEvent(taskID int64, userStream, memStream int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := streamPair{userStream: userStream, memStream: memStream}
	set, ok := p.eventIndex[key]
	if !ok {
		return
	}
	for buf := range set {
		p.popEventsLocked(buf, userStream, taskID)
	}
}

// popEventsLocked removes entries with task_id <= taskID from buf's
// event list for userStream, releasing the buf entirely once no user
// stream has outstanding entries left.
func (p *Pool) popEventsLocked(buf *MemBuf, userStream int, taskID int64) {
	entries := buf.events[userStream]
	kept := entries[:0]
	for _, e := range entries {
		if e.taskID > taskID {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		delete(buf.events, userStream)
	} else {
		buf.events[userStream] = kept
	}

	if buf.HasEvents() {
		return
	}
	p.removeFromEventIndexLocked(buf)

	if buf.Status == StatusUsedByEvent {
		entry, ok := p.addrIndex[buf.Addr]
		if ok {
			p.releaseBufLocked(entry, StatusIdle)
		}
	}
}

func (p *Pool) removeFromEventIndexLocked(buf *MemBuf) {
	for key, set := range p.eventIndex {
		if _, ok := set[buf]; ok {
			delete(set, buf)
			if len(set) == 0 {
				delete(p.eventIndex, key)
			}
		}
	}
}

// SyncAllEvents force-queries every outstanding event; any unfulfilled
// ones get a blocking Sync, and every buf with events is released
// (spec.md §4.9). Idempotent: calling it with no outstanding events is a
// no-op.
func (p *Pool) SyncAllEvents() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.syncAllEventsLocked()
}

func (p *Pool) syncAllEventsLocked() {
	seen := make(map[*MemBuf]struct{})
	for _, set := range p.eventIndex {
		for buf := range set {
			seen[buf] = struct{}{}
		}
	}

	for buf := range seen {
		for _, entries := range buf.events {
			for _, e := range entries {
				if !e.event.backend.Query(e.event) {
					e.event.backend.Sync(e.event)
				}
			}
		}
		buf.events = nil
		p.removeFromEventIndexLocked(buf)
		if buf.Status == StatusUsedByEvent {
			if entry, ok := p.addrIndex[buf.Addr]; ok {
				p.releaseBufLocked(entry, StatusIdle)
			}
		}
	}
}
