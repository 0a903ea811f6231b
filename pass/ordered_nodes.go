// Package pass implements the pass manager: a process-wide registry of
// NodePass rewrites applied over a doubly-linked OrderedNodes view of a
// graph.Graph, with an add-before-delete rewrite discipline (spec.md
// §4.6).
package pass

import "github.com/dartrt/dartrt/graph"

type orderedEntry struct {
	prev, next *orderedEntry
	node       *graph.Node
}

// OrderedNodes is a doubly-linked list of node handles plus a hash map
// for O(1) lookup, used as the pass manager's working copy of a graph's
// node sequence while rewrites are in flight.
type OrderedNodes struct {
	head, tail *orderedEntry
	byID       map[int]*orderedEntry
}

// BuildOrderedNodes snapshots g's current node sequence.
func BuildOrderedNodes(g *graph.Graph) *OrderedNodes {
	on := &OrderedNodes{byID: make(map[int]*orderedEntry)}
	for _, n := range g.Nodes() {
		on.pushBack(n)
	}
	return on
}

func (on *OrderedNodes) pushBack(n *graph.Node) *orderedEntry {
	e := &orderedEntry{node: n, prev: on.tail}
	if on.tail != nil {
		on.tail.next = e
	} else {
		on.head = e
	}
	on.tail = e
	on.byID[n.ID()] = e
	return e
}

// InsertBefore splices n into the list immediately before the entry
// holding before, and indexes it for lookup.
func (on *OrderedNodes) InsertBefore(before *graph.Node, n *graph.Node) {
	at, ok := on.byID[before.ID()]
	if !ok {
		on.pushBack(n)
		return
	}
	e := &orderedEntry{node: n, prev: at.prev, next: at}
	if at.prev != nil {
		at.prev.next = e
	} else {
		on.head = e
	}
	at.prev = e
	on.byID[n.ID()] = e
}

// Remove unlinks the entry holding n, if present.
func (on *OrderedNodes) Remove(n *graph.Node) {
	e, ok := on.byID[n.ID()]
	if !ok {
		return
	}
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		on.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		on.tail = e.prev
	}
	delete(on.byID, n.ID())
}

// Contains reports whether n is currently present.
func (on *OrderedNodes) Contains(n *graph.Node) bool {
	_, ok := on.byID[n.ID()]
	return ok
}

// Nodes returns the current sequence in list order.
func (on *OrderedNodes) Nodes() []*graph.Node {
	nodes := make([]*graph.Node, 0, len(on.byID))
	for e := on.head; e != nil; e = e.next {
		nodes = append(nodes, e.node)
	}
	return nodes
}
