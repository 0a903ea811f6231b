package pass

import (
	"fmt"
	"sync"

	"github.com/dartrt/dartrt/graph"
)

// NodePass matches individual nodes and proposes a replacement. A nil
// Replacement means Match found nothing to rewrite.
type NodePass interface {
	// Match reports whether node should be rewritten.
	Match(node *graph.Node) bool
	// Replacement builds the node that should take over node's position
	// and consumers. Called only when Match returned true.
	Replacement(node *graph.Node) *graph.Node
}

// Factory builds a fresh NodePass instance; the manager keeps factories,
// not passes, so the same named pass can run independently against
// multiple graphs without shared state.
type Factory func() NodePass

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register adds a pass factory under name, overwriting any previous
// registration. Typically called from an init() in the pass's own file.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// Lookup returns the factory registered under name.
func Lookup(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// UserDef records, for a given node, every (owner, input index) pair
// that consumes it — the reverse edge of graph.Node.Inputs.
type UserDef map[*graph.Node][]Use

// Use names one edge: owner.Inputs()[Index] == node.
type Use struct {
	Owner *graph.Node
	Index int
}

// BuildUserDef walks nodes and inverts their input edges.
func BuildUserDef(nodes []*graph.Node) UserDef {
	ud := make(UserDef)
	for _, n := range nodes {
		for i, in := range n.Inputs() {
			ud[in] = append(ud[in], Use{Owner: n, Index: i})
		}
	}
	return ud
}

// Manager runs a fixed sequence of named passes over a graph's node
// list, rewriting matched nodes via the add-before-delete discipline:
// the replacement is spliced in and all consumers are repointed before
// the matched node is ever removed from OrderedNodes, so a pass that
// inspects the in-flight list never observes a dangling reference
// (spec.md §4.6).
type Manager struct {
	names []string
}

// NewManager builds a pass manager that will run the named passes, in
// order, each time Run is called. Every name must already be
// registered.
func NewManager(names ...string) (*Manager, error) {
	for _, name := range names {
		if _, ok := Lookup(name); !ok {
			return nil, fmt.Errorf("pass: unregistered pass %q", name)
		}
	}
	return &Manager{names: append([]string(nil), names...)}, nil
}

// Run applies every registered pass, in order, to g's current nodes.
// Each pass runs to a fixed point: it keeps scanning the node list,
// replacing matches, until a full scan makes no further changes.
func (m *Manager) Run(g *graph.Graph) error {
	for _, name := range m.names {
		factory, ok := Lookup(name)
		if !ok {
			return fmt.Errorf("pass: unregistered pass %q", name)
		}
		if err := m.runOne(g, factory()); err != nil {
			return fmt.Errorf("pass %q: %w", name, err)
		}
	}
	return nil
}

func (m *Manager) runOne(g *graph.Graph, p NodePass) error {
	on := BuildOrderedNodes(g)

	for {
		ud := BuildUserDef(on.Nodes())
		changed := false

		for _, n := range on.Nodes() {
			if !p.Match(n) {
				continue
			}
			repl := p.Replacement(n)
			if repl == nil {
				continue
			}
			replace(on, ud, n, repl)
			changed = true
			break
		}

		if !changed {
			break
		}
	}
	return nil
}

// replace splices repl into old's position, repoints every recorded
// user of old to repl, then removes old. The insert-before-delete
// ordering means a pass iterating OrderedNodes mid-rewrite never sees a
// node with a dangling input.
func replace(on *OrderedNodes, ud UserDef, old, repl *graph.Node) {
	on.InsertBefore(old, repl)

	for _, use := range ud[old] {
		use.Owner.Inputs()[use.Index] = repl
	}

	on.Remove(old)
}
