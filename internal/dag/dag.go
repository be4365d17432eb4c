package dag

import (
	"context"
	"fmt"
	"slices"

	"github.com/specialistvlad/unloadcopy/internal/inmemorystore"
	"github.com/specialistvlad/unloadcopy/internal/node"
	"github.com/specialistvlad/unloadcopy/internal/nodeid"
	"github.com/specialistvlad/unloadcopy/internal/nodestore"
	"github.com/specialistvlad/unloadcopy/internal/task"
)

// Option configures a Graph.
type Option func(*Graph)

// WithStore replaces the default in-memory status store.
func WithStore(s nodestore.Store) Option {
	return func(g *Graph) { g.store = s }
}

// New creates and returns an initialized, empty Graph.
func New(opts ...Option) *Graph {
	g := &Graph{
		vertices: make(map[node.Handle]*vertex),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.store == nil {
		g.store = inmemorystore.New()
	}
	return g
}

// Add inserts a task into the graph. Every handle in dependencies becomes a
// predecessor of the new node and every handle in dependencyOf becomes a
// successor. On error the graph is left unchanged.
func (g *Graph) Add(id *nodeid.Address, t task.Task, dependencies, dependencyOf []node.Handle) (node.Handle, error) {
	if t == nil {
		return 0, ErrNilTask
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.frozen {
		return 0, ErrGraphFrozen
	}

	for _, h := range slices.Concat(dependencies, dependencyOf) {
		if _, ok := g.vertices[h]; !ok {
			return 0, &UnknownHandleError{Handle: h, Label: id.String()}
		}
	}
	if path := g.cyclePath(dependencies, dependencyOf); path != nil {
		label := id.String()
		return 0, &CycleError{Label: label, Path: append(append([]string{label}, path...), label)}
	}

	h := g.next
	g.next++
	v := &vertex{
		node:       node.New(h, id, t),
		deps:       make(map[node.Handle]*vertex, len(dependencies)),
		dependents: make(map[node.Handle]*vertex, len(dependencyOf)),
	}
	for _, d := range dependencies {
		dep := g.vertices[d]
		v.deps[d] = dep
		dep.dependents[h] = v
	}
	for _, d := range dependencyOf {
		succ := g.vertices[d]
		v.dependents[d] = succ
		succ.deps[h] = v
	}
	g.vertices[h] = v
	g.order = append(g.order, h)
	return h, nil
}

// AddBarrier inserts a no-op synchronization node.
func (g *Graph) AddBarrier(id *nodeid.Address, dependencies, dependencyOf []node.Handle) (node.Handle, error) {
	return g.Add(id, task.Barrier{}, dependencies, dependencyOf)
}

// cyclePath reports whether a new node with the given edges would close a
// cycle. A cycle exists iff some future successor already reaches some future
// predecessor. The returned path runs from that successor to that predecessor.
// Must be called with the mutex held.
func (g *Graph) cyclePath(dependencies, dependencyOf []node.Handle) []string {
	if len(dependencies) == 0 || len(dependencyOf) == 0 {
		return nil
	}
	isDep := make(map[node.Handle]bool, len(dependencies))
	for _, d := range dependencies {
		isDep[d] = true
	}

	for _, start := range dependencyOf {
		parent := map[node.Handle]node.Handle{start: start}
		queue := []node.Handle{start}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			if isDep[cur] {
				var path []string
				for at := cur; ; at = parent[at] {
					path = append(path, g.vertices[at].node.ID())
					if at == start {
						break
					}
				}
				slices.Reverse(path)
				return path
			}
			for next := range g.vertices[cur].dependents {
				if _, seen := parent[next]; !seen {
					parent[next] = cur
					queue = append(queue, next)
				}
			}
		}
	}
	return nil
}

// Freeze marks the graph as consumed by a run, verifies it and resets the
// status store so every node is Pending. A graph can be frozen only once.
func (g *Graph) Freeze(ctx context.Context) error {
	g.mutex.Lock()
	if g.frozen {
		g.mutex.Unlock()
		return ErrGraphFrozen
	}
	g.frozen = true
	handles := slices.Clone(g.order)
	g.mutex.Unlock()

	if err := g.Validate(); err != nil {
		return err
	}
	return g.store.Init(ctx, handles)
}

// Frozen reports whether a run has started on this graph.
func (g *Graph) Frozen() bool {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.frozen
}

// Len returns the number of nodes in the graph.
func (g *Graph) Len() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.order)
}

// Node returns the node for a handle.
func (g *Graph) Node(h node.Handle) (*node.Node, bool) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	v, ok := g.vertices[h]
	if !ok {
		return nil, false
	}
	return v.node, true
}

// Nodes returns every node in insertion order.
func (g *Graph) Nodes() []*node.Node {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	nodes := make([]*node.Node, 0, len(g.order))
	for _, h := range g.order {
		nodes = append(nodes, g.vertices[h].node)
	}
	return nodes
}

// Lookup returns the node with the given label, e.g. "unload.public.orders".
func (g *Graph) Lookup(label string) (*node.Node, error) {
	id, err := nodeid.Parse(label)
	if err != nil {
		return nil, err
	}

	g.mutex.RLock()
	defer g.mutex.RUnlock()
	for _, h := range g.order {
		if n := g.vertices[h].node; n.Address().Equal(id) {
			return n, nil
		}
	}
	return nil, fmt.Errorf("no node labelled %q", label)
}

// Dependencies returns the handles the given node depends on, in ascending order.
func (g *Graph) Dependencies(h node.Handle) []node.Handle {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	v, ok := g.vertices[h]
	if !ok {
		return nil
	}
	return sortedKeys(v.deps)
}

// Dependents returns the handles that depend on the given node, in ascending order.
func (g *Graph) Dependents(h node.Handle) []node.Handle {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	v, ok := g.vertices[h]
	if !ok {
		return nil
	}
	return sortedKeys(v.dependents)
}

// Descendants returns every transitive successor of the given node, in ascending order.
func (g *Graph) Descendants(h node.Handle) []node.Handle {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	v, ok := g.vertices[h]
	if !ok {
		return nil
	}
	seen := make(map[node.Handle]*vertex)
	stack := []*vertex{v}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for dh, d := range cur.dependents {
			if _, ok := seen[dh]; !ok {
				seen[dh] = d
				stack = append(stack, d)
			}
		}
	}
	return sortedKeys(seen)
}

// Store returns the status store backing this graph.
func (g *Graph) Store() nodestore.Store {
	return g.store
}

// Snapshot returns the current status of every node.
func (g *Graph) Snapshot(ctx context.Context) nodestore.Snapshot {
	return g.store.Snapshot(ctx)
}

// ReadySet returns, in insertion order, the Pending nodes of the snapshot
// whose predecessors are all Succeeded. It has no side effects.
func (g *Graph) ReadySet(snapshot nodestore.Snapshot) []node.Handle {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	var ready []node.Handle
	for _, h := range g.order {
		if snapshot[h] != node.StatusPending {
			continue
		}
		if g.predecessorsSucceeded(g.vertices[h], snapshot) {
			ready = append(ready, h)
		}
	}
	return ready
}

// IsReady reports whether every predecessor of h has Succeeded in snapshot.
func (g *Graph) IsReady(h node.Handle, snapshot nodestore.Snapshot) bool {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	v, ok := g.vertices[h]
	return ok && g.predecessorsSucceeded(v, snapshot)
}

func (g *Graph) predecessorsSucceeded(v *vertex, snapshot nodestore.Snapshot) bool {
	for dh := range v.deps {
		if snapshot[dh] != node.StatusSucceeded {
			return false
		}
	}
	return true
}

// Terminal reports whether every node has reached a terminal status. A graph
// that was never frozen reports false unless it is empty.
func (g *Graph) Terminal(ctx context.Context) bool {
	g.mutex.RLock()
	n := len(g.order)
	g.mutex.RUnlock()

	snapshot := g.store.Snapshot(ctx)
	if len(snapshot) != n {
		return n == 0
	}
	for _, s := range snapshot {
		if !s.IsTerminal() {
			return false
		}
	}
	return true
}

// Validate checks the whole graph for cycles. Graphs built through Add are
// acyclic by construction, so this only guards against misuse.
func (g *Graph) Validate() error {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	// Classic depth-first search with three sets of nodes:
	// permanent: fully visited and not part of a cycle.
	// temporary: in the recursion stack of the current traversal.
	permanent := make(map[node.Handle]bool)
	temporary := make(map[node.Handle]bool)

	var visit func(v *vertex) error
	visit = func(v *vertex) error {
		h := v.node.Handle()
		if permanent[h] {
			return nil
		}
		if temporary[h] {
			return &CycleError{Label: v.node.ID()}
		}
		temporary[h] = true
		for _, d := range v.dependents {
			if err := visit(d); err != nil {
				return err
			}
		}
		delete(temporary, h)
		permanent[h] = true
		return nil
	}

	for _, h := range g.order {
		if err := visit(g.vertices[h]); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(m map[node.Handle]*vertex) []node.Handle {
	keys := make([]node.Handle, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
