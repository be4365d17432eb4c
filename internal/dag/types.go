package dag

import (
	"sync"

	"github.com/specialistvlad/unloadcopy/internal/node"
	"github.com/specialistvlad/unloadcopy/internal/nodestore"
)

// Graph is a collection of tasks and their dependencies, representing a DAG.
// All operations on the graph are concurrency-safe.
type Graph struct {
	// mutex protects the structure below. It is never held while a task runs.
	mutex sync.RWMutex
	// vertices stores every node, keyed by its handle.
	vertices map[node.Handle]*vertex
	// order lists handles in insertion order for deterministic iteration.
	order []node.Handle
	// next is the handle assigned to the next added node.
	next node.Handle
	// frozen is set when a run starts; Add fails afterwards.
	frozen bool
	// store holds the mutable per-node run state.
	store nodestore.Store
}

// vertex wraps a node with its edges. It is un-exported to enforce
// interaction with the graph via handles, not by direct struct manipulation.
type vertex struct {
	node *node.Node
	// deps holds the predecessors of this vertex.
	deps map[node.Handle]*vertex
	// dependents holds the successors of this vertex.
	dependents map[node.Handle]*vertex
}
