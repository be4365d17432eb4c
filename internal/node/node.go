// Package node defines the vertices of the scheduling graph and the status
// lifecycle they move through during a run.
package node

import (
	"strconv"

	"github.com/specialistvlad/unloadcopy/internal/nodeid"
	"github.com/specialistvlad/unloadcopy/internal/task"
)

// Handle identifies a node within one graph. Handles are assigned by the
// graph in insertion order and are never reused.
type Handle int

// String renders the handle for log output.
func (h Handle) String() string {
	return "#" + strconv.Itoa(int(h))
}

// Node is a single vertex in the execution graph. It is immutable once the
// graph has accepted it; mutable run state lives in a nodestore.Store.
type Node struct {
	handle Handle
	// id is the human-readable structured label of the node.
	id *nodeid.Address
	// Task is the unit of work executed when the node is dispatched.
	Task task.Task
}

// New creates a node. It is called by the graph, which owns handle assignment.
func New(handle Handle, id *nodeid.Address, t task.Task) *Node {
	return &Node{handle: handle, id: id, Task: t}
}

// Handle returns the graph-unique handle of the node.
func (n *Node) Handle() Handle {
	return n.handle
}

// ID returns the canonical string representation of the node's label.
func (n *Node) ID() string {
	return n.id.String()
}

// Address returns the structured label of the node.
func (n *Node) Address() *nodeid.Address {
	return n.id
}

// IsBarrier reports whether the node only synchronizes other nodes.
func (n *Node) IsBarrier() bool {
	return task.IsBarrier(n.Task)
}
