// Package dag holds the task graph: nodes, the dependency edges between them
// and the status table consulted while the graph is executed.
//
// Graphs are built incrementally with Add. Every Add either succeeds or
// leaves the graph untouched, so the graph is acyclic at all times. Once an
// executor freezes the graph its structure never changes again; only node
// statuses move, and they move through a nodestore.Store.
package dag
