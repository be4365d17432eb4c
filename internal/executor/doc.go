// Package executor runs a dag.Graph on a bounded pool of workers.
//
// A single coordinator goroutine owns every status change: it promotes ready
// nodes, hands them to workers and applies each completion before anything
// downstream is considered. Workers only call Task.Execute. When a node fails,
// every transitive successor is marked Skipped at once; unrelated branches keep
// running. The run always continues until every node is terminal.
package executor
