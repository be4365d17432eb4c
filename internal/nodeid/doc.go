/*
Package nodeid provides the structured labels attached to scheduled tasks.

A label is a dot-separated sequence of segments, e.g. `unload.public.orders`.
The first segment is the stage, the rest is the scope the stage operates on.
Labels are diagnostic only; task identity inside a graph is a handle.
*/
package nodeid
