package dag

import (
	"errors"
	"fmt"
	"strings"

	"github.com/specialistvlad/unloadcopy/internal/node"
)

// ErrGraphBuild matches every error raised while constructing a graph.
var ErrGraphBuild = errors.New("graph build error")

var (
	// ErrGraphFrozen is returned by Add once the graph has been handed to an executor.
	ErrGraphFrozen = fmt.Errorf("%w: graph is frozen", ErrGraphBuild)
	// ErrNilTask is returned by Add when no task is supplied.
	ErrNilTask = fmt.Errorf("%w: task must not be nil", ErrGraphBuild)
)

// CycleError is returned when adding a node would close a dependency cycle.
type CycleError struct {
	// Label is the label of the node whose addition was rejected.
	Label string
	// Path lists the labels along the cycle, starting and ending at Label.
	Path []string
}

func (e *CycleError) Error() string {
	if len(e.Path) == 0 {
		return fmt.Sprintf("cycle detected involving node '%s'", e.Label)
	}
	return fmt.Sprintf("cycle detected involving node '%s': %s", e.Label, strings.Join(e.Path, " -> "))
}

// Is makes CycleError match ErrGraphBuild.
func (e *CycleError) Is(target error) bool { return target == ErrGraphBuild }

// UnknownHandleError is returned when a dependency refers to a handle the
// graph never issued.
type UnknownHandleError struct {
	Handle node.Handle
	// Label is the label of the node whose addition was rejected.
	Label string
}

func (e *UnknownHandleError) Error() string {
	return fmt.Sprintf("node '%s' references unknown handle %s", e.Label, e.Handle)
}

// Is makes UnknownHandleError match ErrGraphBuild.
func (e *UnknownHandleError) Is(target error) bool { return target == ErrGraphBuild }
