package pipeline

import (
	"github.com/specialistvlad/unloadcopy/internal/node"
	"github.com/specialistvlad/unloadcopy/internal/nodeid"
)

// Stage names, used as the first segment of every task label.
const (
	StageDestinationCluster = "preflight_dest_cluster"
	StageSourceCluster      = "preflight_source_cluster"
	StageDestination        = "preflight_dest"
	StageSource             = "preflight_source"
	StageCreate             = "create_if_missing"
	StageUnload             = "unload"
	StageCopy               = "copy"
	StageCleanup            = "cleanup"

	stageBarrier = "barrier"
)

var (
	clusterBarrierID  = nodeid.New(stageBarrier, "cluster_checks")
	resourceBarrierID = nodeid.New(stageBarrier, "resource_checks")
)

// Pipeline records the tasks added for one table.
type Pipeline struct {
	// Scope is the source table, "schema.table".
	Scope   string
	handles map[string]node.Handle
}

// Handle returns the task of a stage, if the pipeline has one.
func (p *Pipeline) Handle(stage string) (node.Handle, bool) {
	h, ok := p.handles[stage]
	return h, ok
}

// Stages returns the stages present in the pipeline in execution order.
func (p *Pipeline) Stages() []string {
	var out []string
	for _, s := range []string{
		StageDestinationCluster, StageSourceCluster, StageDestination, StageSource,
		StageCreate, StageUnload, StageCopy, StageCleanup,
	} {
		if _, ok := p.handles[s]; ok {
			out = append(out, s)
		}
	}
	return out
}
