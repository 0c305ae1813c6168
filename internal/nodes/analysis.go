package nodes

import (
	"context"

	"astro_insight/internal/core"
)

// AnalysisNode runs a request straight through the synthesis loop.
// It backs both the retrieval and the multimark steps.
type AnalysisNode struct {
	name     core.NodeName
	runner   CodeRunner
	datasets DatasetSource
	prefix   string
}

// NewRetrievalNode analyses tabular data with generated code
func NewRetrievalNode(runner CodeRunner, datasets DatasetSource) *AnalysisNode {
	return &AnalysisNode{name: core.NodeRetrieval, runner: runner, datasets: datasets}
}

// NewMultimarkNode annotates images or trains models with generated code
func NewMultimarkNode(runner CodeRunner, datasets DatasetSource) *AnalysisNode {
	return &AnalysisNode{name: core.NodeMultimark, runner: runner, datasets: datasets, prefix: multimarkPrefix}
}

func (n *AnalysisNode) Execute(ctx context.Context, s *core.Session, input string) (core.Command, error) {
	datasets := n.datasets.Filter(mentioned(input, n.datasets.Names()))
	return runCode(ctx, n.runner, s, n.name, n.prefix+input, datasets, core.Update{})
}

func (n *AnalysisNode) GetName() core.NodeName {
	return n.name
}

func (n *AnalysisNode) Edges() []core.NodeName {
	return []core.NodeName{core.NodeEnd}
}
