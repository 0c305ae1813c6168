package nodes

import (
	"astro_insight/internal/config"
	"astro_insight/internal/core"
	"astro_insight/internal/dialogue"
	"astro_insight/internal/llm"
)

// Deps are the collaborators shared by the node handlers
type Deps struct {
	Classifier llm.Classifier
	Policy     *config.Policy
	Runner     CodeRunner
	Datasets   DatasetSource
	Dialogue   *dialogue.Manager
	Recovery   core.RecoveryPolicy
}

// All builds every node of the routing graph
func All(d Deps) []core.Node {
	policy := d.Policy
	if policy == nil {
		policy = config.Default()
	}
	recovery := d.Recovery
	if recovery.MaxRetry == 0 {
		recovery = core.DefaultRecoveryPolicy()
		recovery.MaxRetry = policy.Coder.MaxRetry
	}

	return []core.Node{
		NewIdentityNode(d.Classifier, policy.Identity),
		NewQANode(d.Classifier, policy.QAHistoryTurns),
		NewTaskSelectorNode(d.Classifier, policy.Tasks),
		NewClassificationNode(d.Classifier, policy.Classification),
		NewRetrievalNode(d.Runner, d.Datasets),
		NewVisualizationNode(d.Classifier, d.Dialogue, d.Runner, d.Datasets),
		NewMultimarkNode(d.Runner, d.Datasets),
		NewRecoveryNode(recovery),
	}
}

// NewRouter builds the full routing graph
func NewRouter(d Deps) (*core.Router, error) {
	return core.NewRouter(All(d)...)
}
