package nodes

import (
	"context"

	"astro_insight/internal/config"
	"astro_insight/internal/core"
	"astro_insight/internal/llm"
	"astro_insight/src/logger"
)

var taskRoutes = map[core.TaskType]core.NodeName{
	core.TaskClassification: core.NodeClassification,
	core.TaskRetrieval:      core.NodeRetrieval,
	core.TaskVisualization:  core.NodeVisualization,
	core.TaskMultimark:      core.NodeMultimark,
}

// TaskSelectorNode picks the task node for a professional request
type TaskSelectorNode struct {
	classifier llm.Classifier
	labels     config.LabelSet
}

func NewTaskSelectorNode(classifier llm.Classifier, labels config.LabelSet) *TaskSelectorNode {
	return &TaskSelectorNode{classifier: classifier, labels: labels}
}

func (n *TaskSelectorNode) Execute(ctx context.Context, s *core.Session, input string) (core.Command, error) {
	reply, err := classify(ctx, n.classifier, n.GetName(), llm.Fill(taskPrompt, map[string]string{
		"input":  input,
		"labels": labelList(n.labels.Labels),
	}))
	if err != nil {
		return core.Command{}, err
	}

	task := core.TaskType(llm.MatchLabel(reply, n.labels.Labels, n.labels.Default))
	next, ok := taskRoutes[task]
	if !ok {
		return core.Command{}, core.NewNodeError(n.GetName(), core.KindConfiguration, "no node handles task "+string(task), nil)
	}
	logger.WithSession(s.ID).Info().Str("task_type", string(task)).Msg("Task selected")

	return core.Command{Goto: next, Update: core.Update{
		TaskType: core.Ptr(task),
		Audit:    []core.AuditEntry{core.Audit(n.GetName(), "select_task", input, string(task))},
	}}, nil
}

func (n *TaskSelectorNode) GetName() core.NodeName {
	return core.NodeTaskSelector
}

func (n *TaskSelectorNode) Edges() []core.NodeName {
	return []core.NodeName{
		core.NodeClassification,
		core.NodeRetrieval,
		core.NodeVisualization,
		core.NodeMultimark,
		core.NodeErrorRecovery,
	}
}
