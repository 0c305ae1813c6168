package nodes

import (
	"context"

	"astro_insight/internal/core"
	"astro_insight/internal/dialogue"
	"astro_insight/internal/llm"
	"astro_insight/src/logger"
)

// VisualizationNode clarifies a plotting request over several turns, then runs the synthesis loop
type VisualizationNode struct {
	classifier llm.Classifier
	dialogue   *dialogue.Manager
	runner     CodeRunner
	datasets   DatasetSource
}

// NewVisualizationNode builds the node; classifier explains finished charts and may be nil
func NewVisualizationNode(classifier llm.Classifier, manager *dialogue.Manager, runner CodeRunner, datasets DatasetSource) *VisualizationNode {
	return &VisualizationNode{classifier: classifier, dialogue: manager, runner: runner, datasets: datasets}
}

func (n *VisualizationNode) Execute(ctx context.Context, s *core.Session, input string) (core.Command, error) {
	var result dialogue.Result
	if s.Dialogue != nil && s.Dialogue.Status == core.DialogueActive {
		result = n.dialogue.Continue(ctx, s.Dialogue, input)
	} else {
		result = n.dialogue.Start(ctx, input)
	}

	st := result.State
	audit := core.Audit(n.GetName(), "dialogue_"+string(result.Action), input, result.Reply)
	logger.WithSession(s.ID).Debug().
		Str("dialogue_id", st.ID).
		Int("turn", st.TurnCount).
		Str("action", string(result.Action)).
		Msg("Dialogue turn")

	switch result.Action {
	case dialogue.ActionAsk:
		return core.Command{Goto: n.GetName(), Update: core.Update{
			Dialogue:           st,
			Answer:             core.Ptr(result.Reply),
			AwaitingUserChoice: core.Ptr(true),
			Audit:              []core.AuditEntry{audit},
		}}, nil
	case dialogue.ActionCancel:
		return core.Command{Goto: core.NodeEnd, Update: core.Update{
			Dialogue: st,
			Answer:   core.Ptr(result.Reply),
			Audit:    []core.AuditEntry{audit},
		}}, nil
	}

	datasets := n.datasets.Filter(st.Requirements.Datasets)
	cmd, err := runCode(ctx, n.runner, s, n.GetName(), dialogue.HandoffRequest(st), datasets, core.Update{
		Dialogue: st,
		Audit:    []core.AuditEntry{audit},
	})
	if err != nil || cmd.Update.Answer == nil {
		return cmd, err
	}

	exp := explain(ctx, n.classifier, s.ID, cmd.Update.CodeTask)
	if !exp.Empty() {
		rendered := exp.Render()
		cmd.Update.Answer = core.Ptr(*cmd.Update.Answer + "\n\n" + rendered)
		cmd.Update.Audit = append(cmd.Update.Audit, core.Audit(n.GetName(), "explanation", "", rendered))
	}
	return cmd, nil
}

func (n *VisualizationNode) GetName() core.NodeName {
	return core.NodeVisualization
}

func (n *VisualizationNode) Edges() []core.NodeName {
	return []core.NodeName{core.NodeVisualization, core.NodeEnd}
}
