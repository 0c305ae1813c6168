package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcNode struct {
	name  NodeName
	edges []NodeName
	fn    func(ctx context.Context, s *Session, input string) (Command, error)
	calls int
}

func (f *funcNode) Execute(ctx context.Context, s *Session, input string) (Command, error) {
	f.calls++
	return f.fn(ctx, s, input)
}

func (f *funcNode) GetName() NodeName { return f.name }
func (f *funcNode) Edges() []NodeName { return f.edges }

func goTo(name NodeName, edges []NodeName, next NodeName) *funcNode {
	return &funcNode{name: name, edges: edges, fn: func(context.Context, *Session, string) (Command, error) {
		return Command{Goto: next}, nil
	}}
}

// recoveryNode mirrors the production handler closely enough for router tests
func recoveryNode(retry ...NodeName) *funcNode {
	policy := DefaultRecoveryPolicy()
	return &funcNode{
		name:  NodeErrorRecovery,
		edges: append(retry, NodeEnd),
		fn: func(_ context.Context, s *Session, _ string) (Command, error) {
			d := policy.Decide(s)
			if d.Escalate {
				return Command{Goto: NodeEnd, Update: Update{
					Answer:     Ptr(EscalationMessage(s, d.Reason)),
					IsComplete: Ptr(true),
				}}, nil
			}
			return Command{Goto: d.Target, Update: Update{
				RetryCount:    Ptr(s.RetryCount + 1),
				LastErrorNode: Ptr(s.ErrorInfo.Node),
				ClearError:    true,
			}}, nil
		},
	}
}

func newTestRouter(t *testing.T, nodes ...Node) *Router {
	t.Helper()
	r, err := NewRouter(nodes...)
	require.NoError(t, err)
	return r
}

func TestDispatchRunsToTerminal(t *testing.T) {
	identity := goTo(NodeIdentityCheck, []NodeName{NodeTaskSelector}, NodeTaskSelector)
	selector := goTo(NodeTaskSelector, []NodeName{NodeClassification, NodeErrorRecovery}, NodeClassification)
	classify := &funcNode{name: NodeClassification, edges: []NodeName{NodeEnd}, fn: func(_ context.Context, _ *Session, input string) (Command, error) {
		return Command{Goto: NodeEnd, Update: Update{Answer: Ptr("classified: " + input)}}, nil
	}}
	r := newTestRouter(t, identity, selector, classify, recoveryNode())

	s := NewSession("s1")
	require.NoError(t, r.Dispatch(context.Background(), s, "  what is M31  "))

	assert.True(t, s.IsComplete)
	assert.Equal(t, NodeEnd, s.CurrentStep)
	assert.Equal(t, "classified: what is M31", s.Answer)
	assert.Equal(t, []NodeName{NodeIdentityCheck, NodeTaskSelector, NodeClassification}, s.NodeHistory)
	require.Len(t, s.Messages, 2)
	assert.Equal(t, "user", s.Messages[0].Role)
	assert.Equal(t, "assistant", s.Messages[1].Role)
}

func TestDispatchRoutesErrorsToRecoveryAndEscalates(t *testing.T) {
	identity := goTo(NodeIdentityCheck, []NodeName{NodeTaskSelector}, NodeTaskSelector)
	selector := &funcNode{name: NodeTaskSelector, edges: []NodeName{NodeErrorRecovery}, fn: func(context.Context, *Session, string) (Command, error) {
		return Command{}, NewNodeError(NodeTaskSelector, KindClassifier, "llm unreachable", errors.New("dial tcp: refused"))
	}}
	r := newTestRouter(t, identity, selector, recoveryNode())

	s := NewSession("s2")
	require.NoError(t, r.Dispatch(context.Background(), s, "hello"))

	assert.True(t, s.IsComplete)
	require.NotNil(t, s.ErrorInfo)
	assert.Equal(t, NodeTaskSelector, s.ErrorInfo.Node)
	assert.Equal(t, KindClassifier, s.ErrorInfo.Kind)
	assert.Equal(t, 0, s.RetryCount)
	assert.Contains(t, s.Answer, "Failing step: task_selector")
	assert.Contains(t, s.Answer, "llm unreachable")
	assert.Contains(t, s.Answer, "Retries attempted: 0")
}

func TestDispatchRetriesClassificationThenDetectsLoop(t *testing.T) {
	identity := goTo(NodeIdentityCheck, []NodeName{NodeTaskSelector}, NodeTaskSelector)
	selector := goTo(NodeTaskSelector, []NodeName{NodeClassification}, NodeClassification)
	classify := &funcNode{name: NodeClassification, edges: []NodeName{NodeEnd}, fn: func(context.Context, *Session, string) (Command, error) {
		return Command{}, NewNodeError(NodeClassification, KindClassifier, "timeout", nil)
	}}
	r := newTestRouter(t, identity, selector, classify, recoveryNode(NodeClassification))

	s := NewSession("s3")
	require.NoError(t, r.Dispatch(context.Background(), s, "classify NGC 1275"))

	assert.Equal(t, 2, classify.calls)
	assert.Equal(t, 1, s.RetryCount)
	assert.LessOrEqual(t, s.RetryCount, MaxRetry)
	assert.True(t, s.IsComplete)
	assert.Contains(t, s.Answer, "same step failed again")
	assert.Equal(t, []NodeName{
		NodeIdentityCheck, NodeTaskSelector, NodeClassification,
		NodeErrorRecovery, NodeClassification, NodeErrorRecovery,
	}, s.NodeHistory)
}

func TestDispatchKeepsPartialUpdateOnError(t *testing.T) {
	identity := goTo(NodeIdentityCheck, []NodeName{NodeTaskSelector}, NodeTaskSelector)
	selector := goTo(NodeTaskSelector, []NodeName{NodeRetrieval}, NodeRetrieval)
	retrieval := &funcNode{name: NodeRetrieval, edges: []NodeName{NodeEnd}, fn: func(context.Context, *Session, string) (Command, error) {
		task := NewCodeTask("s", "count rows")
		task.AddCode("print(1/0)")
		err := NewNodeError(NodeRetrieval, KindExecution, "code failed after 3 attempt(s)", nil)
		err.Exhausted = true
		return Command{Update: Update{RetryCount: Ptr(3), CodeTask: task}}, err
	}}
	r := newTestRouter(t, identity, selector, retrieval, recoveryNode())

	s := NewSession("partial")
	require.NoError(t, r.Dispatch(context.Background(), s, "count rows"))

	assert.True(t, s.IsComplete)
	assert.Equal(t, 3, s.RetryCount)
	require.NotNil(t, s.CodeTask)
	assert.Equal(t, "print(1/0)", s.CodeTask.LastCode())
	require.NotNil(t, s.ErrorInfo)
	assert.True(t, s.ErrorInfo.Exhausted)
	assert.Contains(t, s.Answer, "Retries attempted: 3")
	assert.Contains(t, s.Answer, "Failing step: retrieval")
}

func TestDispatchConvertsPanicAndUndeclaredRoute(t *testing.T) {
	identity := &funcNode{name: NodeIdentityCheck, edges: []NodeName{NodeEnd}, fn: func(context.Context, *Session, string) (Command, error) {
		panic("boom")
	}}
	r := newTestRouter(t, identity, recoveryNode())

	s := NewSession("s4")
	require.NoError(t, r.Dispatch(context.Background(), s, "hi"))
	require.NotNil(t, s.ErrorInfo)
	assert.Equal(t, KindInternal, s.ErrorInfo.Kind)
	assert.Contains(t, s.ErrorInfo.Message, "boom")
	assert.True(t, s.IsComplete)

	rogue := goTo(NodeIdentityCheck, []NodeName{NodeEnd}, NodeMultimark)
	r = newTestRouter(t, rogue, recoveryNode())
	s = NewSession("s5")
	require.NoError(t, r.Dispatch(context.Background(), s, "hi"))
	require.NotNil(t, s.ErrorInfo)
	assert.Equal(t, KindConfiguration, s.ErrorInfo.Kind)
	assert.True(t, s.IsComplete)
}

func TestDispatchSuspendsAndIgnoresEmptyReply(t *testing.T) {
	identity := goTo(NodeIdentityCheck, []NodeName{NodeVisualization}, NodeVisualization)
	viz := &funcNode{name: NodeVisualization, edges: []NodeName{NodeVisualization, NodeEnd}}
	viz.fn = func(_ context.Context, _ *Session, input string) (Command, error) {
		if input == "done" {
			return Command{Goto: NodeEnd, Update: Update{Answer: Ptr("plotted")}}, nil
		}
		return Command{Goto: NodeVisualization, Update: Update{
			Answer:             Ptr("which chart?"),
			AwaitingUserChoice: Ptr(true),
		}}, nil
	}
	r := newTestRouter(t, identity, viz, recoveryNode())

	s := NewSession("s6")
	require.NoError(t, r.Dispatch(context.Background(), s, "plot something"))
	assert.True(t, s.AwaitingUserChoice)
	assert.False(t, s.IsComplete)
	assert.Equal(t, NodeVisualization, s.CurrentStep)

	history := append([]NodeName{}, s.NodeHistory...)
	audits := len(s.ExecutionHistory)
	require.NoError(t, r.Dispatch(context.Background(), s, "   "))
	assert.Equal(t, history, s.NodeHistory)
	assert.True(t, s.AwaitingUserChoice)
	assert.Equal(t, NodeVisualization, s.CurrentStep)
	assert.Equal(t, InvalidInputPrompt, s.Answer)
	assert.Len(t, s.ExecutionHistory, audits+1)
	assert.Equal(t, 1, viz.calls)

	require.NoError(t, r.Dispatch(context.Background(), s, "done"))
	assert.True(t, s.IsComplete)
	assert.Equal(t, "plotted", s.Answer)
	assert.Equal(t, 2, viz.calls)
}

func TestDispatchKeepOpenAndNewTurn(t *testing.T) {
	identity := &funcNode{name: NodeIdentityCheck, edges: []NodeName{NodeEnd}, fn: func(_ context.Context, _ *Session, input string) (Command, error) {
		return Command{Goto: NodeEnd, KeepOpen: input == "stay", Update: Update{Answer: Ptr("ok")}}, nil
	}}
	r := newTestRouter(t, identity, recoveryNode())

	s := NewSession("s7")
	require.NoError(t, r.Dispatch(context.Background(), s, "stay"))
	assert.False(t, s.IsComplete)
	assert.Equal(t, NodeEnd, s.CurrentStep)

	require.NoError(t, r.Dispatch(context.Background(), s, "go"))
	assert.True(t, s.IsComplete)

	// complete sessions are not touched without new input
	before := *s
	require.NoError(t, r.Dispatch(context.Background(), s, ""))
	assert.Equal(t, before.NodeHistory, s.NodeHistory)
	assert.Equal(t, before.UpdatedAt, s.UpdatedAt)
	assert.Equal(t, 2, identity.calls)
}

func TestDispatchStepLimit(t *testing.T) {
	identity := goTo(NodeIdentityCheck, []NodeName{NodeTaskSelector}, NodeTaskSelector)
	selector := goTo(NodeTaskSelector, []NodeName{NodeIdentityCheck}, NodeIdentityCheck)
	r := newTestRouter(t, identity, selector, recoveryNode())

	s := NewSession("s8")
	require.NoError(t, r.Dispatch(context.Background(), s, "spin"))
	assert.True(t, s.IsComplete)
	require.NotNil(t, s.ErrorInfo)
	assert.Equal(t, KindLoop, s.ErrorInfo.Kind)
	assert.Len(t, s.NodeHistory, DefaultMaxSteps)
}

func TestDispatchHonoursCancelledContext(t *testing.T) {
	r := newTestRouter(t, goTo(NodeIdentityCheck, []NodeName{NodeEnd}, NodeEnd), recoveryNode())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewSession("s9")
	err := r.Dispatch(ctx, s, "hi")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, s.IsComplete)
}

func TestNewRouterValidatesGraph(t *testing.T) {
	_, err := NewRouter(goTo(NodeIdentityCheck, []NodeName{NodeQAAgent}, NodeQAAgent), recoveryNode())
	assert.ErrorContains(t, err, "unregistered node qa_agent")

	_, err = NewRouter(goTo(NodeIdentityCheck, []NodeName{NodeEnd}, NodeEnd))
	assert.ErrorContains(t, err, "error recovery")

	_, err = NewRouter(recoveryNode())
	assert.ErrorContains(t, err, "start node")

	_, err = NewRouter(goTo(NodeIdentityCheck, nil, NodeEnd), goTo(NodeIdentityCheck, nil, NodeEnd), recoveryNode())
	assert.ErrorContains(t, err, "registered twice")
}
