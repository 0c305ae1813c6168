package nodes

import (
	"context"
	"errors"
	"sync"
	"testing"

	"astro_insight/internal/coder"
	"astro_insight/internal/config"
	"astro_insight/internal/core"
	"astro_insight/internal/dataset"
	"astro_insight/internal/dialogue"
	"astro_insight/internal/executor"
	"astro_insight/internal/llm/llmtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	onIdentity   = "Decide who is asking"
	onTask       = "Identify the task type"
	onClassify   = "Classify the celestial object"
	onQA         = "friendly astronomy assistant"
	onFollowUp   = "follow-up question"
	onComplexity = "Rate the complexity"
	onGenerate   = "Write a complete Python 3 script"
	onRewrite    = "failed. Fix it."
	onExplain    = "Explain the result of an astronomy visualization"

	script = "import pandas as pd\nprint(pd.read_csv('gaia.csv').head())"
)

type stubRunner struct {
	mu     sync.Mutex
	result core.ExecutionResult
	calls  int
}

func (r *stubRunner) Available() error { return nil }

func (r *stubRunner) Execute(_ context.Context, _ executor.Request) core.ExecutionResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.result
}

var gaia = core.Dataset{Name: "gaia_dr3", Path: "/data/gaia_dr3.csv", Columns: []string{"source_id", "ra", "dec", "phot_g_mean_mag"}}

type harness struct {
	router *core.Router
	cls    *llmtest.Scripted
	runner *stubRunner
}

func newHarness(t *testing.T, cls *llmtest.Scripted, datasets ...core.Dataset) *harness {
	t.Helper()
	policy := config.Default()
	validator, err := coder.NewPythonValidator(policy.Coder.ForbiddenPatterns)
	require.NoError(t, err)

	runner := &stubRunner{result: core.ExecutionResult{
		Status:         core.StatusSuccess,
		Stdout:         "source_id ra dec\n",
		GeneratedFiles: []string{"/out/plot.png"},
	}}
	catalog := dataset.Static(datasets...)
	router, err := NewRouter(Deps{
		Classifier: cls,
		Policy:     policy,
		Runner:     coder.NewLoop(cls, runner, validator, coder.Config{MaxRetry: policy.Coder.MaxRetry}),
		Datasets:   catalog,
		Dialogue:   dialogue.NewManager(cls, policy.Dialogue, catalog.Names),
	})
	require.NoError(t, err)
	return &harness{router: router, cls: cls, runner: runner}
}

func (h *harness) send(t *testing.T, s *core.Session, input string) {
	t.Helper()
	require.NoError(t, h.router.Dispatch(context.Background(), s, input))
}

func professional(task string) *llmtest.Scripted {
	return llmtest.New().
		On(onIdentity, "professional").
		On(onTask, task).
		On(onComplexity, "simple").
		On(onGenerate, "```python\n"+script+"\n```")
}

func TestAmateurQuestionIsAnsweredInProse(t *testing.T) {
	cls := llmtest.New().
		On(onIdentity, "amateur").
		On(onQA, "A quasar is an extremely luminous active galactic nucleus.", "It is powered by a supermassive black hole.")
	h := newHarness(t, cls, gaia)

	s := core.NewSession("qa")
	h.send(t, s, "what is a quasar?")
	assert.True(t, s.IsComplete)
	assert.Equal(t, "amateur", s.UserType)
	assert.Equal(t, core.TaskQA, s.TaskType)
	assert.Contains(t, s.Answer, "luminous")

	h.send(t, s, "what powers it?")
	assert.Contains(t, s.Answer, "black hole")

	calls := h.cls.Calls()
	last := calls[len(calls)-1]
	assert.Contains(t, last, "user: what is a quasar?")
	assert.Contains(t, last, "assistant: A quasar is")
	assert.Contains(t, last, "Question: what powers it?")
	assert.Len(t, s.Messages, 4)
}

func TestFirstRequestRunsToSuccess(t *testing.T) {
	h := newHarness(t, professional("retrieval"), gaia)

	s := core.NewSession("scenario-1")
	h.send(t, s, "show the first 5 rows")

	require.True(t, s.IsComplete)
	assert.Nil(t, s.ErrorInfo)
	assert.Equal(t, core.TaskRetrieval, s.TaskType)
	require.NotNil(t, s.CodeTask)
	assert.Equal(t, 1, s.CodeTask.Attempt)
	assert.Equal(t, core.ComplexitySimple, s.CodeTask.Complexity)
	assert.Equal(t, []string{"/out/plot.png"}, s.GeneratedFiles)
	assert.Equal(t, 0, s.RetryCount)
	assert.Equal(t, []core.NodeName{core.NodeIdentityCheck, core.NodeTaskSelector, core.NodeRetrieval}, s.NodeHistory)
	assert.Contains(t, s.Answer, "dataset gaia_dr3")
}

func TestRepeatedExecutionFailureEscalates(t *testing.T) {
	cls := professional("retrieval").On(onRewrite, "```python\n"+script+"\nprint('retry')\n```")
	h := newHarness(t, cls, gaia)
	h.runner.result = core.ExecutionResult{Status: core.StatusError, ExitCode: 1, Stderr: "KeyError: 'mag_r'"}

	s := core.NewSession("scenario-3")
	h.send(t, s, "average mag_r per field")

	assert.True(t, s.IsComplete)
	assert.Equal(t, 3, s.RetryCount)
	assert.Equal(t, 3, h.runner.calls)
	require.NotNil(t, s.ErrorInfo)
	assert.Equal(t, core.NodeRetrieval, s.ErrorInfo.Node)
	assert.True(t, s.ErrorInfo.Exhausted)
	assert.Contains(t, s.Answer, "retry budget exhausted")
	assert.Contains(t, s.Answer, "Failing step: retrieval")
	assert.Contains(t, s.Answer, "KeyError: 'mag_r'")
	assert.Contains(t, s.Answer, "Retries attempted: 3")
	assert.Len(t, s.CodeTask.CodeHistory, 3)
}

func TestVisualizationAsksOnceThenRunsOnDone(t *testing.T) {
	cls := professional("visualization").On(onFollowUp, "Which columns should be on the axes?")
	h := newHarness(t, cls, gaia)

	s := core.NewSession("scenario-4")
	h.send(t, s, "visualize something interesting")
	assert.True(t, s.AwaitingUserChoice)
	assert.False(t, s.IsComplete)
	assert.Equal(t, core.NodeVisualization, s.CurrentStep)
	assert.Contains(t, s.Answer, "Which columns")
	require.NotNil(t, s.Dialogue)
	assert.Equal(t, 1, s.Dialogue.TurnCount)
	assert.Equal(t, 0, h.runner.calls)

	h.send(t, s, "done")
	assert.True(t, s.IsComplete)
	assert.False(t, s.AwaitingUserChoice)
	assert.Equal(t, 2, s.Dialogue.TurnCount)
	assert.Equal(t, core.DialogueConfirmed, s.Dialogue.Status)
	assert.Equal(t, 1, h.runner.calls)
	assert.Equal(t, []string{"/out/plot.png"}, s.GeneratedFiles)
	assert.Equal(t, 1, h.cls.CallsContaining(onFollowUp))

	// the explanation call failed, so the answer carries the run only
	assert.Equal(t, 1, h.cls.CallsContaining(onExplain))
	assert.NotContains(t, s.Answer, "Summary:")
	assert.Contains(t, s.Answer, "/out/plot.png")
}

func TestVisualizationAppendsExplanation(t *testing.T) {
	cls := professional("visualization").
		On(onExplain, "SUMMARY: The scatter shows two clumps of sources.\nINSIGHT: The fainter clump sits near the galactic plane.\nINSIGHT: Few sources are brighter than G=10.")
	h := newHarness(t, cls, gaia)

	s := core.NewSession("viz-explain")
	h.send(t, s, "scatter plot of ra against dec")
	if s.AwaitingUserChoice {
		h.send(t, s, "done")
	}

	require.True(t, s.IsComplete)
	assert.Nil(t, s.ErrorInfo)
	assert.Contains(t, s.Answer, "Analysis finished in 1 attempt(s)")
	assert.Contains(t, s.Answer, "Summary:\nThe scatter shows two clumps of sources.")
	assert.Contains(t, s.Answer, "Key insight: The fainter clump sits near the galactic plane.")
	assert.NotContains(t, s.Answer, "G=10")

	calls := h.cls.Calls()
	prompt := calls[len(calls)-1]
	assert.Contains(t, prompt, onExplain)
	assert.Contains(t, prompt, "source_id ra dec")
	assert.Contains(t, prompt, "- /out/plot.png")

	last := s.ExecutionHistory[len(s.ExecutionHistory)-1]
	assert.Equal(t, "route", last.Action)
	var explained bool
	for _, a := range s.ExecutionHistory {
		explained = explained || a.Action == "explanation"
	}
	assert.True(t, explained)
}

func TestParseExplanation(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  Explanation
	}{
		{
			name:  "markers",
			reply: "SUMMARY: Two populations.\nINSIGHT: Red giants dominate.",
			want:  Explanation{Summary: "Two populations.", Insights: []string{"Red giants dominate."}},
		},
		{
			name:  "multi-line summary and lower case",
			reply: "summary: The histogram peaks at 15.\nIt has a long tail.\ninsight: Sample is magnitude limited.",
			want:  Explanation{Summary: "The histogram peaks at 15. It has a long tail.", Insights: []string{"Sample is magnitude limited."}},
		},
		{
			name:  "no markers",
			reply: "  The plot shows a clear main sequence.  ",
			want:  Explanation{Summary: "The plot shows a clear main sequence."},
		},
		{
			name:  "empty",
			reply: "",
			want:  Explanation{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseExplanation(tt.reply)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, "Summary:\nA.\nKey insight: B.", Explanation{Summary: "A.", Insights: []string{"B.", "C."}}.Render())
	assert.Equal(t, "Key insight: B.", Explanation{Insights: []string{"B."}}.Render())
	assert.True(t, Explanation{}.Empty())
}

func TestVisualizationCancelStopsWithoutExecution(t *testing.T) {
	cls := professional("visualization").On(onFollowUp, "Which chart type?")
	h := newHarness(t, cls, gaia)

	s := core.NewSession("viz-cancel")
	h.send(t, s, "plot gaia_dr3")
	h.send(t, s, "quit")

	assert.True(t, s.IsComplete)
	assert.Equal(t, dialogue.CancelledReply, s.Answer)
	assert.Nil(t, s.ErrorInfo)
	assert.Equal(t, 0, h.runner.calls)
}

func TestNoDatasetsIsImmediateConfigurationFailure(t *testing.T) {
	h := newHarness(t, professional("retrieval"))

	s := core.NewSession("scenario-5")
	h.send(t, s, "count rows")

	assert.True(t, s.IsComplete)
	assert.Equal(t, 0, s.RetryCount)
	require.NotNil(t, s.ErrorInfo)
	assert.Equal(t, core.KindConfiguration, s.ErrorInfo.Kind)
	assert.Contains(t, s.Answer, "configuration error")
	assert.NotContains(t, s.Answer, "retry budget exhausted")
	assert.Equal(t, 0, h.runner.calls)
	assert.Equal(t, 0, h.cls.CallsContaining(onGenerate))
}

func TestClassificationRetriesOnce(t *testing.T) {
	cls := professional("classification")
	cls.OnError(onClassify, errors.New("deadline exceeded"))
	h := newHarness(t, cls, gaia)

	s := core.NewSession("classify-fail")
	h.send(t, s, "what type of object is NGC 1275?")

	assert.True(t, s.IsComplete)
	assert.Equal(t, 1, s.RetryCount)
	assert.Equal(t, 2, h.cls.CallsContaining(onClassify))
	assert.Contains(t, s.Answer, "same step failed again")
	assert.Contains(t, s.Answer, "Failing step: classification")
}

func TestClassificationRecoversOnRetry(t *testing.T) {
	cls := llmtest.New().
		On(onIdentity, "professional").
		On(onTask, "classification").
		On(onClassify, "no idea", "galaxy: it shows spiral arms and a bright bulge")
	h := newHarness(t, cls, gaia)

	s := core.NewSession("classify-retry")
	h.send(t, s, "classify M51")

	assert.True(t, s.IsComplete)
	assert.Nil(t, s.ErrorInfo)
	assert.Equal(t, 1, s.RetryCount)
	assert.Equal(t, core.NodeClassification, s.LastErrorNode)
	assert.Equal(t, "Classification: galaxy\nit shows spiral arms and a bright bulge", s.Answer)
}

func TestTaskSelectorFailureEscalates(t *testing.T) {
	cls := llmtest.New().
		On(onIdentity, "professional").
		OnError(onTask, errors.New("connection refused"))
	h := newHarness(t, cls, gaia)

	s := core.NewSession("selector-fail")
	h.send(t, s, "plot stuff")

	assert.True(t, s.IsComplete)
	assert.Equal(t, 0, s.RetryCount)
	assert.Contains(t, s.Answer, "step is not retryable")
	assert.Contains(t, s.Answer, "connection refused")
}

func TestEmptyFirstInputIsAnsweredLocally(t *testing.T) {
	h := newHarness(t, llmtest.New(), gaia)

	s := core.NewSession("empty")
	h.send(t, s, "   ")
	assert.True(t, s.IsComplete)
	assert.Equal(t, EmptyInputReply, s.Answer)
	assert.Nil(t, s.ErrorInfo)
	assert.Empty(t, h.cls.Calls())
}

func TestMultimarkNarrowsToMentionedDataset(t *testing.T) {
	images := core.Dataset{Name: "galaxy_zoo", Path: "/data/galaxy_zoo.csv", Columns: []string{"image", "label"}}
	cls := professional("multimark")
	h := newHarness(t, cls, gaia, images)

	s := core.NewSession("multimark")
	h.send(t, s, "label the spiral arms in galaxy_zoo images")

	assert.True(t, s.IsComplete)
	require.NotNil(t, s.CodeTask)
	assert.Equal(t, "galaxy_zoo", s.CodeTask.Dataset.Name)
	assert.Contains(t, s.CodeTask.Request, "Image annotation task")
	assert.Equal(t, 0, h.cls.CallsContaining("You are choosing the dataset"))
}

func TestRecoveryEdgesFollowPolicy(t *testing.T) {
	n := NewRecoveryNode(core.DefaultRecoveryPolicy())
	assert.Equal(t, []core.NodeName{core.NodeClassification, core.NodeEnd}, n.Edges())
}
