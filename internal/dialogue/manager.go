package dialogue

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"astro_insight/internal/config"
	"astro_insight/internal/core"
	"astro_insight/internal/llm"
	"astro_insight/src/logger"

	"github.com/google/uuid"
)

// Action is what the caller should do after a turn
type Action string

const (
	ActionAsk     Action = "ask"
	ActionProceed Action = "proceed"
	ActionCancel  Action = "cancel"
)

const (
	CancelledReply = "Visualization request cancelled. Nothing was executed."
	proceedReply   = "Got it, generating the visualization now."
)

const followUpPrompt = `You help an astronomer specify a data visualization before any code is written.

Original request: {request}
Known so far:
{known}
Latest message: {message}
Available datasets: {datasets}

Ask exactly one short follow-up question that would most improve the chart (chart type, dataset, axes, filters or styling).
Reply with the question only.`

// Result is the outcome of one dialogue turn
type Result struct {
	State  *core.DialogueState
	Action Action
	Reply  string
}

// Manager runs the multi-turn clarification dialogue
type Manager struct {
	classifier llm.Classifier
	rules      config.DialogueRules
	extractor  *Extractor
	datasets   func() []string
}

// NewManager creates a dialogue manager. datasets lists the names users may mention.
func NewManager(classifier llm.Classifier, rules config.DialogueRules, datasets func() []string) *Manager {
	if rules.MaxTurns <= 0 {
		rules.MaxTurns = config.Default().Dialogue.MaxTurns
	}
	if datasets == nil {
		datasets = func() []string { return nil }
	}
	return &Manager{
		classifier: classifier,
		rules:      rules,
		extractor:  NewExtractor(rules.ChartKeywords, datasets),
		datasets:   datasets,
	}
}

// Start opens a dialogue for request and processes it as the first turn
func (m *Manager) Start(ctx context.Context, request string) Result {
	st := &core.DialogueState{
		ID:              uuid.NewString(),
		MaxTurns:        m.rules.MaxTurns,
		Status:          core.DialogueActive,
		OriginalRequest: request,
	}
	return m.step(ctx, st, request, true)
}

// Continue processes one more user message. The given state is not modified.
func (m *Manager) Continue(ctx context.Context, state *core.DialogueState, message string) Result {
	return m.step(ctx, clone(state), message, false)
}

func (m *Manager) step(ctx context.Context, st *core.DialogueState, message string, first bool) Result {
	log := logger.GetLogger().With().Str("dialogue_id", st.ID).Logger()

	if st.TurnCount >= st.MaxTurns {
		st.Status = core.DialogueCompleted
		log.Info().Int("turn", st.TurnCount).Msg("Dialogue turn limit reached")
		return m.finish(st, message, ActionProceed, proceedReply)
	}
	st.TurnCount++

	switch word := normalize(message); {
	case m.isKeyword(word, m.rules.ConfirmKeywords):
		st.Status = core.DialogueConfirmed
		return m.finish(st, message, ActionProceed, proceedReply)
	case m.isKeyword(word, m.rules.CancelKeywords):
		st.Status = core.DialogueCancelled
		return m.finish(st, message, ActionCancel, CancelledReply)
	}

	found := m.extractor.Extract(message)
	if !first && found.Empty() && strings.TrimSpace(message) != "" {
		found.Notes = []string{strings.TrimSpace(message)}
	}
	st.Requirements = st.Requirements.Merge(found)

	if st.TurnCount >= st.MaxTurns {
		st.Status = core.DialogueCompleted
		log.Info().Int("turn", st.TurnCount).Msg("Dialogue turn limit reached")
		return m.finish(st, message, ActionProceed, proceedReply)
	}

	var reply string
	if len(st.Requirements.ChartTypes) > 0 {
		reply = readyPrompt(st.Requirements)
	} else {
		reply = m.followUp(ctx, st, message)
	}
	st.Turns = append(st.Turns, core.DialogueTurn{
		Turn:              st.TurnCount,
		UserInput:         message,
		AssistantResponse: reply,
		Timestamp:         time.Now(),
	})
	log.Debug().Int("turn", st.TurnCount).Msg("Dialogue awaiting reply")
	return Result{State: st, Action: ActionAsk, Reply: reply}
}

func (m *Manager) finish(st *core.DialogueState, message string, action Action, reply string) Result {
	st.Turns = append(st.Turns, core.DialogueTurn{
		Turn:              st.TurnCount,
		UserInput:         message,
		AssistantResponse: reply,
		Timestamp:         time.Now(),
	})
	return Result{State: st, Action: action, Reply: reply}
}

func (m *Manager) followUp(ctx context.Context, st *core.DialogueState, message string) string {
	known := st.Requirements.Describe()
	if known == "" {
		known = "- nothing yet\n"
	}
	prompt := llm.Fill(followUpPrompt, map[string]string{
		"request":  st.OriginalRequest,
		"known":    strings.TrimRight(known, "\n"),
		"message":  message,
		"datasets": strings.Join(m.datasets(), ", "),
	})

	question, err := m.classifier.Classify(ctx, prompt)
	question = strings.TrimSpace(question)
	if err != nil || question == "" {
		if err != nil {
			logger.Warn().Err(err).Str("dialogue_id", st.ID).Msg("Follow-up generation failed, using fallback question")
		}
		question = m.fallbackQuestion(st.Requirements)
	}
	return question + "\n(Reply \"done\" to start with what we have, or \"quit\" to cancel.)"
}

func (m *Manager) fallbackQuestion(req core.Requirements) string {
	names := m.datasets()
	if len(req.ChartTypes) == 0 {
		return fmt.Sprintf("What kind of chart would you like (%s)?", strings.Join(m.rules.ChartKeywords, ", "))
	}
	if len(req.Datasets) == 0 && len(names) > 1 {
		return fmt.Sprintf("Which dataset should I use? Available: %s.", strings.Join(names, ", "))
	}
	return "Any filters or columns you want to focus on?"
}

func readyPrompt(req core.Requirements) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ready to draw a %s chart", strings.Join(req.ChartTypes, "/"))
	if len(req.Datasets) > 0 {
		fmt.Fprintf(&b, " from %s", strings.Join(req.Datasets, ", "))
	}
	if len(req.Filters) > 0 {
		fmt.Fprintf(&b, " with %s", strings.Join(req.Filters, "; "))
	}
	b.WriteString(".\nReply \"done\" to start, add more details, or \"quit\" to cancel.")
	return b.String()
}

// HandoffRequest is the generation request built from a finished dialogue
func HandoffRequest(st *core.DialogueState) string {
	if st == nil {
		return ""
	}
	known := st.Requirements.Describe()
	if known == "" {
		return st.OriginalRequest
	}
	return st.OriginalRequest + "\n\nClarified requirements:\n" + strings.TrimRight(known, "\n")
}

func (m *Manager) isKeyword(word string, keywords []string) bool {
	return word != "" && slices.ContainsFunc(keywords, func(k string) bool {
		return strings.ToLower(k) == word
	})
}

func normalize(message string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(message), " .!。！"))
}

func clone(st *core.DialogueState) *core.DialogueState {
	c := *st
	c.Turns = append([]core.DialogueTurn{}, st.Turns...)
	c.Requirements = core.Requirements{}.Merge(st.Requirements)
	return &c
}
