package core

import (
	"context"
	"time"
)

// NodeName identifies a handler in the routing graph
type NodeName string

const (
	NodeIdentityCheck  NodeName = "identity_check"
	NodeQAAgent        NodeName = "qa_agent"
	NodeTaskSelector   NodeName = "task_selector"
	NodeClassification NodeName = "classification"
	NodeRetrieval      NodeName = "retrieval"
	NodeVisualization  NodeName = "visualization"
	NodeMultimark      NodeName = "multimark"
	NodeErrorRecovery  NodeName = "error_recovery"

	// NodeEnd is the terminal marker
	NodeEnd NodeName = "__end__"
)

// AllNodes lists every routable node name
var AllNodes = []NodeName{
	NodeIdentityCheck,
	NodeQAAgent,
	NodeTaskSelector,
	NodeClassification,
	NodeRetrieval,
	NodeVisualization,
	NodeMultimark,
	NodeErrorRecovery,
}

// Valid reports whether n is a known node or the terminal marker
func (n NodeName) Valid() bool {
	if n == NodeEnd {
		return true
	}
	for _, known := range AllNodes {
		if n == known {
			return true
		}
	}
	return false
}

// Node is a single handler in the routing graph.
// Execute must treat the session as read-only; all changes go through the returned Command.
// When Execute returns an error the router still applies the command's Update and then
// routes to error_recovery.
type Node interface {
	Execute(ctx context.Context, session *Session, input string) (Command, error)
	GetName() NodeName
	// Edges lists every node this handler may route to
	Edges() []NodeName
}

// Command is what a node hands back to the router
type Command struct {
	Update Update
	Goto   NodeName
	// KeepOpen leaves the session incomplete when Goto is NodeEnd
	KeepOpen bool
}

// TaskType is the task selected by task_selector
type TaskType string

const (
	TaskClassification TaskType = "classification"
	TaskRetrieval      TaskType = "retrieval"
	TaskVisualization  TaskType = "visualization"
	TaskMultimark      TaskType = "multimark"
	TaskQA             TaskType = "qa"
)

// Complexity of a code-synthesis request; only shapes the generation prompt
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// ExecStatus is the lifecycle status of an ExecutionResult
type ExecStatus string

const (
	StatusPending ExecStatus = "pending"
	StatusRunning ExecStatus = "running"
	StatusSuccess ExecStatus = "success"
	StatusError   ExecStatus = "error"
	StatusTimeout ExecStatus = "timeout"
)

// Terminal reports whether the status is final
func (s ExecStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusError || s == StatusTimeout
}

// Dataset describes one read-only tabular input
type Dataset struct {
	Name    string   `json:"name"`
	Path    string   `json:"path"`
	Columns []string `json:"columns"`
}

// ExecutionResult is the outcome of running one candidate script
type ExecutionResult struct {
	Status         ExecStatus    `json:"status"`
	Stdout         string        `json:"stdout"`
	Stderr         string        `json:"stderr,omitempty"`
	ExitCode       int           `json:"exit_code"`
	Duration       time.Duration `json:"duration"`
	GeneratedFiles []string      `json:"generated_files"`
	GeneratedTexts []string      `json:"generated_texts"`
	WorkDir        string        `json:"work_dir"`
	Truncated      bool          `json:"truncated,omitempty"`
	Message        string        `json:"message,omitempty"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at"`
}

// NewExecutionResult starts a result in the running state
func NewExecutionResult(workDir string) ExecutionResult {
	return ExecutionResult{
		Status:    StatusRunning,
		WorkDir:   workDir,
		StartedAt: time.Now(),
	}
}

// Finalize moves a running result to a terminal status. It is a no-op once final.
func (r *ExecutionResult) Finalize(status ExecStatus, message string) {
	if r.Status.Terminal() {
		return
	}
	r.Status = status
	r.Message = message
	r.FinishedAt = time.Now()
	r.Duration = r.FinishedAt.Sub(r.StartedAt)
}

// ErrorMessage is the text fed back into a rewrite prompt
func (r ExecutionResult) ErrorMessage() string {
	switch {
	case r.Status == StatusSuccess:
		return ""
	case r.Stderr != "" && r.Message != "":
		return r.Message + "\n" + r.Stderr
	case r.Stderr != "":
		return r.Stderr
	default:
		return r.Message
	}
}

// CodeVersion is one generated or rewritten script
type CodeVersion struct {
	Code    string `json:"code"`
	Attempt int    `json:"attempt"`
}

// AttemptFailure records why an attempt did not succeed
type AttemptFailure struct {
	Type    string `json:"type"` // syntax_error, execution_error, timeout, generation_error
	Code    string `json:"code"`
	Message string `json:"message"`
	Attempt int    `json:"attempt"`
}

// CodeTask is one generate, validate, execute, rewrite cycle for a single request
type CodeTask struct {
	SessionID        string            `json:"session_id"`
	Request          string            `json:"request"`
	Dataset          *Dataset          `json:"dataset,omitempty"`
	Complexity       Complexity        `json:"complexity,omitempty"`
	CodeHistory      []CodeVersion     `json:"code_history"`
	Failures         []AttemptFailure  `json:"failures,omitempty"`
	ExecutionHistory []ExecutionResult `json:"execution_history"`
	Attempt          int               `json:"attempt"`
	StartedAt        time.Time         `json:"started_at"`
}

// NewCodeTask creates an empty task bound to a session
func NewCodeTask(sessionID, request string) *CodeTask {
	return &CodeTask{
		SessionID: sessionID,
		Request:   request,
		StartedAt: time.Now(),
	}
}

// AddCode records a new generation and advances the attempt counter
func (t *CodeTask) AddCode(code string) {
	t.Attempt++
	t.CodeHistory = append(t.CodeHistory, CodeVersion{Code: code, Attempt: t.Attempt})
}

// LastCode returns the most recent generated code
func (t *CodeTask) LastCode() string {
	if len(t.CodeHistory) == 0 {
		return ""
	}
	return t.CodeHistory[len(t.CodeHistory)-1].Code
}

// LastResult returns the most recent execution result, if any
func (t *CodeTask) LastResult() *ExecutionResult {
	if len(t.ExecutionHistory) == 0 {
		return nil
	}
	return &t.ExecutionHistory[len(t.ExecutionHistory)-1]
}

// ErrorInfo describes the failure that sent the session to error_recovery
type ErrorInfo struct {
	Node      NodeName  `json:"node"`
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	Exhausted bool      `json:"exhausted,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AuditEntry is one line of the session's execution history
type AuditEntry struct {
	Node      NodeName  `json:"node"`
	Action    string    `json:"action"`
	Input     string    `json:"input,omitempty"`
	Output    string    `json:"output,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Message is one line of the conversation transcript
type Message struct {
	Role      string    `json:"role"` // user, assistant
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// DialogueTurn is one clarification exchange
type DialogueTurn struct {
	Turn              int       `json:"turn"`
	UserInput         string    `json:"user_input"`
	AssistantResponse string    `json:"assistant_response"`
	Timestamp         time.Time `json:"timestamp"`
}

// DialogueStatus tracks where a clarification dialogue stands
type DialogueStatus string

const (
	DialogueActive    DialogueStatus = "active"
	DialogueConfirmed DialogueStatus = "confirmed"
	DialogueCancelled DialogueStatus = "cancelled"
	DialogueCompleted DialogueStatus = "completed"
)

// DialogueState is the clarification sub-state of a visualization session
type DialogueState struct {
	ID              string         `json:"dialogue_id"`
	TurnCount       int            `json:"turn_count"`
	MaxTurns        int            `json:"max_turns"`
	Status          DialogueStatus `json:"status"`
	OriginalRequest string         `json:"original_request"`
	Requirements    Requirements   `json:"requirements"`
	Turns           []DialogueTurn `json:"dialogue_history"`
}

// Session is the record of one user's interaction thread
type Session struct {
	ID                 string         `json:"session_id"`
	UserInput          string         `json:"user_input"`
	CurrentStep        NodeName       `json:"current_step"`
	NodeHistory        []NodeName     `json:"node_history"`
	RetryCount         int            `json:"retry_count"`
	LastErrorNode      NodeName       `json:"last_error_node,omitempty"`
	IsComplete         bool           `json:"is_complete"`
	AwaitingUserChoice bool           `json:"awaiting_user_choice"`
	ErrorInfo          *ErrorInfo     `json:"error_info,omitempty"`
	ExecutionHistory   []AuditEntry   `json:"execution_history"`
	UserType           string         `json:"user_type,omitempty"`
	TaskType           TaskType       `json:"task_type,omitempty"`
	Answer             string         `json:"answer"`
	GeneratedFiles     []string       `json:"generated_files"`
	GeneratedTexts     []string       `json:"generated_texts"`
	Dialogue           *DialogueState `json:"dialogue,omitempty"`
	CodeTask           *CodeTask      `json:"code_task,omitempty"`
	Messages           []Message      `json:"messages"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// NewSession creates a session positioned at the start node
func NewSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:          id,
		CurrentStep: NodeIdentityCheck,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// RecentMessages returns at most n trailing transcript messages
func (s *Session) RecentMessages(n int) []Message {
	if n <= 0 || len(s.Messages) <= n {
		return s.Messages
	}
	return s.Messages[len(s.Messages)-n:]
}

// beginTurn resets per-request state before a fresh pass through the graph
func (s *Session) beginTurn(start NodeName) {
	s.CurrentStep = start
	s.IsComplete = false
	s.AwaitingUserChoice = false
	s.RetryCount = 0
	s.LastErrorNode = ""
	s.ErrorInfo = nil
	s.Answer = ""
	s.TaskType = ""
	s.GeneratedFiles = nil
	s.GeneratedTexts = nil
	s.Dialogue = nil
	s.CodeTask = nil
}

func (s *Session) audit(node NodeName, action, input, output string) {
	s.ExecutionHistory = append(s.ExecutionHistory, AuditEntry{
		Node:      node,
		Action:    action,
		Input:     input,
		Output:    output,
		Timestamp: time.Now(),
	})
}

// Update is the state delta a node asks the router to apply.
// Nil pointers and nil slices leave the session field untouched.
type Update struct {
	UserType           *string
	TaskType           *TaskType
	Answer             *string
	AwaitingUserChoice *bool
	IsComplete         *bool
	RetryCount         *int
	LastErrorNode      *NodeName
	ErrorInfo          *ErrorInfo
	ClearError         bool
	Dialogue           *DialogueState
	CodeTask           *CodeTask
	GeneratedFiles     []string
	GeneratedTexts     []string
	Audit              []AuditEntry
}

// Apply writes the delta into the session
func (u Update) Apply(s *Session) {
	if u.UserType != nil {
		s.UserType = *u.UserType
	}
	if u.TaskType != nil {
		s.TaskType = *u.TaskType
	}
	if u.Answer != nil {
		s.Answer = *u.Answer
	}
	if u.AwaitingUserChoice != nil {
		s.AwaitingUserChoice = *u.AwaitingUserChoice
	}
	if u.IsComplete != nil {
		s.IsComplete = *u.IsComplete
	}
	if u.RetryCount != nil {
		s.RetryCount = *u.RetryCount
	}
	if u.LastErrorNode != nil {
		s.LastErrorNode = *u.LastErrorNode
	}
	if u.ClearError {
		s.ErrorInfo = nil
	}
	if u.ErrorInfo != nil {
		s.ErrorInfo = u.ErrorInfo
	}
	if u.Dialogue != nil {
		s.Dialogue = u.Dialogue
	}
	if u.CodeTask != nil {
		s.CodeTask = u.CodeTask
	}
	if u.GeneratedFiles != nil {
		s.GeneratedFiles = u.GeneratedFiles
	}
	if u.GeneratedTexts != nil {
		s.GeneratedTexts = u.GeneratedTexts
	}
	s.ExecutionHistory = append(s.ExecutionHistory, u.Audit...)
}

// Ptr returns a pointer to v, for building Updates
func Ptr[T any](v T) *T {
	return &v
}

// Audit builds a single audit entry stamped now
func Audit(node NodeName, action, input, output string) AuditEntry {
	return AuditEntry{Node: node, Action: action, Input: input, Output: output, Timestamp: time.Now()}
}
