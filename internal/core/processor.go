package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"astro_insight/src/logger"
)

const (
	// DefaultMaxSteps bounds node invocations per Dispatch call
	DefaultMaxSteps = 32

	// InvalidInputPrompt is recorded when a suspended session receives empty input
	InvalidInputPrompt = "Invalid input: please type a reply, or \"done\" to proceed / \"quit\" to cancel."
)

// Router drives a session through the node graph
type Router struct {
	nodes    map[NodeName]Node
	start    NodeName
	maxSteps int
}

// NewRouter registers the nodes and validates every declared edge
func NewRouter(nodes ...Node) (*Router, error) {
	r := &Router{
		nodes:    make(map[NodeName]Node, len(nodes)),
		start:    NodeIdentityCheck,
		maxSteps: DefaultMaxSteps,
	}

	for _, node := range nodes {
		if node == nil {
			return nil, fmt.Errorf("node cannot be nil")
		}
		name := node.GetName()
		if !name.Valid() || name == NodeEnd {
			return nil, fmt.Errorf("invalid node name: %q", name)
		}
		if _, dup := r.nodes[name]; dup {
			return nil, fmt.Errorf("node registered twice: %s", name)
		}
		r.nodes[name] = node
	}

	if _, ok := r.nodes[r.start]; !ok {
		return nil, fmt.Errorf("start node not registered: %s", r.start)
	}
	if _, ok := r.nodes[NodeErrorRecovery]; !ok {
		return nil, fmt.Errorf("error recovery node not registered")
	}

	for name, node := range r.nodes {
		for _, to := range node.Edges() {
			if to == NodeEnd {
				continue
			}
			if _, ok := r.nodes[to]; !ok {
				return nil, fmt.Errorf("node %s routes to unregistered node %s", name, to)
			}
		}
	}

	return r, nil
}

// Start returns the entry node
func (r *Router) Start() NodeName {
	return r.start
}

// Dispatch runs the session from its current step until it completes or suspends.
// Node failures never surface here; they are routed to error_recovery.
func (r *Router) Dispatch(ctx context.Context, s *Session, input string) error {
	if s == nil {
		return fmt.Errorf("session cannot be nil")
	}
	input = strings.TrimSpace(input)
	log := logger.WithSession(s.ID)

	switch {
	case s.AwaitingUserChoice:
		if input == "" {
			s.Answer = InvalidInputPrompt
			s.audit(s.CurrentStep, "invalid_input", "", InvalidInputPrompt)
			s.UpdatedAt = time.Now()
			log.Debug().Str("node", string(s.CurrentStep)).Msg("Ignoring empty reply while awaiting input")
			return nil
		}
		s.AwaitingUserChoice = false
	case s.IsComplete || s.CurrentStep == NodeEnd || s.CurrentStep == "":
		if input == "" && s.IsComplete {
			return nil
		}
		s.beginTurn(r.start)
	}

	s.UserInput = input
	if input != "" {
		s.Messages = append(s.Messages, Message{Role: "user", Content: input, Timestamp: time.Now()})
	}
	defer func() {
		s.UpdatedAt = time.Now()
		if s.Answer != "" && (s.IsComplete || s.AwaitingUserChoice || s.CurrentStep == NodeEnd) {
			s.Messages = append(s.Messages, Message{Role: "assistant", Content: s.Answer, Timestamp: time.Now()})
		}
	}()

	for steps := 0; ; steps++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("dispatch interrupted at %s: %w", s.CurrentStep, err)
		}
		if steps >= r.maxSteps {
			r.abort(s, KindLoop, fmt.Sprintf("exceeded %d node invocations", r.maxSteps))
			log.Error().Int("steps", steps).Msg("Dispatch step limit reached")
			return nil
		}

		current := s.CurrentStep
		node, ok := r.nodes[current]
		if !ok {
			if current == NodeErrorRecovery {
				r.abort(s, KindConfiguration, "error recovery is unavailable")
				return nil
			}
			r.fail(s, current, NewNodeError(current, KindConfiguration, "no handler registered for step "+string(current), nil))
			continue
		}

		s.NodeHistory = append(s.NodeHistory, current)
		log.Debug().Str("node", string(current)).Msg("Executing node")

		cmd, err := r.invoke(ctx, node, s, input)
		if err != nil {
			// partial progress (code attempts, retries spent) is kept
			cmd.Update.Apply(s)
		} else if !routesTo(node, cmd.Goto) {
			err = NewNodeError(current, KindConfiguration, fmt.Sprintf("undeclared route %s -> %s", current, cmd.Goto), nil)
		}
		if err != nil {
			log.Warn().Err(err).Str("node", string(current)).Msg("Node failed")
			if current == NodeErrorRecovery {
				r.abort(s, KindInternal, err.Error())
				return nil
			}
			r.fail(s, current, err)
			continue
		}

		cmd.Update.Apply(s)
		s.audit(current, "route", input, string(cmd.Goto))

		if cmd.Goto == NodeEnd {
			s.CurrentStep = NodeEnd
			s.AwaitingUserChoice = false
			if !cmd.KeepOpen {
				s.IsComplete = true
			}
			log.Info().
				Str("node", string(current)).
				Bool("complete", s.IsComplete).
				Int("retry_count", s.RetryCount).
				Msg("Dispatch finished")
			return nil
		}

		s.CurrentStep = cmd.Goto
		if s.AwaitingUserChoice {
			log.Info().Str("resume_at", string(cmd.Goto)).Msg("Awaiting user input")
			return nil
		}
	}
}

// invoke runs one node, turning a panic into a NodeError
func (r *Router) invoke(ctx context.Context, node Node, s *Session, input string) (cmd Command, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = NewNodeError(node.GetName(), KindInternal, fmt.Sprintf("node panicked: %v", p), nil)
		}
	}()
	view := *s
	return node.Execute(ctx, &view, input)
}

// fail records the error and moves the session to error_recovery
func (r *Router) fail(s *Session, node NodeName, err error) {
	info := &ErrorInfo{
		Node:      node,
		Kind:      KindOf(err),
		Message:   err.Error(),
		Timestamp: time.Now(),
	}
	var ne *NodeError
	if errors.As(err, &ne) {
		info.Exhausted = ne.Exhausted
	}
	s.ErrorInfo = info
	s.AwaitingUserChoice = false
	s.audit(node, "error", s.UserInput, info.Message)
	s.CurrentStep = NodeErrorRecovery
}

// abort terminates the session without going through error_recovery
func (r *Router) abort(s *Session, kind ErrorKind, message string) {
	if s.ErrorInfo == nil {
		s.ErrorInfo = &ErrorInfo{Node: s.CurrentStep, Kind: kind, Message: message, Timestamp: time.Now()}
	}
	s.Answer = EscalationMessage(s, message)
	s.audit(s.CurrentStep, "abort", "", message)
	s.IsComplete = true
	s.AwaitingUserChoice = false
	s.CurrentStep = NodeEnd
}

func routesTo(node Node, to NodeName) bool {
	for _, edge := range node.Edges() {
		if edge == to {
			return true
		}
	}
	return false
}
