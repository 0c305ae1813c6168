package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures for the recovery policy
type ErrorKind string

const (
	KindInput         ErrorKind = "input"
	KindClassifier    ErrorKind = "classifier"
	KindSyntax        ErrorKind = "syntax"
	KindExecution     ErrorKind = "execution"
	KindConfiguration ErrorKind = "configuration"
	KindLoop          ErrorKind = "loop"
	KindInternal      ErrorKind = "internal"
)

// NodeError is the structured error a handler returns
type NodeError struct {
	Node      NodeName
	Kind      ErrorKind
	Message   string
	Exhausted bool
	Err       error
}

func (e *NodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// NewNodeError builds a NodeError of the given kind
func NewNodeError(node NodeName, kind ErrorKind, message string, err error) *NodeError {
	return &NodeError{Node: node, Kind: kind, Message: message, Err: err}
}

// KindOf extracts the ErrorKind of err, KindInternal when it is not a NodeError
func KindOf(err error) ErrorKind {
	var ne *NodeError
	if errors.As(err, &ne) {
		return ne.Kind
	}
	return KindInternal
}

// IsExhausted reports whether err marks a spent retry budget
func IsExhausted(err error) bool {
	var ne *NodeError
	return errors.As(err, &ne) && ne.Exhausted
}
