package coder

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// SyntaxError locates the first parse error in a script
type SyntaxError struct {
	Line    int
	Column  int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("SyntaxError: line %d, column %d: %s", e.Line, e.Column, e.Message)
}

// UnsafeCodeError reports a forbidden construct
type UnsafeCodeError struct {
	Pattern string
	Match   string
}

func (e *UnsafeCodeError) Error() string {
	return fmt.Sprintf("forbidden construct %q is not allowed in generated code", strings.TrimSpace(e.Match))
}

// PythonValidator parses scripts with tree-sitter without running them
type PythonValidator struct {
	forbidden []*regexp.Regexp
}

// NewPythonValidator compiles the forbidden patterns
func NewPythonValidator(forbiddenPatterns []string) (*PythonValidator, error) {
	v := &PythonValidator{}
	for _, pattern := range forbiddenPatterns {
		re, err := regexp.Compile("(?m)" + pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid forbidden pattern %q: %w", pattern, err)
		}
		v.forbidden = append(v.forbidden, re)
	}
	return v, nil
}

// Validate returns a *SyntaxError or *UnsafeCodeError, or nil when the script may run.
// A cancelled ctx yields an error wrapping ctx.Err().
func (v *PythonValidator) Validate(ctx context.Context, code string) error {
	if strings.TrimSpace(code) == "" {
		return &SyntaxError{Line: 1, Column: 1, Message: "empty script"}
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("syntax check interrupted: %w", err)
	}

	// sitter.Parser is not safe for concurrent use
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	src := []byte(code)
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("syntax check interrupted: %w", ctxErr)
		}
		return fmt.Errorf("failed to parse script: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return describe(firstError(root), src)
	}

	for _, re := range v.forbidden {
		if m := re.FindString(code); m != "" {
			return &UnsafeCodeError{Pattern: re.String(), Match: m}
		}
	}
	return nil
}

func firstError(n *sitter.Node) *sitter.Node {
	if n.IsMissing() || n.Type() == "ERROR" {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		if child.IsMissing() || child.HasError() {
			if found := firstError(child); found != nil {
				return found
			}
		}
	}
	return n
}

func describe(n *sitter.Node, src []byte) *SyntaxError {
	point := n.StartPoint()
	e := &SyntaxError{Line: int(point.Row) + 1, Column: int(point.Column) + 1}

	switch {
	case n.IsMissing():
		e.Message = fmt.Sprintf("missing %q", n.Type())
	case n.Type() == "ERROR":
		snippet := strings.TrimSpace(n.Content(src))
		if i := strings.IndexByte(snippet, '\n'); i >= 0 {
			snippet = snippet[:i]
		}
		if len(snippet) > 40 {
			snippet = snippet[:40] + "..."
		}
		e.Message = fmt.Sprintf("invalid syntax near %q", snippet)
	default:
		e.Message = "invalid syntax"
	}
	return e
}
