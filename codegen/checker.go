package codegen

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// SyntaxError locates the first parse error in a program. Line and Column
// are 1-based.
type SyntaxError struct {
	Line    int
	Column  int
	Message string
}

func (e *SyntaxError) Error() string {
	if e.Line == 0 {
		return e.Message
	}
	return fmt.Sprintf("line %d, column %d: %s", e.Line, e.Column, e.Message)
}

// SyntaxChecker validates program text. It returns a nil *SyntaxError for a
// valid program; the error result is reserved for failures to check.
type SyntaxChecker interface {
	Check(ctx context.Context, code string) (*SyntaxError, error)
}

// PythonChecker checks Python 3 syntax with the tree-sitter grammar. A new
// parser is created per check since tree-sitter parsers are not safe for
// concurrent use.
type PythonChecker struct{}

// Check parses code and reports the first ERROR or MISSING node.
func (PythonChecker) Check(ctx context.Context, code string) (*SyntaxError, error) {
	if strings.TrimSpace(code) == "" {
		return &SyntaxError{Message: "empty program"}, nil
	}

	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	source := []byte(code)
	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse python: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if !root.HasError() {
		return nil, nil
	}

	node := firstError(root)
	if node == nil {
		return &SyntaxError{Message: "syntax error"}, nil
	}

	pos := node.StartPoint()
	msg := fmt.Sprintf("unexpected %q", snippet(node.Content(source)))
	if node.IsMissing() {
		msg = fmt.Sprintf("missing %q", node.Type())
	}
	return &SyntaxError{Line: int(pos.Row) + 1, Column: int(pos.Column) + 1, Message: msg}, nil
}

func firstError(n *sitter.Node) *sitter.Node {
	if n.Type() == "ERROR" || n.IsMissing() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil || !(child.HasError() || child.IsMissing()) {
			continue
		}
		if found := firstError(child); found != nil {
			return found
		}
	}
	return nil
}

func snippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 40 {
		return s[:40] + "..."
	}
	return s
}
