// Package formula implements the expression language stored in cells: a
// lexer, a recursive-descent parser, integer arithmetic, comparisons and a
// small set of built-in functions that accept scalars, sequences and
// matrices.
package formula

import (
	"errors"

	"github.com/vogtb/sheetd/packages/cell"
)

// Evaluator parses and runs cell expressions. it holds no per-sheet state
// and is safe for concurrent use.
type Evaluator struct {
	functions *BuiltInFunctions
}

func NewEvaluator() *Evaluator {
	return &Evaluator{functions: NewDefaultBuiltInFunctions()}
}

// FindVariables returns the cell and range tokens referenced by expr in
// order of first appearance, upper-cased and without duplicates. it is
// lenient: an expression that does not parse still reports every reference
// up to the first lexical error.
func (e *Evaluator) FindVariables(expr string) []string {
	tokens, _ := newLenientLexer(expr).Tokenize()

	seen := make(map[string]bool)
	var vars []string
	for _, tok := range tokens {
		if tok.Type != TokenCell && tok.Type != TokenRange {
			continue
		}
		if seen[tok.Value] {
			continue
		}
		seen[tok.Value] = true
		vars = append(vars, tok.Value)
	}
	return vars
}

// Parse tokenizes and parses expr into an AST
func (e *Evaluator) Parse(expr string) (ASTNode, error) {
	tokens, err := NewLexer(expr).Tokenize()
	if err != nil {
		return nil, err
	}
	return NewParser(tokens).Parse()
}

// Run evaluates expr against the given bindings. failures of any kind are
// returned as cell error values rather than Go errors, so they can be stored
// and read by dependents like any other value.
func (e *Evaluator) Run(expr string, bindings map[string]Argument) cell.Value {
	node, err := e.Parse(expr)
	if err != nil {
		return errorValue(err)
	}

	result, err := node.Eval(&Env{Bindings: bindings, Functions: e.functions})
	if err != nil {
		return errorValue(err)
	}
	return toValue(result)
}

func errorValue(err error) cell.Value {
	var spreadsheetErr *SpreadsheetError
	if errors.As(err, &spreadsheetErr) {
		return spreadsheetErr.Value()
	}
	return NewSpreadsheetError(ErrorCodeOther, err.Error()).Value()
}
