package parser

import (
	"os"

	"peephole/grammar"
	"peephole/internal/errors"
	"peephole/internal/ir"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// ParseResult holds the syntax tree, the lowered functions and every
// diagnostic produced on the way. Functions with errors are left out.
type ParseResult struct {
	Module    *grammar.Module
	Functions []*ir.Function
	Errors    []errors.CompilerError
}

// HasErrors reports whether any diagnostic is an error rather than a warning
func (r *ParseResult) HasErrors() bool {
	for _, e := range r.Errors {
		if e.Level == errors.Error {
			return true
		}
	}
	return false
}

// ParseFile reads and lowers a .pir file
func ParseFile(path string) *ParseResult {
	source, err := os.ReadFile(path)
	if err != nil {
		return &ParseResult{Errors: []errors.CompilerError{
			errors.NewError(errors.ErrorRead, err.Error(), ir.Position{Line: 1, Column: 1}).Build(),
		}}
	}
	return ParseSource(path, string(source))
}

// ParseSource parses source and lowers every function it defines
func ParseSource(filename, source string) *ParseResult {
	module, err := grammar.ParseString(filename, source)
	if err != nil {
		return &ParseResult{Errors: []errors.CompilerError{syntaxError(err)}}
	}

	result := &ParseResult{Module: module}
	seen := make(map[string]bool)
	for _, gf := range module.Functions {
		if seen[gf.Name] {
			result.Errors = append(result.Errors, errors.DuplicateFunction(gf.Name, position(gf.Pos)))
			continue
		}
		seen[gf.Name] = true

		fn, diags := lowerFunction(gf)
		result.Errors = append(result.Errors, diags...)
		if fn != nil {
			result.Functions = append(result.Functions, fn)
		}
	}
	return result
}

func syntaxError(err error) errors.CompilerError {
	if pe, ok := err.(participle.Error); ok {
		return errors.SyntaxError(pe.Message(), position(pe.Position()))
	}
	return errors.SyntaxError(err.Error(), ir.Position{Line: 1, Column: 1})
}

func position(p lexer.Position) ir.Position {
	return ir.Position{Line: p.Line, Column: p.Column}
}
