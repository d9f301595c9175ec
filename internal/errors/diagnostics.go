package errors

import (
	"fmt"

	"peephole/internal/ir"
)

// DiagnosticBuilder provides a fluent interface for creating diagnostics with suggestions
type DiagnosticBuilder struct {
	err CompilerError
}

// NewError creates a new error builder
func NewError(code, message string, pos ir.Position) *DiagnosticBuilder {
	return &DiagnosticBuilder{
		err: CompilerError{
			Level:    Error,
			Code:     code,
			Message:  message,
			Position: pos,
			Length:   1,
		},
	}
}

// NewWarning creates a new warning builder
func NewWarning(code, message string, pos ir.Position) *DiagnosticBuilder {
	b := NewError(code, message, pos)
	b.err.Level = Warning
	return b
}

// NewNote creates a note builder
func NewNote(code, message string, pos ir.Position) *DiagnosticBuilder {
	b := NewError(code, message, pos)
	b.err.Level = Note
	return b
}

// WithLength sets the length of the error span
func (b *DiagnosticBuilder) WithLength(length int) *DiagnosticBuilder {
	b.err.Length = length
	return b
}

// WithSuggestion adds a suggestion to the error
func (b *DiagnosticBuilder) WithSuggestion(message string) *DiagnosticBuilder {
	b.err.Suggestions = append(b.err.Suggestions, Suggestion{Message: message})
	return b
}

// WithReplacement adds a suggestion with replacement text
func (b *DiagnosticBuilder) WithReplacement(message, replacement string, pos ir.Position, length int) *DiagnosticBuilder {
	b.err.Suggestions = append(b.err.Suggestions, Suggestion{
		Message:     message,
		Replacement: replacement,
		Position:    pos,
		Length:      length,
	})
	return b
}

func (b *DiagnosticBuilder) WithNote(note string) *DiagnosticBuilder {
	b.err.Notes = append(b.err.Notes, note)
	return b
}

func (b *DiagnosticBuilder) WithHelp(help string) *DiagnosticBuilder {
	b.err.HelpText = help
	return b
}

func (b *DiagnosticBuilder) Build() CompilerError {
	return b.err
}

// SyntaxError wraps a grammar failure
func SyntaxError(message string, pos ir.Position) CompilerError {
	return NewError(ErrorSyntax, message, pos).Build()
}

// UndefinedValue reports an operand naming no parameter or instruction
func UndefinedValue(name string, pos ir.Position, known []string) CompilerError {
	b := NewError(ErrorUndefinedValue, fmt.Sprintf("undefined value '%s'", name), pos).
		WithLength(len(name))
	if similar := findSimilarNames(name, known); len(similar) > 0 {
		b.WithSuggestion(fmt.Sprintf("did you mean '%s'?", similar[0]))
	} else {
		b.WithSuggestion("define the value with '" + name + " = ...' or add it as a parameter")
	}
	return b.Build()
}

func DuplicateValue(name string, pos ir.Position) CompilerError {
	return NewError(ErrorDuplicateValue, fmt.Sprintf("value '%s' is already defined", name), pos).
		WithLength(len(name)).
		WithNote("every value in SSA form is assigned exactly once").
		Build()
}

func UndefinedBlock(label string, pos ir.Position, known []string) CompilerError {
	b := NewError(ErrorUndefinedBlock, fmt.Sprintf("undefined label '%s'", label), pos).
		WithLength(len(label))
	if similar := findSimilarNames(label, known); len(similar) > 0 {
		b.WithSuggestion(fmt.Sprintf("did you mean '%s'?", similar[0]))
	}
	return b.Build()
}

func DuplicateBlock(label string, pos ir.Position) CompilerError {
	return NewError(ErrorDuplicateBlock, fmt.Sprintf("label '%s' is already defined", label), pos).
		WithLength(len(label)).
		Build()
}

func UnknownOpcode(name string, pos ir.Position, known []string) CompilerError {
	b := NewError(ErrorUnknownOpcode, fmt.Sprintf("unknown opcode '%s'", name), pos).
		WithLength(len(name))
	if similar := findSimilarNames(name, known); len(similar) > 0 {
		b.WithSuggestion(fmt.Sprintf("did you mean '%s'?", similar[0]))
	}
	return b.Build()
}

func UnknownPredicate(name string, pos ir.Position) CompilerError {
	return NewError(ErrorUnknownPredicate, fmt.Sprintf("unknown predicate '%s'", name), pos).
		WithLength(len(name)).
		WithHelp("predicates are eq, ne, ult, ule, ugt, uge, slt, sle, sgt, sge").
		Build()
}

func UnknownType(name string, pos ir.Position) CompilerError {
	return NewError(ErrorUnknownType, fmt.Sprintf("unknown type '%s'", name), pos).
		WithLength(len(name)).
		WithHelp("types are iN for 1 <= N <= 1024, bool, ptr and void").
		Build()
}

func OperandCount(op string, expected, actual int, pos ir.Position) CompilerError {
	return NewError(ErrorOperandCount,
		fmt.Sprintf("'%s' takes %d operand%s, found %d", op, expected, plural(expected), actual), pos).
		WithLength(len(op)).
		Build()
}

func UntypedConstant(value string, pos ir.Position) CompilerError {
	return NewError(ErrorUntypedConstant, fmt.Sprintf("cannot infer the type of constant %s", value), pos).
		WithLength(len(value)).
		WithReplacement("write the type before the constant", "i32 "+value, pos, len(value)).
		Build()
}

func ConstantRange(value string, typ ir.Type, pos ir.Position) CompilerError {
	return NewError(ErrorConstantRange, fmt.Sprintf("constant %s does not fit in %s", value, typ), pos).
		WithLength(len(value)).
		WithNote(fmt.Sprintf("%s holds signed or unsigned values of %d bits", typ, typ.Bits)).
		Build()
}

func VoidResult(name, op string, pos ir.Position) CompilerError {
	return NewError(ErrorVoidResult, fmt.Sprintf("'%s' produces no value to assign to '%s'", op, name), pos).
		WithLength(len(name)).
		WithSuggestion("remove the '" + name + " =' prefix").
		Build()
}

func DuplicateFunction(name string, pos ir.Position) CompilerError {
	return NewError(ErrorDuplicateFunction, fmt.Sprintf("function '%s' is already defined", name), pos).
		WithLength(len(name)).
		Build()
}

// InvalidFunction reports a validation failure of a lowered function
func InvalidFunction(name string, reason error, pos ir.Position) CompilerError {
	return NewError(ErrorInvalidFunction, fmt.Sprintf("function '%s' is not valid SSA", name), pos).
		WithLength(len(name)).
		WithNote(reason.Error()).
		Build()
}

func UnreachableBlock(label string, pos ir.Position) CompilerError {
	return NewWarning(WarningUnreachableBlock, fmt.Sprintf("block '%s' is unreachable", label), pos).
		WithLength(len(label)).
		Build()
}

// RewriteApplied describes a committed rewrite at the instruction it
// replaced. For window idioms before holds both instructions.
func RewriteApplied(rule, before, after string, costDelta int, pos ir.Position) CompilerError {
	return NewNote(NoteRewrite, fmt.Sprintf("%s: %s => %s", rule, before, after), pos).
		WithLength(WholeInstruction).
		WithNote(fmt.Sprintf("cost %+d", costDelta)).
		Build()
}

// RewriteRejected describes a candidate refused by one verifier check
func RewriteRejected(rule, check, reason string, pos ir.Position) CompilerError {
	return NewNote(NoteRejected, fmt.Sprintf("%s rejected by the %s check", rule, check), pos).
		WithLength(WholeInstruction).
		WithNote(reason).
		Build()
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

// findSimilarNames returns candidates within a small edit distance of target
func findSimilarNames(target string, candidates []string) []string {
	var similar []string
	for _, candidate := range candidates {
		if candidate != target && levenshteinDistance(target, candidate) <= 2 && len(candidate) > 2 {
			similar = append(similar, candidate)
		}
	}
	return similar
}

// Simple Levenshtein distance over bytes
func levenshteinDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
