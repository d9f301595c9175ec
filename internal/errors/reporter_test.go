package errors

import (
	"fmt"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"peephole/internal/ir"
)

func init() {
	color.NoColor = true
}

func TestErrorReporter(t *testing.T) {
	source := `func @f(%x: i32) -> i32 {
entry:
  %a = add i32 %y, 1
  ret i32 %a
}`

	reporter := NewReporter("test.pir", source)

	err := UndefinedValue("%y", ir.Position{Line: 3, Column: 16}, []string{"%x", "%a"})
	formatted := reporter.Format(err)

	// header, location and the block the value is used in
	assert.Contains(t, formatted, "error["+ErrorUndefinedValue+"]: undefined value '%y'")
	assert.Contains(t, formatted, " --> test.pir:3:16")
	assert.Contains(t, formatted, "2 | entry:\n3 |   %a = add i32 %y, 1\n")
	assert.Contains(t, formatted, "  |                ^^\n")
	assert.Contains(t, formatted, "= help: define the value")
	assert.NotContains(t, formatted, "ret i32 %a")
	assert.NotContains(t, formatted, "...")
}

func TestUndefinedValueSuggestions(t *testing.T) {
	pos := ir.Position{Line: 1, Column: 5}

	err := UndefinedValue("%count", pos, []string{"%coutn", "%x"})
	assert.Equal(t, ErrorUndefinedValue, err.Code)
	assert.Len(t, err.Suggestions, 1)
	assert.Contains(t, err.Suggestions[0].Message, "did you mean '%coutn'")

	err = UndefinedValue("%zz", pos, nil)
	assert.Len(t, err.Suggestions, 1)
	assert.Contains(t, err.Suggestions[0].Message, "define the value")
}

func TestUnknownOpcodeSuggestion(t *testing.T) {
	err := UnknownOpcode("addd", ir.Position{Line: 2, Column: 8}, []string{"add", "and", "sub"})
	assert.Equal(t, ErrorUnknownOpcode, err.Code)
	assert.Equal(t, 4, err.Length)
	assert.NotEmpty(t, err.Suggestions)
	assert.Contains(t, err.Suggestions[0].Message, "'add'")
}

func TestOperandCount(t *testing.T) {
	err := OperandCount("add", 2, 3, ir.Position{Line: 1, Column: 1})
	assert.Equal(t, "'add' takes 2 operands, found 3", err.Message)

	err = OperandCount("not", 1, 2, ir.Position{Line: 1, Column: 1})
	assert.Equal(t, "'not' takes 1 operand, found 2", err.Message)
}

func TestInvalidFunctionCarriesReason(t *testing.T) {
	err := InvalidFunction("@f", fmt.Errorf("%w: @f: block entry has no terminator", ir.ErrInvalid), ir.Position{Line: 1, Column: 6})
	assert.Equal(t, ErrorInvalidFunction, err.Code)
	assert.Len(t, err.Notes, 1)
	assert.Contains(t, err.Notes[0], "no terminator")
}

func TestWarningFormatting(t *testing.T) {
	source := `orphan:`
	reporter := NewReporter("test.pir", source)

	err := UnreachableBlock("orphan", ir.Position{Line: 1, Column: 1})
	formatted := reporter.Format(err)

	assert.Contains(t, formatted, "warning[W0001]")
	assert.Contains(t, formatted, "unreachable")
	assert.Contains(t, formatted, "1 | orphan:\n  | ^^^^^^\n")
}

func TestReplacementSuggestion(t *testing.T) {
	source := `  call void @g(7)`
	reporter := NewReporter("test.pir", source)

	err := UntypedConstant("7", ir.Position{Line: 1, Column: 16})
	formatted := reporter.Format(err)

	assert.Contains(t, formatted, "= help: write the type before the constant")
	assert.Contains(t, formatted, "1 |   call void @g(i32 7)\n")
	assert.Contains(t, formatted, "  |                +++++\n")
}

func TestSpan(t *testing.T) {
	tests := []struct {
		name           string
		text           string
		column, length int
		start, width   int
	}{
		{"explicit length", "  %a = add i32 %x, 1", 8, 3, 8, 3},
		{"token at column", "  %a = add i32 %x, 1", 16, 0, 16, 2},
		{"whole instruction", "  %a = add i32 %x, 1 ; fold me", 3, WholeInstruction, 3, 18},
		{"clamped to line", "ret", 2, 10, 2, 2},
		{"past the end", "ret", 9, 1, 4, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, width := span(tt.text, tt.column, tt.length)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.width, width)
		})
	}
}

func TestPadKeepsTabs(t *testing.T) {
	assert.Equal(t, "\t ", pad("\t%a = add", 3))
	assert.Equal(t, "", pad("ret", 1))
}

func TestRewriteNotes(t *testing.T) {
	source := `func @f(%x: i32) -> i32 {
entry:
  %a = add i32 %x, 0 ; identity
  %b = sdiv i32 %a, 4
  ret i32 %b
}`
	reporter := NewReporter("test.pir", source)

	applied := RewriteApplied("identity-add", "%a = add i32 %x, 0", "%x", -1, ir.Position{Line: 3, Column: 3})
	assert.Equal(t, Note, applied.Level)
	assert.Equal(t, NoteRewrite, applied.Code)
	formatted := reporter.Format(applied)
	assert.Contains(t, formatted, "note[N0001]: identity-add: %a = add i32 %x, 0 => %x")
	assert.Contains(t, formatted, "  |   ^^^^^^^^^^^^^^^^^^\n")
	assert.Contains(t, formatted, "= note: cost -1")

	rejected := RewriteRejected("strength-sdiv", "arithmetic", "sign of %a is unknown", ir.Position{Line: 4, Column: 3})
	assert.Equal(t, "strength-sdiv rejected by the arithmetic check", rejected.Message)
	formatted = reporter.Format(rejected)
	assert.Contains(t, formatted, "note[N0002]")
	assert.Contains(t, formatted, "2 | entry:\n...\n4 |   %b = sdiv i32 %a, 4\n")
	assert.Contains(t, formatted, "= note: sign of %a is unknown")
}

func TestCompilerErrorImplementsError(t *testing.T) {
	var err error = DuplicateValue("%a", ir.Position{Line: 4, Column: 3})
	assert.Equal(t, "4:3: error[E0201]: value '%a' is already defined", err.Error())
}

func TestFormatAll(t *testing.T) {
	source := "a\nb"
	reporter := NewReporter("test.pir", source)

	out := reporter.FormatAll([]CompilerError{
		SyntaxError("second", ir.Position{Line: 2, Column: 1}),
		UnreachableBlock("a", ir.Position{Line: 1, Column: 1}),
		SyntaxError("first", ir.Position{Line: 1, Column: 1}),
	})
	assert.Equal(t, 2, strings.Count(out, "error["+ErrorSyntax+"]"))
	assert.Less(t, strings.Index(out, "first"), strings.Index(out, "second"))
	assert.Less(t, strings.Index(out, "unreachable"), strings.Index(out, "first"))
	assert.True(t, strings.HasSuffix(out, "test.pir: 2 errors, 1 warning\n"))

	assert.Empty(t, reporter.FormatAll(nil))
}

func TestLevenshteinDistance(t *testing.T) {
	assert.Equal(t, 0, levenshteinDistance("hello", "hello"))
	assert.Equal(t, 1, levenshteinDistance("hello", "hallo"))
	assert.Equal(t, 1, levenshteinDistance("hello", "helo")) // deletion is 1, not 2
	assert.Equal(t, 5, levenshteinDistance("hello", ""))
	assert.Equal(t, 3, levenshteinDistance("kitten", "sitting"))
}

func TestSimilarNameFinding(t *testing.T) {
	candidates := []string{"%total", "%amount", "%tota1", "%xyz"}

	similar := findSimilarNames("%totl", candidates)
	assert.Contains(t, similar, "%total")
	assert.NotContains(t, similar, "%xyz")

	similar = findSimilarNames("%verydifferent", candidates)
	assert.Empty(t, similar)
}

func TestErrorDescriptions(t *testing.T) {
	for _, code := range []string{ErrorSyntax, ErrorUndefinedValue, ErrorConstantRange, WarningUnreachableBlock} {
		assert.NotEqual(t, "Unknown error code", GetErrorDescription(code), code)
	}
	assert.Equal(t, "Unknown error code", GetErrorDescription("E9999"))
}

func TestErrorLevels(t *testing.T) {
	source := `test`
	reporter := NewReporter("test.pir", source)
	pos := ir.Position{Line: 1, Column: 1}

	errorErr := CompilerError{Level: Error, Message: "test error", Position: pos}
	warningErr := CompilerError{Level: Warning, Message: "test warning", Position: pos}

	assert.Contains(t, reporter.Format(errorErr), "error:")
	assert.Contains(t, reporter.Format(warningErr), "warning:")
}
