package errors

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"peephole/internal/ir"

	"github.com/fatih/color"
)

// ErrorLevel represents the severity of a diagnostic
type ErrorLevel string

const (
	Error   ErrorLevel = "error"
	Warning ErrorLevel = "warning"
	Note    ErrorLevel = "note"
	Help    ErrorLevel = "help"
)

// WholeInstruction as a Length underlines from the position to the end of
// the instruction, before any trailing comment.
const WholeInstruction = -1

// CompilerError is a diagnostic anchored in a .pir source
type CompilerError struct {
	Level       ErrorLevel
	Code        string
	Message     string
	Position    ir.Position
	Length      int // 0 underlines the token at Position
	Suggestions []Suggestion
	Notes       []string
	HelpText    string
}

func (e CompilerError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%d:%d: %s[%s]: %s", e.Position.Line, e.Position.Column, e.Level, e.Code, e.Message)
	}
	return fmt.Sprintf("%d:%d: %s: %s", e.Position.Line, e.Position.Column, e.Level, e.Message)
}

// Suggestion is a proposed fix. With Replacement set, the reporter shows the
// source line patched at Position.
type Suggestion struct {
	Message     string
	Replacement string
	Position    ir.Position
	Length      int
}

// Reporter renders diagnostics against the source of one file
type Reporter struct {
	filename string
	lines    []string
}

func NewReporter(filename, source string) *Reporter {
	return &Reporter{filename: filename, lines: strings.Split(source, "\n")}
}

func (r *Reporter) line(n int) (string, bool) {
	if n < 1 || n > len(r.lines) {
		return "", false
	}
	return r.lines[n-1], true
}

// enclosingLabel finds the label line of the block holding line n. It stops
// at the function boundary.
func (r *Reporter) enclosingLabel(n int) (int, bool) {
	for k := n - 1; k >= 1; k-- {
		text := strings.TrimSpace(r.lines[k-1])
		if strings.HasPrefix(text, "func ") || text == "}" {
			return 0, false
		}
		if isLabel(text) {
			return k, true
		}
	}
	return 0, false
}

func isLabel(text string) bool {
	if i := strings.IndexByte(text, ';'); i >= 0 {
		text = strings.TrimSpace(text[:i])
	}
	if text == "" || !strings.HasSuffix(text, ":") {
		return false
	}
	c := text[0]
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// span returns the 1-based start column and width of the underline for a
// diagnostic at column with the given length on text.
func span(text string, column, length int) (int, int) {
	start := min(max(column, 1), len(text)+1)
	rest := text[start-1:]
	switch {
	case length == WholeInstruction:
		if i := strings.IndexByte(rest, ';'); i >= 0 {
			rest = rest[:i]
		}
		length = len(strings.TrimRight(rest, " \t"))
	case length <= 0:
		length = strings.IndexAny(rest, " \t,()")
		if length < 0 {
			length = len(rest)
		}
	}
	return start, max(min(length, len(rest)), 1)
}

// pad blanks text up to column, keeping tabs so the underline lines up
func pad(text string, column int) string {
	return strings.Map(func(c rune) rune {
		if c == '\t' {
			return c
		}
		return ' '
	}, text[:column-1])
}

type gutter struct {
	width int
	dim   func(...interface{}) string
}

func (g gutter) blank() string {
	return strings.Repeat(" ", g.width) + " " + g.dim("|")
}

func (g gutter) numbered(n int, text string) string {
	return g.dim(fmt.Sprintf("%*d |", g.width, n)) + " " + text
}

func (g gutter) mark(text string) string {
	return g.blank() + " " + text
}

// Format renders one diagnostic: its header and location, the source line
// under its block label with the span underlined, then suggestions, notes and
// help as trailing "= " lines.
func (r *Reporter) Format(d CompilerError) string {
	var b strings.Builder
	paint := levelColor(d.Level)
	g := gutter{width: len(strconv.Itoa(d.Position.Line)), dim: color.New(color.Faint).SprintFunc()}

	header := string(d.Level)
	if d.Code != "" {
		header += "[" + d.Code + "]"
	}
	fmt.Fprintf(&b, "%s: %s\n", paint(header), d.Message)
	fmt.Fprintf(&b, "%s%s %s:%d:%d\n", strings.Repeat(" ", g.width), g.dim("-->"), r.filename, d.Position.Line, d.Position.Column)

	if text, ok := r.line(d.Position.Line); ok {
		fmt.Fprintln(&b, g.blank())
		if n, ok := r.enclosingLabel(d.Position.Line); ok {
			fmt.Fprintln(&b, g.numbered(n, r.lines[n-1]))
			if n < d.Position.Line-1 {
				fmt.Fprintln(&b, g.dim("..."))
			}
		}
		fmt.Fprintln(&b, g.numbered(d.Position.Line, text))
		start, width := span(text, d.Position.Column, d.Length)
		fmt.Fprintln(&b, g.mark(pad(text, start)+paint(strings.Repeat("^", width))))
	}

	help := color.New(color.FgGreen).SprintFunc()
	for _, s := range d.Suggestions {
		fmt.Fprintf(&b, "%s %s %s\n", strings.Repeat(" ", g.width), g.dim("="), help("help: ")+s.Message)
		if s.Replacement != "" {
			r.patch(&b, g, s)
		}
	}
	for _, note := range d.Notes {
		fmt.Fprintf(&b, "%s %s %s%s\n", strings.Repeat(" ", g.width), g.dim("="), color.BlueString("note: "), note)
	}
	if d.HelpText != "" {
		fmt.Fprintf(&b, "%s %s %s%s\n", strings.Repeat(" ", g.width), g.dim("="), help("help: "), d.HelpText)
	}
	b.WriteString("\n")
	return b.String()
}

// patch shows the suggestion's line with the replacement applied and marks
// the inserted text.
func (r *Reporter) patch(b *strings.Builder, g gutter, s Suggestion) {
	text, ok := r.line(s.Position.Line)
	if !ok {
		return
	}
	start, width := span(text, s.Position.Column, s.Length)
	end := min(start-1+width, len(text))
	patched := text[:start-1] + s.Replacement + text[end:]
	add := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintln(b, g.blank())
	fmt.Fprintln(b, g.numbered(s.Position.Line, patched))
	fmt.Fprintln(b, g.mark(pad(text, start)+add(strings.Repeat("+", len(s.Replacement)))))
}

// FormatAll renders diagnostics in source order and closes with a count per
// level.
func (r *Reporter) FormatAll(ds []CompilerError) string {
	sorted := make([]CompilerError, len(ds))
	copy(sorted, ds)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Position, sorted[j].Position
		return a.Line < b.Line || a.Line == b.Line && a.Column < b.Column
	})

	var b strings.Builder
	counts := make(map[ErrorLevel]int)
	for _, d := range sorted {
		b.WriteString(r.Format(d))
		counts[d.Level]++
	}
	var parts []string
	for _, level := range []ErrorLevel{Error, Warning, Note, Help} {
		if n := counts[level]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s%s", n, level, plural(n)))
		}
	}
	if len(parts) > 0 {
		fmt.Fprintf(&b, "%s: %s\n", r.filename, strings.Join(parts, ", "))
	}
	return b.String()
}

func levelColor(level ErrorLevel) func(...interface{}) string {
	switch level {
	case Warning:
		return color.New(color.FgYellow, color.Bold).SprintFunc()
	case Note:
		return color.New(color.FgBlue, color.Bold).SprintFunc()
	case Help:
		return color.New(color.FgGreen, color.Bold).SprintFunc()
	}
	return color.New(color.FgRed, color.Bold).SprintFunc()
}
