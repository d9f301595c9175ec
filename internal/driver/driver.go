// Package driver runs the front end and the rewrite engine over one source
// text and renders the outcome for terminal tools.
package driver

import (
	"fmt"
	"io"
	"time"

	"peephole/internal/errors"
	"peephole/internal/ir"
	"peephole/internal/parser"
	"peephole/internal/peephole"

	"github.com/fatih/color"
)

// Outcome is the result of processing one source text
type Outcome struct {
	Source      string
	Functions   []*ir.Function
	Results     []*peephole.Result
	Diagnostics []errors.CompilerError
	Duration    time.Duration
}

// Failed reports whether the source had errors or the engine failed
func (o *Outcome) Failed() bool {
	for _, d := range o.Diagnostics {
		if d.Level == errors.Error {
			return true
		}
	}
	return len(o.Results) < len(o.Functions)
}

// Totals sums the per-function results
func (o *Outcome) Totals() peephole.Result {
	var t peephole.Result
	for _, r := range o.Results {
		t.Rewrites += r.Rewrites
		t.Eliminated += r.Eliminated
		t.Rejected += r.Rejected
		t.CostDelta += r.CostDelta
		t.Steps += r.Steps
	}
	return t
}

// Process parses and lowers source, then optimizes every function when the
// front end reported no errors. Diagnostics are written to w as they come.
func Process(w io.Writer, filename, source string, engine *peephole.Engine) (*Outcome, error) {
	start := time.Now()
	res := parser.ParseSource(filename, source)
	out := &Outcome{Source: source, Functions: res.Functions, Diagnostics: res.Errors}

	if len(res.Errors) > 0 {
		fmt.Fprint(w, errors.NewReporter(filename, source).FormatAll(res.Errors))
	}
	if res.HasErrors() {
		out.Duration = time.Since(start)
		return out, nil
	}

	results, err := engine.RunAll(res.Functions)
	out.Results = results
	out.Duration = time.Since(start)
	if err != nil {
		return out, fmt.Errorf("%s: %w", filename, err)
	}
	return out, nil
}

// Notes lists the rewrites and rejections of a run as note diagnostics.
// Entries without a source position are left out.
func Notes(r *peephole.Result) []errors.CompilerError {
	var notes []errors.CompilerError
	for _, rw := range r.Log {
		if rw.Pos.Line > 0 {
			notes = append(notes, errors.RewriteApplied(rw.Rule, rw.Before, rw.After, rw.CostDelta, rw.Pos))
		}
	}
	for _, rej := range r.Rejections {
		if rej.Pos.Line > 0 {
			notes = append(notes, errors.RewriteRejected(rej.Rule, rej.Check.String(), rej.Reason, rej.Pos))
		}
	}
	return notes
}

// WriteNotes renders the notes of every result against the processed source
func WriteNotes(w io.Writer, filename string, out *Outcome) {
	var notes []errors.CompilerError
	for _, r := range out.Results {
		notes = append(notes, Notes(r)...)
	}
	if len(notes) > 0 {
		fmt.Fprint(w, errors.NewReporter(filename, out.Source).FormatAll(notes))
	}
}

// WriteResult prints the optimized functions followed by a colored summary
func WriteResult(w io.Writer, filename string, out *Outcome) {
	if out.Failed() {
		fmt.Fprintln(w, color.RedString("Optimization of %s failed after %s", filename, FormatDuration(out.Duration)))
		return
	}

	fmt.Fprintln(w, ir.PrintAll(out.Functions))

	t := out.Totals()
	cost := color.New(color.FgGreen).SprintfFunc()
	if t.CostDelta > 0 {
		cost = color.New(color.FgRed).SprintfFunc()
	}
	fmt.Fprintf(w, "%s %d rewrites, %d eliminated, %d rejected, cost %s\n",
		color.CyanString("summary:"), t.Rewrites, t.Eliminated, t.Rejected, cost("%+d", t.CostDelta))
	fmt.Fprintln(w, color.GreenString("Successfully processed %s in %s", filename, FormatDuration(out.Duration)))
}

// FormatDuration renders d with a unit fitting its magnitude
func FormatDuration(d time.Duration) string {
	switch {
	case d >= time.Minute:
		return fmt.Sprintf("%.2fmin", d.Minutes())
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%.1fms", float64(d.Nanoseconds())/1000000.0)
	case d >= time.Microsecond:
		return fmt.Sprintf("%.1fμs", float64(d.Nanoseconds())/1000.0)
	default:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	}
}
