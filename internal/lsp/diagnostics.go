package lsp

import (
	"fmt"

	"peephole/internal/errors"
	"peephole/internal/peephole"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// ConvertCompilerErrors transforms front-end diagnostics into LSP diagnostics
func ConvertCompilerErrors(errs []errors.CompilerError) []protocol.Diagnostic {
	var diagnostics []protocol.Diagnostic

	for _, e := range errs {
		length := e.Length
		if length <= 0 {
			length = 1
		}
		start := position(e.Position.Line, e.Position.Column)
		end := start
		end.Character += uint32(length)

		message := e.Message
		if e.HelpText != "" {
			message += "\n" + e.HelpText
		}
		for _, s := range e.Suggestions {
			message += "\n" + s.Message
		}

		diagnostic := protocol.Diagnostic{
			Range:    protocol.Range{Start: start, End: end},
			Severity: ptrSeverity(severity(e.Level)),
			Source:   ptrString("peephole"),
			Message:  message,
		}
		if e.Code != "" {
			diagnostic.Code = &protocol.IntegerOrString{Value: e.Code}
		}
		diagnostics = append(diagnostics, diagnostic)
	}

	return diagnostics
}

// ConvertRewrites reports every rewrite of a run as an information
// diagnostic on the instruction it replaced.
func ConvertRewrites(result *peephole.Result) []protocol.Diagnostic {
	var diagnostics []protocol.Diagnostic

	for _, rw := range result.Log {
		if rw.Pos.Line == 0 {
			continue
		}
		start := position(rw.Pos.Line, rw.Pos.Column)
		end := start
		end.Character += uint32(len(rw.Before))

		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range:    protocol.Range{Start: start, End: end},
			Severity: ptrSeverity(protocol.DiagnosticSeverityInformation),
			Source:   ptrString("peephole"),
			Code:     &protocol.IntegerOrString{Value: rw.Rule},
			Message:  fmt.Sprintf("%s: %s => %s (cost %+d)", rw.Rule, rw.Before, rw.After, rw.CostDelta),
		})
	}

	return diagnostics
}

// position converts a 1-based source position to a 0-based LSP position
func position(line, column int) protocol.Position {
	if line < 1 {
		line = 1
	}
	if column < 1 {
		column = 1
	}
	return protocol.Position{Line: uint32(line - 1), Character: uint32(column - 1)}
}

func severity(level errors.ErrorLevel) protocol.DiagnosticSeverity {
	switch level {
	case errors.Error:
		return protocol.DiagnosticSeverityError
	case errors.Warning:
		return protocol.DiagnosticSeverityWarning
	case errors.Note:
		return protocol.DiagnosticSeverityInformation
	}
	return protocol.DiagnosticSeverityHint
}

func ptrSeverity(s protocol.DiagnosticSeverity) *protocol.DiagnosticSeverity {
	return &s
}

func ptrString(s string) *string {
	return &s
}
