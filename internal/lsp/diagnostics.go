// SPDX-License-Identifier: Apache-2.0
package lsp

// Translation of pipeline output into LSP diagnostics. Parse and build
// errors surface as errors at their source position; analysis findings keep
// the severity the diag package assigned them.

import (
	protocol "github.com/tliron/glsp/protocol_3_16"

	"ebb/grammar"
	"ebb/internal/diag"
	"ebb/internal/ir"
)

func parseErrorDiagnostic(err error) protocol.Diagnostic {
	line, column := 1, 1
	if l, c, ok := grammar.ErrorPosition(err); ok {
		line, column = l, c
	}
	return protocol.Diagnostic{
		Range:    spanAt(line, column, 1),
		Severity: ptrSeverity(protocol.DiagnosticSeverityError),
		Source:   ptrString("ebb-parser"),
		Message:  err.Error(),
	}
}

func buildErrorDiagnostics(errs []ir.BuildError) []protocol.Diagnostic {
	diagnostics := make([]protocol.Diagnostic, 0, len(errs))
	for _, err := range errs {
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range:    spanAt(err.Pos.Line, err.Pos.Column, 1),
			Severity: ptrSeverity(protocol.DiagnosticSeverityError),
			Source:   ptrString("ebb-builder"),
			Message:  err.Msg,
		})
	}
	return diagnostics
}

func analysisErrorDiagnostic(err error) protocol.Diagnostic {
	return protocol.Diagnostic{
		Range:    spanAt(1, 1, 1),
		Severity: ptrSeverity(protocol.DiagnosticSeverityError),
		Source:   ptrString("ebb-analysis"),
		Message:  err.Error(),
	}
}

func findingDiagnostics(findings []diag.Diagnostic) []protocol.Diagnostic {
	diagnostics := make([]protocol.Diagnostic, 0, len(findings))
	for _, f := range findings {
		length := f.Length
		if length <= 0 {
			length = 1
		}
		message := f.Message
		if f.Code != "" {
			message = "[" + f.Code + "] " + message
		}
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range:    spanAt(f.Pos.Line, f.Pos.Column, length),
			Severity: ptrSeverity(findingSeverity(f.Severity)),
			Source:   ptrString("ebb-analysis"),
			Message:  message,
		})
	}
	return diagnostics
}

func findingSeverity(s diag.Severity) protocol.DiagnosticSeverity {
	switch s {
	case diag.Warning:
		return protocol.DiagnosticSeverityWarning
	case diag.Note:
		return protocol.DiagnosticSeverityInformation
	default:
		return protocol.DiagnosticSeverityError
	}
}

// spanAt builds a 0-based single-line range from a 1-based position.
func spanAt(line, column, length int) protocol.Range {
	if line < 1 {
		line = 1
	}
	if column < 1 {
		column = 1
	}
	return protocol.Range{
		Start: protocol.Position{Line: uint32(line - 1), Character: uint32(column - 1)},
		End:   protocol.Position{Line: uint32(line - 1), Character: uint32(column - 1 + length)},
	}
}

func ptrSeverity(s protocol.DiagnosticSeverity) *protocol.DiagnosticSeverity { return &s }

func ptrString(s string) *string { return &s }
