package lsp

import (
	"errors"

	"github.com/alecthomas/participle/v2"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"sable/internal/ir"
	"sable/internal/irtext"
)

// convertParseError maps a parse failure onto a caret-sized diagnostic at
// the reported position.
func convertParseError(err error) protocol.Diagnostic {
	line, column := 0, 0
	message := err.Error()

	var pe participle.Error
	if errors.As(err, &pe) {
		pos := pe.Position()
		line, column = pos.Line-1, pos.Column-1
		message = pe.Message()
	}
	if line < 0 {
		line = 0
	}
	if column < 0 {
		column = 0
	}

	return protocol.Diagnostic{
		Range: protocol.Range{
			Start: protocol.Position{Line: uint32(line), Character: uint32(column)},
			End:   protocol.Position{Line: uint32(line), Character: uint32(column + 1)},
		},
		Severity: ptrSeverity(protocol.DiagnosticSeverityError),
		Source:   ptrString("sable-parser"),
		Message:  message,
	}
}

// convertVerifyError places a verifier failure on the offending value when
// the source map knows it, falling back to the function header.
func convertVerifyError(sm *irtext.SourceMap, err error) protocol.Diagnostic {
	line, column := 0, 0

	var ve *ir.VerifyError
	if errors.As(err, &ve) {
		if pos, ok := sm.Values[ve.Fn][ve.Value]; ok {
			line, column = pos.Line-1, pos.Column-1
		} else if pos, ok := sm.Funcs[ve.Fn]; ok {
			line, column = pos.Line-1, pos.Column-1
		}
	}
	if line < 0 {
		line = 0
	}
	if column < 0 {
		column = 0
	}

	return protocol.Diagnostic{
		Range: protocol.Range{
			Start: protocol.Position{Line: uint32(line), Character: uint32(column)},
			End:   protocol.Position{Line: uint32(line), Character: uint32(column + 1)},
		},
		Severity: ptrSeverity(protocol.DiagnosticSeverityError),
		Source:   ptrString("sable-verifier"),
		Message:  err.Error(),
	}
}

func ptrSeverity(s protocol.DiagnosticSeverity) *protocol.DiagnosticSeverity {
	return &s
}

func ptrString(s string) *string {
	return &s
}
