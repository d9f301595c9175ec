package lsp_test

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"peephole/internal/lsp"
	"peephole/internal/peephole"
)

func newHandler(t *testing.T) *lsp.Handler {
	t.Helper()
	engine, err := peephole.New()
	require.NoError(t, err)
	return lsp.NewHandler(engine)
}

func exampleURI(t *testing.T, name string) string {
	t.Helper()
	absPath, err := filepath.Abs(filepath.Join("../../examples", name))
	require.NoError(t, err, "Failed to get absolute path")
	return "file://" + filepath.ToSlash(absPath)
}

// recorder captures published diagnostics
type recorder struct {
	published []*protocol.PublishDiagnosticsParams
}

func (r *recorder) context() *glsp.Context {
	return &glsp.Context{Notify: func(method string, params any) {
		if method == protocol.ServerTextDocumentPublishDiagnostics {
			r.published = append(r.published, params.(*protocol.PublishDiagnosticsParams))
		}
	}}
}

func TestTextDocumentSemanticTokensFull(t *testing.T) {
	handler := newHandler(t)

	ctx := &glsp.Context{}
	params := &protocol.SemanticTokensParams{
		TextDocument: protocol.TextDocumentIdentifier{
			URI: exampleURI(t, "arith.pir"),
		},
	}

	tokens, err := handler.TextDocumentSemanticTokensFull(ctx, params)
	require.NoError(t, err, "TextDocumentSemanticTokensFull returned error")
	require.NotNil(t, tokens, "Returned tokens should not be nil")
	require.NotEmpty(t, tokens.Data, "Returned token data should not be empty")

	decoded, err := decodeSemanticTokens(tokens.Data)
	require.NoError(t, err, "Failed to decode semantic tokens")
	require.Greater(t, len(decoded), 10)

	assertToken(t, &decoded[0], 1, 1, 54, "comment", nil)
	assertToken(t, &decoded[1], 3, 1, 4, "keyword", nil)
	assertToken(t, &decoded[2], 3, 6, 5, "function", []string{"declaration"})
	assertToken(t, &decoded[3], 3, 17, 3, "type", nil)
	assertToken(t, &decoded[4], 4, 1, 5, "namespace", []string{"declaration"})
	assertToken(t, &decoded[5], 5, 3, 2, "variable", []string{"declaration"})
	assertToken(t, &decoded[6], 5, 8, 3, "operator", nil)
	assertToken(t, &decoded[7], 5, 12, 3, "type", nil)
	assertToken(t, &decoded[8], 5, 16, 1, "number", nil)
	assertToken(t, &decoded[9], 5, 19, 1, "number", nil)
}

func TestSemanticTokensLabelsAndParameters(t *testing.T) {
	handler := newHandler(t)
	rec := &recorder{}
	uri := "file:///tmp/labels.pir"

	src := "func @f(%x: i32) {\nentry:\n  jmp done(%x)\ndone(%v: i32):\n  ret\n}\n"
	require.NoError(t, handler.TextDocumentDidOpen(rec.context(), &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{URI: uri, Text: src},
	}))

	tokens, err := handler.TextDocumentSemanticTokensFull(rec.context(), &protocol.SemanticTokensParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
	})
	require.NoError(t, err)
	decoded, err := decodeSemanticTokens(tokens.Data)
	require.NoError(t, err)

	assertToken(t, &decoded[2], 1, 9, 2, "parameter", []string{"declaration"})
	assertToken(t, &decoded[4], 2, 1, 5, "namespace", []string{"declaration"})
	assertToken(t, &decoded[5], 3, 3, 3, "operator", nil)
	assertToken(t, &decoded[6], 3, 7, 4, "namespace", nil)
	assertToken(t, &decoded[7], 3, 12, 2, "variable", nil)
	assertToken(t, &decoded[8], 4, 1, 4, "namespace", []string{"declaration"})
	assertToken(t, &decoded[9], 4, 6, 2, "parameter", []string{"declaration"})
}

func TestDidOpenPublishesRewrites(t *testing.T) {
	handler := newHandler(t)
	rec := &recorder{}
	uri := "file:///tmp/fold.pir"

	src := "func @f() -> i32 {\nentry:\n  %a = add i32 2, 3\n  ret i32 %a\n}\n"
	err := handler.TextDocumentDidOpen(rec.context(), &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{URI: uri, Text: src},
	})
	require.NoError(t, err)
	require.Len(t, rec.published, 1)
	assert.Equal(t, uri, rec.published[0].URI)

	diags := rec.published[0].Diagnostics
	require.Len(t, diags, 1)
	d := diags[0]
	assert.Equal(t, protocol.DiagnosticSeverityInformation, *d.Severity)
	assert.Equal(t, uint32(2), d.Range.Start.Line)
	assert.Equal(t, uint32(2), d.Range.Start.Character)
	assert.Contains(t, d.Message, "fold")
	assert.Contains(t, d.Message, "=> 5")
	assert.Equal(t, diags, handler.Diagnostics(uri))
}

func TestDidChangePublishesErrors(t *testing.T) {
	handler := newHandler(t)
	rec := &recorder{}
	uri := "file:///tmp/broken.pir"

	require.NoError(t, handler.TextDocumentDidOpen(rec.context(), &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{URI: uri, Text: "func @f() {\nentry:\n  ret\n}\n"},
	}))
	require.Len(t, rec.published, 1)
	assert.Empty(t, rec.published[0].Diagnostics)

	changed := "func @f() -> i32 {\nentry:\n  %a = frob i32 1, 2\n  ret i32 %a\n}\n"
	require.NoError(t, handler.TextDocumentDidChange(rec.context(), &protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: uri},
		},
		ContentChanges: []any{protocol.TextDocumentContentChangeEventWhole{Text: changed}},
	}))
	require.Len(t, rec.published, 2)

	diags := rec.published[1].Diagnostics
	require.NotEmpty(t, diags)
	assert.Equal(t, protocol.DiagnosticSeverityError, *diags[0].Severity)
	assert.Equal(t, uint32(2), diags[0].Range.Start.Line)
	assert.Contains(t, diags[0].Message, "frob")
}

func TestDidCloseForgetsDocument(t *testing.T) {
	handler := newHandler(t)
	uri := "file:///tmp/closed.pir"

	require.NoError(t, handler.TextDocumentDidOpen(nil, &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{URI: uri, Text: "func @f(%x: i32) -> i32 {\nentry:\n  %a = mul i32 %x, 1\n  ret i32 %a\n}\n"},
	}))
	assert.NotEmpty(t, handler.Diagnostics(uri))

	require.NoError(t, handler.TextDocumentDidClose(nil, &protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
	}))
	assert.Nil(t, handler.Diagnostics(uri))
}

func TestCompletion(t *testing.T) {
	handler := newHandler(t)
	result, err := handler.TextDocumentCompletion(nil, &protocol.CompletionParams{})
	require.NoError(t, err)

	list := result.(*protocol.CompletionList)
	var labels []string
	for _, item := range list.Items {
		labels = append(labels, item.Label)
	}
	joined := strings.Join(labels, " ")
	for _, want := range []string{"add", "lshr", "icmp", "ult", "func", "i32", "ptr"} {
		assert.Contains(t, labels, want, joined)
	}
}

type DecodedToken struct {
	Index     int
	Line      uint32
	Char      uint32
	Length    uint32
	Type      string
	Modifiers []string
}

func decodeSemanticTokens(raw []uint32) ([]DecodedToken, error) {
	if len(raw)%5 != 0 {
		return nil, fmt.Errorf("raw token data length %d is not a multiple of 5", len(raw))
	}

	var (
		decoded []DecodedToken
		line    uint32
		char    uint32
	)

	for i := 0; i < len(raw); i += 5 {
		deltaLine := raw[i]
		deltaStart := raw[i+1]
		length := raw[i+2]
		tokenTypeIdx := raw[i+3]
		tokenModMask := raw[i+4]

		if deltaLine == 0 {
			char += deltaStart
		} else {
			line += deltaLine
			char = deltaStart
		}

		var modifiers []string
		for j, name := range lsp.SemanticTokenModifiers {
			if tokenModMask&(1<<j) != 0 {
				modifiers = append(modifiers, name)
			}
		}

		decoded = append(decoded, DecodedToken{
			Index:     i / 5,
			Line:      line + 1, // back to 1-based
			Char:      char + 1,
			Length:    length,
			Type:      lsp.SemanticTokenTypes[tokenTypeIdx],
			Modifiers: modifiers,
		})
	}

	return decoded, nil
}

func assertToken(t *testing.T, token *DecodedToken, expectedLine, expectedChar, expectedLength uint32, expectedType string, expectedModifiers []string) {
	require.Equal(t, expectedLine, token.Line, "line mismatch (expected line %d)", expectedLine)
	require.Equal(t, expectedChar, token.Char, "char mismatch (expected char %d)", expectedChar)
	require.Equal(t, expectedLength, token.Length, "length mismatch")
	require.Equal(t, expectedType, token.Type, "type mismatch")
	require.ElementsMatch(t, expectedModifiers, token.Modifiers, "modifiers mismatch")
}
