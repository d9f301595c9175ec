package lsp

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"peephole/internal/ir"
	"peephole/internal/parser"
	"peephole/internal/peephole"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// Define the set of supported semantic token types (as required by the LSP spec)
var SemanticTokenTypes = []string{
	"keyword",
	"operator",
	"type",
	"function",
	"variable",
	"parameter",
	"namespace",
	"number",
	"comment",
	"modifier",
}

// Define the set of supported semantic token modifiers
var SemanticTokenModifiers = []string{
	"declaration",
	"definition",
	"readonly",
}

var log = commonlog.GetLogger("peephole.lsp")

// document is the last analysed state of one open file
type document struct {
	content     string
	diagnostics []protocol.Diagnostic
}

// Handler implements the LSP server handlers for textual IR files
type Handler struct {
	mu     sync.RWMutex
	engine *peephole.Engine
	docs   map[string]*document
}

// NewHandler creates a handler whose rewrite hints come from engine
func NewHandler(engine *peephole.Engine) *Handler {
	return &Handler{
		engine: engine,
		docs:   make(map[string]*document),
	}
}

// Initialize responds to the LSP client's initialize request and advertises the server's capabilities
func (h *Handler) Initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	log.Info("initialize")

	return &protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: &protocol.TextDocumentSyncOptions{
				OpenClose: ptrBool(true),
				Change:    ptrSyncKind(protocol.TextDocumentSyncKindFull),
			},
			CompletionProvider: &protocol.CompletionOptions{
				ResolveProvider: ptrBool(false),
			},
			SemanticTokensProvider: &protocol.SemanticTokensOptions{
				Legend: protocol.SemanticTokensLegend{
					TokenTypes:     SemanticTokenTypes,
					TokenModifiers: SemanticTokenModifiers,
				},
				Full: ptrBool(true),
			},
		},
	}, nil
}

// Initialized is called after the client receives the server's capabilities
func (h *Handler) Initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	log.Info("initialized")
	return nil
}

// Shutdown handles the LSP shutdown request
func (h *Handler) Shutdown(ctx *glsp.Context) error {
	log.Info("shutdown")
	return nil
}

// SetTrace accepts the client's trace level; tracing goes through commonlog
func (h *Handler) SetTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	log.Debugf("trace: %s", params.Value)
	return nil
}

// TextDocumentDidOpen analyses a newly opened file
func (h *Handler) TextDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	log.Infof("opened: %s", params.TextDocument.URI)

	path, err := uriToPath(params.TextDocument.URI)
	if err != nil {
		return err
	}
	diagnostics := h.update(path, params.TextDocument.Text)
	sendDiagnosticNotification(ctx, params.TextDocument.URI, diagnostics)
	return nil
}

// TextDocumentDidClose forgets a closed file
func (h *Handler) TextDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	log.Infof("closed: %s", params.TextDocument.URI)

	path, err := uriToPath(params.TextDocument.URI)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.docs, path)
	return nil
}

// TextDocumentDidChange re-analyses a file from its full new content
func (h *Handler) TextDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	log.Debugf("changed: %s", params.TextDocument.URI)

	path, err := uriToPath(params.TextDocument.URI)
	if err != nil {
		return err
	}

	content, ok := "", false
	for _, change := range params.ContentChanges {
		switch c := change.(type) {
		case protocol.TextDocumentContentChangeEventWhole:
			content, ok = c.Text, true
		case protocol.TextDocumentContentChangeEvent:
			if c.Range == nil {
				content, ok = c.Text, true
			}
		}
	}
	if !ok {
		return fmt.Errorf("no full content in change of %s", params.TextDocument.URI)
	}

	diagnostics := h.update(path, content)
	sendDiagnosticNotification(ctx, params.TextDocument.URI, diagnostics)
	return nil
}

// TextDocumentCompletion offers opcodes, predicates and types
func (h *Handler) TextDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (interface{}, error) {
	var items []protocol.CompletionItem
	for _, name := range keywords() {
		kind := protocol.CompletionItemKindKeyword
		if _, ok := ir.ParseOpcode(name); ok {
			kind = protocol.CompletionItemKindOperator
		}
		items = append(items, protocol.CompletionItem{Label: name, Kind: &kind})
	}
	for _, name := range []string{"i1", "i8", "i16", "i32", "i64", "bool", "ptr", "void"} {
		kind := protocol.CompletionItemKindTypeParameter
		items = append(items, protocol.CompletionItem{Label: name, Kind: &kind})
	}
	return &protocol.CompletionList{IsIncomplete: false, Items: items}, nil
}

// TextDocumentSemanticTokensFull handles semantic token requests for the entire document
func (h *Handler) TextDocumentSemanticTokensFull(ctx *glsp.Context, params *protocol.SemanticTokensParams) (*protocol.SemanticTokens, error) {
	rawURI := params.TextDocument.URI

	path, err := uriToPath(rawURI)
	if err != nil {
		return nil, err
	}

	doc, err := h.getOrUpdate(ctx, path, rawURI)
	if err != nil {
		return nil, err
	}

	tokens := collectSemanticTokens(path, doc.content)

	var data []uint32
	var prevLine, prevStart uint32

	// delta-line, delta-start encoding
	for _, token := range tokens {
		deltaLine := token.Line - prevLine
		var deltaStart uint32
		if deltaLine == 0 {
			deltaStart = token.StartChar - prevStart
		} else {
			deltaStart = token.StartChar
		}

		data = append(data, deltaLine, deltaStart, token.Length, uint32(token.TokenType), uint32(token.TokenModifiers))

		prevLine = token.Line
		prevStart = token.StartChar
	}

	return &protocol.SemanticTokens{Data: data}, nil
}

// Diagnostics returns the diagnostics of the last analysis of uri
func (h *Handler) Diagnostics(uri protocol.DocumentUri) []protocol.Diagnostic {
	path, err := uriToPath(uri)
	if err != nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if doc, ok := h.docs[path]; ok {
		return doc.diagnostics
	}
	return nil
}

func (h *Handler) getOrUpdate(ctx *glsp.Context, path string, rawURI protocol.DocumentUri) (*document, error) {
	h.mu.RLock()
	doc, ok := h.docs[path]
	h.mu.RUnlock()
	if ok {
		return doc, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	diagnostics := h.update(path, string(content))
	sendDiagnosticNotification(ctx, rawURI, diagnostics)

	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.docs[path], nil
}

// update parses and lowers content, runs the engine over the functions that
// lowered cleanly and stores the resulting diagnostics.
func (h *Handler) update(path, content string) []protocol.Diagnostic {
	res := parser.ParseSource(path, content)
	diagnostics := ConvertCompilerErrors(res.Errors)

	for _, fn := range res.Functions {
		result, err := h.engine.Run(fn, peephole.Analyses{})
		if err != nil {
			log.Errorf("%s: %s", path, err)
			continue
		}
		diagnostics = append(diagnostics, ConvertRewrites(result)...)
	}
	sort.SliceStable(diagnostics, func(i, j int) bool {
		return diagnostics[i].Range.Start.Line < diagnostics[j].Range.Start.Line
	})

	h.mu.Lock()
	h.docs[path] = &document{content: content, diagnostics: diagnostics}
	h.mu.Unlock()
	return diagnostics
}

// Convert URI to platform-local file path
func uriToPath(rawURI string) (string, error) {
	u, err := url.Parse(rawURI)
	if err != nil {
		return "", fmt.Errorf("invalid URI %s: %w", rawURI, err)
	}

	path := u.Path

	// /C:/... -> C:/...
	if runtime.GOOS == "windows" && strings.HasPrefix(path, "/") && len(path) > 3 && path[2] == ':' {
		path = path[1:]
	}

	return filepath.FromSlash(path), nil
}

func sendDiagnosticNotification(ctx *glsp.Context, uri protocol.URI, diagnostics []protocol.Diagnostic) {
	if ctx == nil || ctx.Notify == nil {
		return
	}
	if diagnostics == nil {
		diagnostics = []protocol.Diagnostic{}
	}

	if log.AllowLevel(commonlog.Debug) {
		if data, err := json.MarshalIndent(diagnostics, "", "  "); err == nil {
			log.Debugf("sending diagnostics: %s", data)
		}
	}

	ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, &protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

func ptrBool(b bool) *bool {
	return &b
}

func ptrSyncKind(k protocol.TextDocumentSyncKind) *protocol.TextDocumentSyncKind {
	return &k
}
