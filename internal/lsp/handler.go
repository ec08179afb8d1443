// SPDX-License-Identifier: Apache-2.0
package lsp

import (
	"fmt"
	"log"
	"net/url"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"ebb/grammar"
	"ebb/internal/analysis"
	"ebb/internal/ir"
)

// SemanticTokenTypes is the legend advertised to clients; token indices in
// the wire format point into this list.
var SemanticTokenTypes = []string{
	"keyword",
	"function",
	"variable",
	"number",
	"operator",
	"comment",
	"namespace",
}

var SemanticTokenModifiers = []string{
	"declaration",
	"definition",
}

// Handler implements the LSP handlers for textual IR files. Every edit
// reparses, rebuilds and reanalyzes the whole document; modules are small
// enough that incremental anything would be overengineering.
type Handler struct {
	mu   sync.RWMutex
	docs map[string]*document
}

type document struct {
	source string
	module *ir.ModuleOp
	result *analysis.Result
}

func NewHandler() *Handler {
	return &Handler{docs: make(map[string]*document)}
}

// Initialize advertises the server's capabilities.
func (h *Handler) Initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	log.Println("LSP Initialize called")

	return &protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: &protocol.TextDocumentSyncOptions{
				OpenClose: ptrBool(true),
				Change:    ptrSyncKind(protocol.TextDocumentSyncKindFull),
			},
			HoverProvider: ptrBool(true),
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

func (h *Handler) Initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	log.Println("ebb LSP initialized")
	return nil
}

func (h *Handler) Shutdown(ctx *glsp.Context) error {
	log.Println("ebb LSP shutdown")
	return nil
}

func (h *Handler) SetTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

func (h *Handler) TextDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	log.Printf("opened: %s\n", params.TextDocument.URI)
	return h.reload(ctx, params.TextDocument.URI, params.TextDocument.Text)
}

func (h *Handler) TextDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	for _, change := range params.ContentChanges {
		switch c := change.(type) {
		case protocol.TextDocumentContentChangeEventWhole:
			return h.reload(ctx, params.TextDocument.URI, c.Text)
		case protocol.TextDocumentContentChangeEvent:
			// Full sync is advertised, so a range-less event carries the
			// whole document.
			if c.Range == nil {
				return h.reload(ctx, params.TextDocument.URI, c.Text)
			}
		}
	}
	return nil
}

func (h *Handler) TextDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	log.Printf("closed: %s\n", params.TextDocument.URI)

	path, err := uriToPath(params.TextDocument.URI)
	if err != nil {
		return fmt.Errorf("failed to convert URI %s: %w", params.TextDocument.URI, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.docs, path)
	return nil
}

// TextDocumentHover reports the analysis facts for the value under the
// cursor.
func (h *Handler) TextDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	path, err := uriToPath(params.TextDocument.URI)
	if err != nil {
		return nil, err
	}

	h.mu.RLock()
	doc, ok := h.docs[path]
	h.mu.RUnlock()
	if !ok || doc.result == nil {
		return nil, nil
	}

	// LSP positions are 0-based; the lexer's are 1-based.
	line := int(params.Position.Line) + 1
	column := int(params.Position.Character) + 1
	name, span := valueTokenAt(path, doc.source, line, column)
	if name == "" {
		return nil, nil
	}
	value := findValue(doc.module, name, line)
	if value == nil {
		return nil, nil
	}

	content := fmt.Sprintf("`%%%s`: %s", name, doc.result.FactFor(value))
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: content,
		},
		Range: span,
	}, nil
}

// TextDocumentSemanticTokensFull classifies the whole document's tokens.
func (h *Handler) TextDocumentSemanticTokensFull(ctx *glsp.Context, params *protocol.SemanticTokensParams) (*protocol.SemanticTokens, error) {
	path, err := uriToPath(params.TextDocument.URI)
	if err != nil {
		return nil, err
	}

	h.mu.RLock()
	doc, ok := h.docs[path]
	h.mu.RUnlock()
	if !ok {
		return &protocol.SemanticTokens{}, nil
	}

	tokens := collectSemanticTokens(path, doc.source)

	// Wire format: delta-line, delta-start compression.
	var data []uint32
	var prevLine, prevStart uint32
	for _, token := range tokens {
		deltaLine := token.Line - prevLine
		deltaStart := token.StartChar
		if deltaLine == 0 {
			deltaStart = token.StartChar - prevStart
		}
		data = append(data, deltaLine, deltaStart, token.Length, uint32(token.TokenType), uint32(token.TokenModifiers))
		prevLine = token.Line
		prevStart = token.StartChar
	}
	return &protocol.SemanticTokens{Data: data}, nil
}

// reload reparses and reanalyzes source, then publishes fresh diagnostics.
func (h *Handler) reload(ctx *glsp.Context, uri protocol.DocumentUri, source string) error {
	path, err := uriToPath(uri)
	if err != nil {
		return fmt.Errorf("failed to convert URI %s: %w", uri, err)
	}

	doc := &document{source: source}
	diagnostics := doc.analyze(path)

	h.mu.Lock()
	h.docs[path] = doc
	h.mu.Unlock()

	if ctx != nil {
		sendDiagnostics(ctx, uri, diagnostics)
	}
	return nil
}

// analyze runs the full pipeline on the document, returning everything
// worth publishing. A parse or build failure stops the pipeline; stale
// analysis facts are worse than none.
func (d *document) analyze(path string) []protocol.Diagnostic {
	file, err := grammar.ParseSource(path, d.source)
	if err != nil {
		return []protocol.Diagnostic{parseErrorDiagnostic(err)}
	}

	module, buildErrs := ir.BuildModule(file)
	if len(buildErrs) > 0 {
		return buildErrorDiagnostics(buildErrs)
	}
	d.module = module

	result, err := analysis.Run(module)
	if err != nil {
		return []protocol.Diagnostic{analysisErrorDiagnostic(err)}
	}
	d.result = result
	return findingDiagnostics(result.Findings())
}

// findValue resolves a value name to its definition. Names repeat across
// functions, so among same-named values the one defined nearest above the
// reference wins.
func findValue(module *ir.ModuleOp, name string, line int) ir.Value {
	if module == nil {
		return nil
	}
	var best ir.Value
	consider := func(v ir.Value) {
		if v.Name() != name {
			return
		}
		if best == nil {
			best = v
			return
		}
		vl, bl := v.Pos().Line, best.Pos().Line
		if vl <= line && (bl > line || vl > bl) {
			best = v
		}
	}
	ir.Walk(module, func(op ir.Operation) {
		for _, result := range op.Results() {
			consider(result)
		}
		for _, region := range op.Regions() {
			for _, block := range region.Blocks() {
				for _, arg := range block.Args() {
					consider(arg)
				}
			}
		}
	})
	return best
}

func sendDiagnostics(ctx *glsp.Context, uri protocol.URI, diagnostics []protocol.Diagnostic) {
	if diagnostics == nil {
		diagnostics = []protocol.Diagnostic{}
	}
	ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, &protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// uriToPath converts a file URI to a platform-local path.
func uriToPath(rawURI string) (string, error) {
	u, err := url.Parse(rawURI)
	if err != nil {
		return "", fmt.Errorf("invalid URI %s: %w", rawURI, err)
	}

	path := u.Path
	if runtime.GOOS == "windows" && strings.HasPrefix(path, "/") && len(path) > 3 && path[2] == ':' {
		path = path[1:]
	}
	return filepath.FromSlash(path), nil
}

func ptrBool(b bool) *bool { return &b }

func ptrSyncKind(k protocol.TextDocumentSyncKind) *protocol.TextDocumentSyncKind { return &k }
