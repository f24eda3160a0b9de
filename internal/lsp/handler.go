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

	"sable/internal/ir"
	"sable/internal/irtext"
)

// SableHandler implements the LSP handlers for .sir files: it keeps the
// latest document contents, reparses on every change and publishes parse
// and verifier diagnostics.
type SableHandler struct {
	mu      sync.RWMutex
	content map[string]string
}

// NewSableHandler creates and returns a new SableHandler instance
func NewSableHandler() *SableHandler {
	return &SableHandler{
		content: make(map[string]string),
	}
}

// Initialize responds to the LSP client's initialize request and advertises the server's capabilities
func (h *SableHandler) Initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	log.Println("LSP Initialize called")

	return &protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: &protocol.TextDocumentSyncOptions{
				OpenClose: ptrBool(true),
				Change:    ptrSyncKind(protocol.TextDocumentSyncKindFull),
			},
		},
	}, nil
}

// Initialized is called after the client completes initialization
func (h *SableHandler) Initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	log.Println("Sable LSP Initialized")
	return nil
}

// Shutdown handles the LSP shutdown request
func (h *SableHandler) Shutdown(ctx *glsp.Context) error {
	log.Println("Sable LSP Shutdown")
	return nil
}

// SetTrace handles trace level changes (no-op)
func (h *SableHandler) SetTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// TextDocumentDidOpen handles file open notifications from the editor
func (h *SableHandler) TextDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	log.Printf("Opened file: %s\n", params.TextDocument.URI)
	return h.update(ctx, params.TextDocument.URI, params.TextDocument.Text)
}

// TextDocumentDidChange handles file change notifications. Sync is full, so
// the last content change carries the whole document.
func (h *SableHandler) TextDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	log.Printf("Changed file: %s\n", params.TextDocument.URI)

	for _, change := range params.ContentChanges {
		if whole, ok := change.(protocol.TextDocumentContentChangeEventWhole); ok {
			return h.update(ctx, params.TextDocument.URI, whole.Text)
		}
	}
	return nil
}

// TextDocumentDidClose handles file close notifications from the editor
func (h *SableHandler) TextDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	log.Printf("Closed file: %s\n", params.TextDocument.URI)

	path, err := uriToPath(params.TextDocument.URI)
	if err != nil {
		return fmt.Errorf("failed to convert URI %s: %w", params.TextDocument.URI, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.content, path)
	return nil
}

func (h *SableHandler) update(ctx *glsp.Context, rawURI protocol.DocumentUri, text string) error {
	path, err := uriToPath(rawURI)
	if err != nil {
		return fmt.Errorf("failed to convert URI %s: %w", rawURI, err)
	}

	h.mu.Lock()
	h.content[path] = text
	h.mu.Unlock()

	sendDiagnosticNotification(ctx, rawURI, h.Check(path, text))
	return nil
}

// Check parses and verifies one document and returns its diagnostics. An
// empty (non-nil) slice clears previously published diagnostics.
func (h *SableHandler) Check(path, text string) []protocol.Diagnostic {
	m, sm, err := irtext.Parse(path, text)
	if err != nil {
		return []protocol.Diagnostic{convertParseError(err)}
	}

	var diagnostics []protocol.Diagnostic
	for _, f := range m.Funcs {
		if err := ir.Verify(f); err != nil {
			diagnostics = append(diagnostics, convertVerifyError(sm, err))
		}
	}
	if len(diagnostics) == 0 {
		if err := ir.VerifyModule(m); err != nil {
			diagnostics = append(diagnostics, convertVerifyError(sm, err))
		}
	}
	if diagnostics == nil {
		diagnostics = []protocol.Diagnostic{}
	}
	return diagnostics
}

// Convert URI to platform-local file path
func uriToPath(rawURI string) (string, error) {
	u, err := url.Parse(rawURI)
	if err != nil {
		return "", fmt.Errorf("invalid URI %s: %w", rawURI, err)
	}

	path := u.Path

	// On Windows, remove leading slash (e.g., /C:/...) -> C:/...
	if runtime.GOOS == "windows" && strings.HasPrefix(path, "/") && len(path) > 3 && path[2] == ':' {
		path = path[1:]
	}

	return filepath.FromSlash(path), nil
}

func sendDiagnosticNotification(ctx *glsp.Context, uri protocol.URI, diagnostics []protocol.Diagnostic) {
	log.Printf("Sending %d diagnostics for %s\n", len(diagnostics), uri)

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
