// SPDX-License-Identifier: Apache-2.0
package main

import (
	"log"
	"os"

	"github.com/tliron/commonlog"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"github.com/tliron/glsp/server"

	"ebb/internal/lsp"
)

const lsName = "ebb"

var (
	version = "0.0.1"
	handler protocol.Handler
)

func main() {
	// Configure debug logging (1 = debug level, nil = default logger)
	commonlog.Configure(1, nil)

	ebbHandler := lsp.NewHandler()

	handler = protocol.Handler{
		Initialize:                     ebbHandler.Initialize,
		Initialized:                    ebbHandler.Initialized,
		Shutdown:                       ebbHandler.Shutdown,
		SetTrace:                       ebbHandler.SetTrace,
		TextDocumentDidOpen:            ebbHandler.TextDocumentDidOpen,
		TextDocumentDidClose:           ebbHandler.TextDocumentDidClose,
		TextDocumentDidChange:          ebbHandler.TextDocumentDidChange,
		TextDocumentHover:              ebbHandler.TextDocumentHover,
		TextDocumentSemanticTokensFull: ebbHandler.TextDocumentSemanticTokensFull,
	}

	s := server.NewServer(&handler, lsName, false)

	log.Println("Starting ebb LSP server...")

	if err := s.RunStdio(); err != nil {
		log.Println("Error starting ebb LSP server:", err)
		os.Exit(1)
	}
}
