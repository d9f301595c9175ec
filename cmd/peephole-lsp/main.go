// SPDX-License-Identifier: Apache-2.0
package main

import (
	"os"

	"peephole/internal/config"
	"peephole/internal/lsp"
	"peephole/internal/peephole"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"github.com/tliron/glsp/server"
)

const lsName = "peephole" // Name identifier for the language server

var (
	version = "0.1.0"        // Server version
	handler protocol.Handler // Protocol handler instance (wired up below)
)

func main() {
	cfg := config.Default()
	if _, err := os.Stat(config.FileName); err == nil {
		if cfg, err = config.Load(config.FileName); err != nil {
			commonlog.Configure(1, nil)
			commonlog.GetLogger("peephole.lsp").Errorf("%s", err)
			os.Exit(1)
		}
	}

	// stdout carries the protocol, so logs go to stderr or the configured file
	var logFile *string
	if cfg.Log.File != "" {
		logFile = &cfg.Log.File
	}
	commonlog.Configure(cfg.Log.Verbosity, logFile)
	log := commonlog.GetLogger("peephole.lsp")

	engine, err := peephole.New(cfg.EngineOptions()...)
	if err != nil {
		log.Errorf("%s", err)
		os.Exit(1)
	}
	h := lsp.NewHandler(engine)

	handler = protocol.Handler{
		Initialize:                     h.Initialize,
		Initialized:                    h.Initialized,
		Shutdown:                       h.Shutdown,
		SetTrace:                       h.SetTrace,
		TextDocumentDidOpen:            h.TextDocumentDidOpen,
		TextDocumentDidClose:           h.TextDocumentDidClose,
		TextDocumentDidChange:          h.TextDocumentDidChange,
		TextDocumentCompletion:         h.TextDocumentCompletion,
		TextDocumentSemanticTokensFull: h.TextDocumentSemanticTokensFull,
	}

	s := server.NewServer(&handler, lsName, false)

	log.Infof("starting %s language server %s", lsName, version)

	if err := s.RunStdio(); err != nil {
		log.Errorf("language server stopped: %s", err)
		os.Exit(1)
	}
}
