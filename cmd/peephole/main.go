// SPDX-License-Identifier: Apache-2.0
package main

import (
	"fmt"
	"os"

	"peephole/internal/config"
	"peephole/internal/driver"
	"peephole/internal/peephole"

	"github.com/fatih/color"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

func main() {
	verbose := false
	var args []string
	for _, arg := range os.Args[1:] {
		if arg == "-v" || arg == "--verbose" {
			verbose = true
			continue
		}
		args = append(args, arg)
	}
	if len(args) < 1 || len(args) > 2 {
		fmt.Println("Usage: peephole [-v] <file.pir> [config.toml]")
		os.Exit(1)
	}
	path := args[0]

	cfg := config.Default()
	if len(args) == 2 {
		loaded, err := config.Load(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s\n", color.RedString("%v", err))
			os.Exit(1)
		}
		cfg = loaded
	} else if _, err := os.Stat(config.FileName); err == nil {
		loaded, err := config.Load(config.FileName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s\n", color.RedString("%v", err))
			os.Exit(1)
		}
		cfg = loaded
	}

	var logFile *string
	if cfg.Log.File != "" {
		logFile = &cfg.Log.File
	}
	commonlog.Configure(cfg.Log.Verbosity, logFile)

	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read file: %v\n", err)
		os.Exit(1)
	}

	engine, err := peephole.New(cfg.EngineOptions()...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	out, err := driver.Process(os.Stdout, path, string(source), engine)
	if err != nil {
		color.Red("%v", err)
		os.Exit(1)
	}
	if verbose {
		driver.WriteNotes(os.Stdout, path, out)
	}
	driver.WriteResult(os.Stdout, path, out)
	if out.Failed() {
		os.Exit(1)
	}
}
