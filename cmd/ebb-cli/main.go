// SPDX-License-Identifier: Apache-2.0
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/tliron/commonlog"

	"ebb/grammar"
	"ebb/internal/analysis"
	"ebb/internal/config"
	"ebb/internal/diag"
	"ebb/internal/ir"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: ebb <file.ebb>")
		os.Exit(1)
	}

	startTime := time.Now()
	path := os.Args[1]

	cfg, err := config.Load(filepath.Dir(path))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	commonlog.Configure(cfg.Verbosity, nil)

	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read file: %v\n", err)
		os.Exit(1)
	}

	reporter := diag.NewReporter(path, string(source))

	file, err := grammar.ParseSource(path, string(source))
	if err != nil {
		pos := ir.Pos{File: path, Line: 1, Column: 1}
		if line, column, ok := grammar.ErrorPosition(err); ok {
			pos.Line, pos.Column = line, column
		}
		fmt.Print(reporter.Format(diag.Errorf(pos, "", "%v", err)))
		fail(startTime)
	}

	module, buildErrs := ir.BuildModule(file)
	if len(buildErrs) > 0 {
		for _, buildErr := range buildErrs {
			fmt.Print(reporter.Format(diag.Errorf(buildErr.Pos, "", "%s", buildErr.Msg)))
		}
		fail(startTime)
	}

	result, err := analysis.Run(module)
	if err != nil {
		fmt.Fprintf(os.Stderr, "analysis failed: %v\n", err)
		fail(startTime)
	}

	for _, finding := range result.Findings() {
		if !enabled(cfg, finding) {
			continue
		}
		fmt.Print(reporter.Format(finding))
	}

	if cfg.PrintIR {
		fmt.Println(ir.PrintAnnotated(module, func(v ir.Value) string {
			return result.FactFor(v)
		}))
	}

	color.Green("Analyzed %s in %s", path, formatDuration(time.Since(startTime)))
}

func enabled(cfg config.Config, d diag.Diagnostic) bool {
	switch d.Code {
	case "A0001":
		return cfg.Checks.Unreachable
	case "A0002":
		return cfg.Checks.Unused
	case "A0003":
		return cfg.Checks.Constants
	}
	return true
}

func fail(startTime time.Time) {
	color.Red("Analysis failed after %s", formatDuration(time.Since(startTime)))
	os.Exit(1)
}

func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Minute:
		return fmt.Sprintf("%.2fmin", d.Minutes())
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%.1fms", float64(d.Nanoseconds())/1000000.0)
	case d >= time.Microsecond:
		return fmt.Sprintf("%.1fμs", float64(d.Nanoseconds())/1000.0)
	default:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	}
}
