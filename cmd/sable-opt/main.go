// SPDX-License-Identifier: Apache-2.0
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/participle/v2"
	"github.com/fatih/color"
	"github.com/tliron/commonlog"

	"sable/internal/ir"
	"sable/internal/irtext"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: sable-opt <file.sir>")
		os.Exit(1)
	}

	commonlog.Configure(0, nil)

	startTime := time.Now()
	path := os.Args[1]

	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read file: %v\n", err)
		os.Exit(1)
	}

	directives, err := irtext.ParseDirectives(string(source))
	if err != nil {
		color.Red("error: %v", err)
		os.Exit(1)
	}

	m, _, err := irtext.Parse(path, string(source))
	if err != nil {
		reportParseError(string(source), err)
		os.Exit(1)
	}

	if err := ir.VerifyModule(m); err != nil {
		color.Red("error: %v", err)
		os.Exit(1)
	}

	if err := directives.Run(m); err != nil {
		color.Red("error: %v", err)
		os.Exit(1)
	}

	var printer ir.Printer
	printed := printer.Print(m)
	fmt.Print(printed)

	failed := false
	for _, err := range directives.Expect(printed) {
		color.Red("error: %v", err)
		failed = true
	}

	duration := formatDuration(time.Since(startTime))
	if failed {
		color.Red("Check failed after %s", duration)
		os.Exit(1)
	}
	color.Green("Successfully processed %s in %s", path, duration)
}

// reportParseError prints a friendly caret-style parse error message.
func reportParseError(src string, err error) {
	pe, ok := err.(participle.Error)
	if !ok {
		color.Red("error: %s", err)
		return
	}

	pos := pe.Position()
	lines := strings.Split(src, "\n")
	if pos.Line <= 0 || pos.Line > len(lines) {
		color.Red("Syntax error at unknown location: %s", err)
		return
	}

	line := lines[pos.Line-1]
	caret := strings.Repeat(" ", max(0, pos.Column-1)) + "^"

	color.Red("Syntax error in %s at line %d, column %d:", pos.Filename, pos.Line, pos.Column)
	fmt.Println(line)
	color.HiRed(caret)
	fmt.Printf("-> %s\n", pe.Message())
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
