// Package repl reads functions from an interactive session and prints them
// optimized.
package repl

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"peephole/internal/driver"
	"peephole/internal/peephole"

	"github.com/fatih/color"
)

const (
	PROMPT       = ">> "
	CONTINUATION = ".. "
)

// Start reads functions from in until it is exhausted. A function ends at a
// line holding only "}".
func Start(in io.Reader, out io.Writer, engine *peephole.Engine) {
	scanner := bufio.NewScanner(in)
	var buf strings.Builder
	n := 0

	fmt.Fprint(out, PROMPT)
	for scanner.Scan() {
		line := scanner.Text()
		buf.WriteString(line)
		buf.WriteString("\n")

		if strings.TrimSpace(line) != "}" {
			if strings.TrimSpace(buf.String()) == "" {
				buf.Reset()
				fmt.Fprint(out, PROMPT)
			} else {
				fmt.Fprint(out, CONTINUATION)
			}
			continue
		}

		n++
		name := fmt.Sprintf("<repl:%d>", n)
		result, err := driver.Process(out, name, buf.String(), engine)
		buf.Reset()
		if err != nil {
			fmt.Fprintln(out, color.RedString("%v", err))
		} else {
			driver.WriteNotes(out, name, result)
			driver.WriteResult(out, name, result)
		}
		fmt.Fprint(out, PROMPT)
	}
	fmt.Fprintln(out)
}
