// Package repl implements Rift's interactive loop: statement-
// granularity error recovery — a *errors.RiftError aborts only the
// statement that raised it, not the session — and echoes each statement's
// resulting value. Loop structure is a bufio.Scanner over stdin printing a
// ">>> " prompt, TTY-gated using github.com/mattn/go-isatty the way any Go
// REPL distinguishes an interactive terminal from a piped script.
package repl

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"rift/internal/errors"
	"rift/internal/jit"
	"rift/internal/value"
)

// Start runs the REPL, reading statements from in and writing prompts and
// results to out. debug mirrors the -d flag: each compiled template's debug
// IR is printed to out as it compiles.
func Start(in io.Reader, out io.Writer, debug bool) {
	interactive := isatty.IsTerminal(os.Stdin.Fd())
	if interactive {
		fmt.Fprintln(out, "rift — type an expression, or Ctrl-D to quit")
	}

	var dump func(string)
	if debug {
		dump = func(s string) { fmt.Fprintln(out, s) }
	}
	driver := jit.New(debug, dump)
	driver.File = "<repl>"

	scanner := bufio.NewScanner(in)
	for {
		if interactive {
			fmt.Fprint(out, ">>> ")
		}
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		v, err := driver.Run(line)
		if err != nil {
			printError(out, err)
			continue
		}
		fmt.Fprintln(out, format(v))
	}
}

func printError(out io.Writer, err error) {
	if rerr, ok := err.(*errors.RiftError); ok {
		fmt.Fprintln(out, rerr.Error())
		return
	}
	fmt.Fprintln(out, err.Error())
}

// format renders a result value for the REPL: a character vector prints
// its bytes as text, a double vector its elements, a function its arity.
func format(v value.Value) string {
	switch t := v.(type) {
	case *value.DoubleVector:
		return formatDoubles(t.Data)
	case *value.CharacterVector:
		return string(t.Bytes)
	case *value.Function:
		return fmt.Sprintf("<function/%d>", t.Arity())
	default:
		return fmt.Sprintf("%v", t)
	}
}

func formatDoubles(data []float64) string {
	if len(data) == 1 {
		return fmt.Sprintf("%g", data[0])
	}
	s := "["
	for i, d := range data {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%g", d)
	}
	return s + "]"
}
