// Command rift is Rift's process entry point: given a source
// file argument, it compiles and runs the file and exits 0, or exits 1 and
// prints a diagnostic on a *errors.RiftError; given no argument, it starts
// the REPL of internal/repl. -d dumps each compiled function template's
// debug LLVM IR as it's JIT-compiled. Flags are hand-parsed from os.Args
// rather than built on the flag package's subcommand machinery.
package main

import (
	"fmt"
	"os"

	"rift/internal/errors"
	"rift/internal/jit"
	"rift/internal/repl"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	debug := false
	var file string
	for _, a := range args {
		switch {
		case a == "-d" || a == "--debug":
			debug = true
		case a == "-h" || a == "--help":
			usage()
			return 0
		case file == "" && len(a) > 0 && a[0] != '-':
			file = a
		default:
			fmt.Fprintf(os.Stderr, "rift: unrecognized argument %q\n", a)
			usage()
			return 1
		}
	}

	if file == "" {
		repl.Start(os.Stdin, os.Stdout, debug)
		return 0
	}
	return runFile(file, debug)
}

func runFile(path string, debug bool) int {
	src, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rift: %v\n", err)
		return 1
	}

	var dump func(string)
	if debug {
		dump = func(s string) { fmt.Fprintln(os.Stderr, s) }
	}
	driver := jit.New(debug, dump)
	driver.File = path

	if _, err := driver.Run(string(src)); err != nil {
		if rerr, ok := err.(*errors.RiftError); ok {
			fmt.Fprintln(os.Stderr, rerr.Error())
		} else {
			fmt.Fprintln(os.Stderr, err.Error())
		}
		return 1
	}
	return 0
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: rift [-d] [file]")
	fmt.Fprintln(os.Stderr, "  runs file if given, otherwise starts the REPL")
	fmt.Fprintln(os.Stderr, "  -d    dump each compiled function's debug IR")
}
