package config

import (
	"fmt"
	"io"
	"os"
)

// exit is swapped in tests that need to observe the exit code in-process.
var exit = os.Exit

// Exitf writes a formatted error message to stderr and exits with code 1.
func Exitf(format string, args ...any) {
	exitf(os.Stderr, 1, format, args...)
}

// ExitCodef is Exitf with an explicit exit code, for commands that
// distinguish partial failure (code 2) from fatal errors.
func ExitCodef(code int, format string, args ...any) {
	exitf(os.Stderr, code, format, args...)
}

func exitf(w io.Writer, code int, format string, args ...any) {
	fmt.Fprintf(w, format+"\n", args...)
	exit(code)
}
