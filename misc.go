package ariesk

import (
	"fmt"
	"os"
)

// Verbose gates Vprint/Vprintf/Vprintln, following the teacher's convention
// of a single package-level switch flipped by the CLI's --verbose flag
// rather than a full logging framework for this kind of progress chatter.
var Verbose = false

func Vprint(s string) {
	if !Verbose {
		return
	}
	fmt.Fprint(os.Stderr, s)
}

func Vprintf(format string, v ...interface{}) {
	if !Verbose {
		return
	}
	fmt.Fprintf(os.Stderr, format, v...)
}

func Vprintln(s string) {
	if !Verbose {
		return
	}
	fmt.Fprintln(os.Stderr, s)
}
