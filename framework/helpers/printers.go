package helpers

import (
	"fmt"
	"io"
)

// MustFprintln writes to w and panics if the write fails. It is meant for console output where
// there is nothing useful to do with a write error.
func MustFprintln(w io.Writer, a ...any) {
	if _, err := fmt.Fprintln(w, a...); err != nil {
		panic(err)
	}
}

// MustFprintf is the formatted equivalent of MustFprintln.
func MustFprintf(w io.Writer, format string, a ...any) {
	if _, err := fmt.Fprintf(w, format, a...); err != nil {
		panic(err)
	}
}
