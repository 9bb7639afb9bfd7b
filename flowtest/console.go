package flowtest

import (
	"github.com/fatih/color"

	"github.com/proy1234/prplMesh/framework/helpers"
)

var (
	statusColor  = color.New(color.Bold, color.FgMagenta) //nolint:gochecknoglobals
	errorColor   = color.New(color.Bold, color.FgRed)     //nolint:gochecknoglobals
	successColor = color.New(color.Bold, color.FgGreen)   //nolint:gochecknoglobals
)

// Status prints a progress line.
func (b *Base) Status(text string) {
	helpers.MustFprintln(b.out, statusColor.Sprint(text))
}

// Error prints a failure line followed by a blank line. It does not fail the test.
func (b *Base) Error(text string) {
	helpers.MustFprintln(b.out, errorColor.Sprint(text)+"\n")
}

// Success prints a success line followed by a blank line.
func (b *Base) Success(text string) {
	helpers.MustFprintln(b.out, successColor.Sprint(text)+"\n")
}

// Debug prints text only if the TestSystem is verbose.
func (b *Base) Debug(text string) {
	if b.system.Verbose() {
		helpers.MustFprintln(b.out, text)
	}
}
