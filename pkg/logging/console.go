package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

const (
	bannerRule = "==========================================================================="
	errorRule  = "======================================="
)

var (
	blue     = color.New(color.FgBlue)
	blueBold = color.New(color.FgBlue, color.Bold)
	red      = color.New(color.FgRed)
	redBold  = color.New(color.FgRed, color.Bold)
	yellow   = color.New(color.FgYellow)
)

// Console prints the banner-style progress lines a person watches while
// a deployment runs. Banners go to Out, failures to Err.
type Console struct {
	app string
	Out io.Writer
	Err io.Writer
}

// NewConsole returns a Console for app writing to stdout and stderr.
func NewConsole(app string) *Console {
	return &Console{app: app, Out: os.Stdout, Err: os.Stderr}
}

// NewConsoleTo returns a Console for app writing to the given streams.
func NewConsoleTo(app string, out, errOut io.Writer) *Console {
	return &Console{app: app, Out: out, Err: errOut}
}

// Banner prints msg between two rules, prefixed with the application name.
func (c *Console) Banner(msg string) {
	fmt.Fprint(c.Out, "\n\n")
	blue.Fprintln(c.Out, bannerRule)
	fmt.Fprintf(c.Out, "%s %s\n", blueBold.Sprintf("ssh-deploy (%s)", c.app), blue.Sprint(msg))
	blue.Fprintln(c.Out, bannerRule)
}

// Executing echoes a command line before it runs.
func (c *Console) Executing(cmdline string) {
	fmt.Fprintf(c.Out, "%s $ %s\n", blueBold.Sprint("Executing..."), blue.Sprint(cmdline))
}

// Warn prints a non-fatal problem.
func (c *Console) Warn(msg string) {
	yellow.Fprintln(c.Err, "Warning: "+msg)
}

// Failure prints the error block shown when a deployment aborts.
func (c *Console) Failure(err error) {
	fmt.Fprint(c.Err, "\n\n")
	red.Fprintln(c.Err, errorRule)
	fmt.Fprintf(c.Err, "%s %s\n", redBold.Sprint("Yikes!"), red.Sprint("Error running deploy:"))
	fmt.Fprintln(c.Err, SanitizeString(strings.TrimSpace(err.Error())))
	red.Fprintln(c.Err, errorRule)
}
