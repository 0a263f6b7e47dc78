package cliui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/papercomputeco/ragora/pkg/utils"
)

const defaultWidth = 80

// Output writes styled text, dropping ANSI sequences when the destination is
// not a colour terminal (pipes, files, NO_COLOR).
type Output struct {
	w     io.Writer
	color bool
	width int
}

// NewOutput inspects w and returns an Output for it.
func NewOutput(w io.Writer) *Output {
	o := &Output{w: w, width: defaultWidth}

	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return o
	}

	if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
		o.width = width
	}
	o.color = termenv.NewOutput(f).EnvColorProfile() != termenv.Ascii

	return o
}

// Color reports whether styles are rendered.
func (o *Output) Color() bool {
	return o.color
}

// Width is the terminal width, or 80 when unknown.
func (o *Output) Width() int {
	return o.width
}

// Writer exposes the destination for unstyled streaming writes.
func (o *Output) Writer() io.Writer {
	return o.w
}

// Print writes s, stripped of styling when colour is off.
func (o *Output) Print(s string) {
	if !o.color {
		s = ansi.Strip(s)
	}
	_, _ = io.WriteString(o.w, s)
}

// Printf formats and prints like Print.
func (o *Output) Printf(format string, args ...any) {
	o.Print(fmt.Sprintf(format, args...))
}

// Println prints s followed by a newline.
func (o *Output) Println(s string) {
	o.Print(s + "\n")
}

// Markdown renders content with glamour on a colour terminal and prints it
// verbatim otherwise.
func (o *Output) Markdown(content string) {
	if !o.color {
		o.Println(content)
		return
	}

	rendered, err := RenderMarkdown(content, o.width)
	if err != nil {
		o.Println(content)
		return
	}
	o.Print(rendered)
}

// Preview flattens s onto one line and cuts it to fit width display cells.
func Preview(s string, width int) string {
	if width <= 0 {
		width = defaultWidth
	}
	return ansi.Truncate(utils.SingleLine(s), width, "…")
}

// ReadSecret prompts on w and reads a line from the terminal without echo.
func ReadSecret(w io.Writer, prompt string) (string, error) {
	fmt.Fprint(w, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return string(b), nil
}
