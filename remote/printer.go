package remote

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Printer echoes remote activity to the operator's terminal.
type Printer struct {
	out     io.Writer
	dollar  lipgloss.Style
	command lipgloss.Style
	arrow   lipgloss.Style
	banner  lipgloss.Style
}

func NewPrinter(out io.Writer) *Printer {
	r := lipgloss.NewRenderer(out)
	return &Printer{
		out:     out,
		dollar:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("4")),
		command: r.NewStyle().Bold(true).Foreground(lipgloss.Color("3")),
		arrow:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("1")),
		banner:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("2")),
	}
}

// Command prints command the way it is about to be issued.
func (p *Printer) Command(command string) {
	fmt.Fprintf(p.out, "\n%s%s%s\n\n", p.dollar.Render("$ "), p.command.Render(command), p.arrow.Render(" ->"))
}

// Banner prints the name of an operation framed by dashes.
func (p *Printer) Banner(name string) {
	rule := strings.Repeat("-", len(name))
	fmt.Fprintf(p.out, "\n%s\n\n", p.banner.Render(strings.Join([]string{rule, name, rule}, "\n")))
}

func (p *Printer) Println(a ...any) {
	fmt.Fprintln(p.out, a...)
}

func (p *Printer) Writer() io.Writer {
	return p.out
}
