// Package report is the user-facing output channel for the versioning
// subsystem. Engines never print directly; they talk to a Reporter so the
// same code runs headless in tests and silently for safety snapshots.
package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

type Reporter interface {
	Infof(format string, args ...any)
	Successf(format string, args ...any)
	Warnf(format string, args ...any)

	// Confirm prompts the user and returns true if they approved.
	Confirm(prompt string) bool
}

// Console writes colorized output to a terminal and reads confirmations
// from stdin.
type Console struct {
	Out io.Writer
	In  io.Reader
}

func NewConsole() *Console {
	return &Console{Out: os.Stdout, In: os.Stdin}
}

func (c *Console) Infof(format string, args ...any) {
	fmt.Fprintf(c.Out, format+"\n", args...)
}

func (c *Console) Successf(format string, args ...any) {
	color.New(color.FgGreen).Fprintf(c.Out, format+"\n", args...)
}

func (c *Console) Warnf(format string, args ...any) {
	color.New(color.FgYellow).Fprintf(c.Out, format+"\n", args...)
}

func (c *Console) Confirm(prompt string) bool {
	fmt.Fprintf(c.Out, "%s [y/N]: ", prompt)
	reader := bufio.NewReader(c.In)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// Silent discards all output and approves every confirmation. Used for
// auto-snapshots and other internal operations that must not chat.
type Silent struct{}

func (Silent) Infof(string, ...any)    {}
func (Silent) Successf(string, ...any) {}
func (Silent) Warnf(string, ...any)    {}
func (Silent) Confirm(string) bool     { return true }

// Scripted answers confirmations from a canned response and records
// everything it was told. Test double.
type Scripted struct {
	Approve  bool
	Messages []string
	Prompts  []string
}

func (s *Scripted) Infof(format string, args ...any) {
	s.Messages = append(s.Messages, fmt.Sprintf(format, args...))
}

func (s *Scripted) Successf(format string, args ...any) {
	s.Messages = append(s.Messages, fmt.Sprintf(format, args...))
}

func (s *Scripted) Warnf(format string, args ...any) {
	s.Messages = append(s.Messages, fmt.Sprintf(format, args...))
}

func (s *Scripted) Confirm(prompt string) bool {
	s.Prompts = append(s.Prompts, prompt)
	return s.Approve
}
