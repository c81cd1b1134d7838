// Package console is an interactive shell over the monitor API with
// command and target completion.
package console

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	prompt "github.com/c-bata/go-prompt"
	"golang.org/x/term"

	"github.com/xtxerr/hostwatch/internal/errors"
)

// ErrNotTerminal is returned by Run when stdin is not a terminal.
var ErrNotTerminal = errors.New("console requires an interactive terminal")

// Console holds one shell session.
type Console struct {
	api     API
	targets func() []string
	out     io.Writer
	now     func() time.Time
	maxRows int
}

// New creates a console. targets feeds completion and may be nil.
func New(api API, targets func() []string, out io.Writer) *Console {
	if out == nil {
		out = os.Stdout
	}
	return &Console{api: api, targets: targets, out: out, now: time.Now}
}

// CheckTerminal returns ErrNotTerminal unless stdin is a terminal.
func CheckTerminal() error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return ErrNotTerminal
	}
	return nil
}

// Run reads commands until exit, EOF or ctx cancellation.
func (c *Console) Run(ctx context.Context) error {
	if err := CheckTerminal(); err != nil {
		return err
	}
	fd := int(os.Stdin.Fd())
	if _, height, err := term.GetSize(fd); err == nil && height > 6 {
		c.maxRows = height - 6
	}

	quit := false
	p := prompt.New(
		func(line string) {
			if ctx.Err() != nil {
				quit = true
				return
			}
			q, err := c.Execute(ctx, line)
			if err != nil {
				printError(c.out, err)
			}
			quit = q
		},
		c.Complete,
		prompt.OptionPrefix("hostwatch> "),
		prompt.OptionTitle("hostwatch"),
		prompt.OptionMaxSuggestion(8),
		prompt.OptionSetExitCheckerOnInput(func(string, bool) bool { return quit }),
	)
	p.Run()
	return nil
}

// Complete suggests commands for the first word and targets for the
// second.
func (c *Console) Complete(d prompt.Document) []prompt.Suggest {
	before := d.TextBeforeCursor()
	word := d.GetWordBeforeCursor()
	fields := strings.Fields(before)

	if len(fields) == 0 || (len(fields) == 1 && !strings.HasSuffix(before, " ")) {
		s := make([]prompt.Suggest, 0, len(commands))
		for _, cmd := range commands {
			s = append(s, prompt.Suggest{Text: cmd.name, Description: cmd.summary})
		}
		return prompt.FilterHasPrefix(s, word, true)
	}

	switch fields[0] {
	case "history", "alerts":
		argPos := len(fields) - 1
		if strings.HasSuffix(before, " ") {
			argPos++
		}
		if argPos != 1 || c.targets == nil {
			return nil
		}
		var s []prompt.Suggest
		for _, t := range c.targets() {
			s = append(s, prompt.Suggest{Text: t})
		}
		return prompt.FilterHasPrefix(s, word, true)
	case "thresholds":
		return prompt.FilterHasPrefix([]prompt.Suggest{
			{Text: "cpu=", Description: "cpu percent"},
			{Text: "memory=", Description: "memory percent"},
			{Text: "disk=", Description: "disk percent"},
		}, word, true)
	}
	return nil
}
