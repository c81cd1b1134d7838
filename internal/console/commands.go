package console

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xtxerr/hostwatch/internal/errors"
	"github.com/xtxerr/hostwatch/internal/storage/query"
	"github.com/xtxerr/hostwatch/internal/storage/types"
	"github.com/xtxerr/hostwatch/internal/thresholds"
)

// API is the query surface the console drives.
type API interface {
	GetHistory(ctx context.Context, target string, from, to time.Time) (*query.History, error)
	GetRecentAlerts(ctx context.Context, target string, limit int) ([]types.AlertRecord, error)
	AcknowledgeAlert(ctx context.Context, id int64) error
	GetThresholds() []types.AlertThreshold
	SetThresholds(list []types.AlertThreshold) error
}

// errQuit ends the session.
var errQuit = errors.New("quit")

type command struct {
	name    string
	usage   string
	summary string
	run     func(c *Console, ctx context.Context, args []string) error
}

// commands is filled in init; help and usage refer back to it.
var commands []command

func init() {
	commands = []command{
		{"history", "history <target> [range]", "show utilization over the last range (default 1h)", (*Console).cmdHistory},
		{"alerts", "alerts [target] [limit]", "list recent alerts", (*Console).cmdAlerts},
		{"ack", "ack <id>", "acknowledge an alert", (*Console).cmdAck},
		{"thresholds", "thresholds [kind=percent[:off] ...]", "show or replace alert thresholds", (*Console).cmdThresholds},
		{"help", "help", "list commands", (*Console).cmdHelp},
		{"exit", "exit", "leave the console", func(*Console, context.Context, []string) error { return errQuit }},
	}
}

func lookup(name string) (command, bool) {
	if name == "quit" {
		name = "exit"
	}
	for _, cmd := range commands {
		if cmd.name == name {
			return cmd, true
		}
	}
	return command{}, false
}

// Execute runs one input line. quit reports whether the session should
// end.
func (c *Console) Execute(ctx context.Context, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	cmd, ok := lookup(strings.ToLower(fields[0]))
	if !ok {
		return false, fmt.Errorf("unknown command %q (try help)", fields[0])
	}

	err = cmd.run(c, ctx, fields[1:])
	if errors.Is(err, errQuit) {
		return true, nil
	}
	return false, err
}

func (c *Console) cmdHistory(ctx context.Context, args []string) error {
	if len(args) == 0 || len(args) > 2 {
		return usageError("history")
	}
	span := time.Hour
	if len(args) == 2 {
		d, err := time.ParseDuration(args[1])
		if err != nil || d <= 0 {
			return errors.NewInvalidValue("range", args[1], "want a positive duration like 30m or 6h")
		}
		span = d
	}

	to := c.now()
	h, err := c.api.GetHistory(ctx, args[0], to.Add(-span), to)
	if err != nil {
		return err
	}
	PrintHistory(c.out, h, c.maxRows)
	return nil
}

func (c *Console) cmdAlerts(ctx context.Context, args []string) error {
	var target string
	limit := 0
	for _, arg := range args {
		if n, err := strconv.Atoi(arg); err == nil {
			limit = n
			continue
		}
		if target != "" {
			return usageError("alerts")
		}
		target = arg
	}

	alerts, err := c.api.GetRecentAlerts(ctx, target, limit)
	if err != nil {
		return err
	}
	PrintAlerts(c.out, alerts)
	return nil
}

func (c *Console) cmdAck(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("ack")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return errors.NewInvalidValue("id", args[0], "not a number")
	}
	if err := c.api.AcknowledgeAlert(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "alert %d acknowledged\n", id)
	return nil
}

func (c *Console) cmdThresholds(ctx context.Context, args []string) error {
	if len(args) > 0 {
		rules, err := thresholds.ParseRules(args)
		if err != nil {
			return err
		}
		if err := c.api.SetThresholds(rules); err != nil {
			return err
		}
	}
	PrintThresholds(c.out, c.api.GetThresholds())
	return nil
}

func (c *Console) cmdHelp(context.Context, []string) error {
	for _, cmd := range commands {
		fmt.Fprintf(c.out, "  %-38s %s\n", cmd.usage, cmd.summary)
	}
	return nil
}

func usageError(name string) error {
	cmd, _ := lookup(name)
	return errors.NewValidation("usage", cmd.usage)
}

// printError writes a command failure without ending the session.
func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "error: %v\n", err)
}
