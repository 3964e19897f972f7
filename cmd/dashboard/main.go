package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/patient-intake/internal/client"
	"github.com/hackgods/patient-intake/internal/config"
	"github.com/hackgods/patient-intake/internal/dashboard"
	"github.com/hackgods/patient-intake/internal/logging"
	"github.com/hackgods/patient-intake/internal/patient"
)

const (
	clearScreen   = "\033[H\033[2J"
	redrawEvery   = 30 * time.Second
	commandPrompt = "commands: delete <session_id> | refresh | quit"
)

func main() {
	var plain bool

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Watch every intake form live from a terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClient()
			if err != nil {
				return err
			}
			// logs go to stderr so they do not tear the rendered board
			log := logging.NewTo(os.Stderr, cfg.Env, cfg.LogLevel).With().Str("service", "dashboard").Logger()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, log, os.Stdin, cmd.OutOrStdout(), plain)
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "append frames instead of clearing the screen")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.ClientConfig, log zerolog.Logger, in io.Reader, out io.Writer, plain bool) error {
	api := client.New(cfg.APIBaseURL, client.WithLogger(log))

	con := &console{out: out, plain: plain}
	ctrl := dashboard.New(dashboard.NewClientSource(api),
		dashboard.WithLiveWindow(cfg.LiveWindow),
		dashboard.WithLogger(log),
		dashboard.WithOnChange(con.redraw),
	)
	con.ctrl = ctrl

	if err := ctrl.Activate(ctx); err != nil {
		return err
	}
	defer ctrl.Deactivate()
	con.redraw()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	con.lines = lines

	ticker := time.NewTicker(redrawEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			con.redraw()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := con.handle(ctx, line); quit {
				return nil
			}
		}
	}
}

// console renders the board and runs the commands typed below it.
type console struct {
	ctrl  *dashboard.Controller
	out   io.Writer
	lines <-chan string
	plain bool
	now   func() time.Time

	mu     sync.Mutex
	notice string
}

func (c *console) redraw() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if c.now != nil {
		now = c.now()
	}
	if !c.plain {
		fmt.Fprint(c.out, clearScreen)
	}
	if err := dashboard.Render(c.out, c.ctrl.Snapshot(), now); err != nil {
		return
	}
	if c.notice != "" {
		fmt.Fprintln(c.out, c.notice)
	}
	fmt.Fprintln(c.out, commandPrompt)
}

func (c *console) setNotice(format string, args ...any) {
	c.mu.Lock()
	c.notice = fmt.Sprintf(format, args...)
	c.mu.Unlock()
}

// handle runs one command line and reports whether the user asked to quit.
func (c *console) handle(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "quit", "exit", "q":
		return true
	case "refresh", "r":
		if err := c.ctrl.Refresh(ctx); err != nil {
			c.setNotice("Failed to refresh: %v", err)
		} else {
			c.setNotice("")
		}
	case "delete", "d":
		if len(fields) != 2 {
			c.setNotice("usage: delete <session_id>")
			break
		}
		c.delete(ctx, fields[1])
	default:
		c.setNotice("unknown command %q", fields[0])
	}

	c.redraw()
	return false
}

func (c *console) delete(ctx context.Context, sessionID string) {
	p, ok := c.ctrl.FindBySession(sessionID)
	if !ok {
		c.setNotice("No patient with session %s", sessionID)
		return
	}

	deleted, err := c.ctrl.DeleteRecord(ctx, p.ID, c.confirm)
	switch {
	case errors.Is(err, dashboard.ErrUnknownPatient):
		c.setNotice("No patient with session %s", sessionID)
	case err != nil:
		c.setNotice("Failed to delete record: %v", err)
	case deleted:
		c.setNotice("Deleted %s", sessionID)
	default:
		c.setNotice("")
	}
}

// confirm asks before a row is removed. Anything but y or yes keeps it.
func (c *console) confirm(p patient.Patient) bool {
	c.mu.Lock()
	fmt.Fprintf(c.out, "Delete %s (%s)? This cannot be undone. [y/N] ", displayName(p), p.SessionID)
	c.mu.Unlock()

	answer, ok := <-c.lines
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

func displayName(p patient.Patient) string {
	if name := p.FullName(); name != "" {
		return name
	}
	return "this patient"
}
