package runner

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/josephlewis42/rlsweep/core/config"
	"github.com/josephlewis42/rlsweep/core/sweep"
)

const bannerRule = "=========="

// Banner writes the human readable lines around each run.
type Banner struct {
	out io.Writer

	start *color.Color
	ok    *color.Color
	bad   *color.Color
	skip  *color.Color
}

// NewBanner creates a Banner, mode is one of config.ColorAlways,
// config.ColorAuto or config.ColorNever.
func NewBanner(out io.Writer, mode string) *Banner {
	b := &Banner{
		out:   out,
		start: color.New(color.FgCyan, color.Bold),
		ok:    color.New(color.FgGreen, color.Bold),
		bad:   color.New(color.FgRed, color.Bold),
		skip:  color.New(color.FgYellow),
	}

	for _, c := range []*color.Color{b.start, b.ok, b.bad, b.skip} {
		switch mode {
		case config.ColorAlways:
			c.EnableColor()
		case config.ColorNever:
			c.DisableColor()
		}
	}
	return b
}

func (b *Banner) line(c *color.Color, format string, a ...interface{}) {
	msg := fmt.Sprintf(format, a...)
	fmt.Fprintln(b.out, c.Sprintf("%s %s %s", bannerRule, msg, bannerRule))
}

// Start is written before a run's process is launched.
func (b *Banner) Start(r sweep.Run, attempt int) {
	if attempt > 1 {
		b.line(b.start, "Start %s (attempt %d)", r, attempt)
		return
	}
	b.line(b.start, "Start %s", r)
}

// Finish is written after a run's process exits.
func (b *Banner) Finish(res Result) {
	switch res.Status {
	case StatusSucceeded:
		b.line(b.ok, "Finish %s (%s)", res.Run, res.Status)
	case StatusFailed:
		b.line(b.bad, "Finish %s (%s: exit code %d)", res.Run, res.Status, res.ExitCode)
	default:
		b.line(b.bad, "Finish %s (%s)", res.Run, res.Status)
	}
}

// Skip is written for runs that aren't launched.
func (b *Banner) Skip(r sweep.Run, reason string) {
	b.line(b.skip, "Skip %s (%s)", r, reason)
}

// Command writes a planned command line without running it.
func (b *Banner) Command(argv []string) {
	fmt.Fprintln(b.out, sweep.JoinArgs(argv))
}

// Summary is written once all runs are done.
func (b *Banner) Summary(s *Summary) {
	var parts []string
	for _, status := range []Status{StatusSucceeded, StatusFailed, StatusTimedOut, StatusCanceled, StatusSkipped, StatusPlanned} {
		if n := s.Count(status); n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, status))
		}
	}

	c := b.ok
	if s.Err() != nil {
		c = b.bad
	}
	fmt.Fprintln(b.out, c.Sprintf("Sweep %s: %d runs, %s", s.SweepID, len(s.Results), strings.Join(parts, ", ")))
}
