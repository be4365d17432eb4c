// Package report renders the outcome of a run for people and maps it to a
// process exit code.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/specialistvlad/unloadcopy/internal/executor"
	"github.com/specialistvlad/unloadcopy/internal/node"
)

// Process exit codes.
const (
	// ExitSuccess means every task succeeded.
	ExitSuccess = 0
	// ExitTaskFailure means at least one task failed or was skipped.
	ExitTaskFailure = 1
	// ExitConfigError means the run never started: bad flags, an invalid job
	// file or a graph that could not be built.
	ExitConfigError = 2
)

// ExitCode maps a finished run to the process exit code.
func ExitCode(r *executor.Result) int {
	if r == nil || !r.Success {
		return ExitTaskFailure
	}
	return ExitSuccess
}

// Writer prints run reports.
type Writer struct {
	out io.Writer

	heading *color.Color
	ok      *color.Color
	failed  *color.Color
	skipped *color.Color
	faint   *color.Color
}

// New creates a report writer. Colours are used only when the terminal
// supports them and noColor is false.
func New(out io.Writer, noColor bool) *Writer {
	w := &Writer{
		out:     out,
		heading: color.New(color.FgHiWhite, color.Bold),
		ok:      color.New(color.FgGreen),
		failed:  color.New(color.FgRed, color.Bold),
		skipped: color.New(color.FgYellow),
		faint:   color.New(color.Faint),
	}
	if noColor {
		for _, c := range []*color.Color{w.heading, w.ok, w.failed, w.skipped, w.faint} {
			c.DisableColor()
		}
	}
	return w
}

// Write prints a summary of r followed by every failed or skipped task,
// grouped by table.
func (w *Writer) Write(r *executor.Result) error {
	var (
		total, succeeded, failed, skipped int
		tables                            = make(map[string]bool)
	)
	for _, t := range r.Tasks {
		if t.Barrier {
			continue
		}
		total++
		tables[t.Scope] = true
		switch t.Status {
		case node.StatusSucceeded:
			succeeded++
		case node.StatusFailed:
			failed++
		case node.StatusSkipped:
			skipped++
		}
	}

	var sb strings.Builder
	w.heading.Fprintf(&sb, "Migration report: %d tables, %d tasks\n", len(tables), total)
	w.ok.Fprintf(&sb, "  %d succeeded", succeeded)
	sb.WriteString(", ")
	w.failed.Fprintf(&sb, "%d failed", failed)
	sb.WriteString(", ")
	w.skipped.Fprintf(&sb, "%d skipped", skipped)
	sb.WriteString("\n")

	if r.Success {
		w.ok.Fprintln(&sb, "All tables migrated.")
		_, err := io.WriteString(w.out, sb.String())
		return err
	}

	byScope := make(map[string][]executor.TaskResult)
	for _, t := range r.Unsuccessful() {
		byScope[t.Scope] = append(byScope[t.Scope], t)
	}
	scopes := make([]string, 0, len(byScope))
	for s := range byScope {
		scopes = append(scopes, s)
	}
	sort.Strings(scopes)

	for _, scope := range scopes {
		sb.WriteString("\n")
		w.heading.Fprintln(&sb, scope)
		for _, t := range byScope[scope] {
			w.writeTask(&sb, t)
		}
	}
	_, err := io.WriteString(w.out, sb.String())
	return err
}

func (w *Writer) writeTask(sb *strings.Builder, t executor.TaskResult) {
	switch t.Status {
	case node.StatusFailed:
		w.failed.Fprintf(sb, "  %-8s", "FAILED")
	case node.StatusSkipped:
		w.skipped.Fprintf(sb, "  %-8s", "SKIPPED")
	default:
		fmt.Fprintf(sb, "  %-8s", strings.ToUpper(t.Status.String()))
	}
	sb.WriteString(" " + t.Stage)
	if d := duration(t); d > 0 {
		w.faint.Fprintf(sb, " (%s)", d)
	}
	sb.WriteString("\n")
	if t.Err != nil {
		w.faint.Fprintf(sb, "           %s\n", t.Err)
	}
}

func duration(t executor.TaskResult) time.Duration {
	if t.Started.IsZero() || t.Finished.IsZero() {
		return 0
	}
	return t.Finished.Sub(t.Started).Round(time.Millisecond)
}
