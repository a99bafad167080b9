package report

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/4n6ix/triagehost/internal/auditlog"
	"github.com/4n6ix/triagehost/internal/engine"
)

// TextReporter writes a human-readable scan summary.
type TextReporter struct{}

// Format returns "text".
func (r *TextReporter) Format() string {
	return "text"
}

// Generate writes a console summary of the scan result to w.
func (r *TextReporter) Generate(ctx context.Context, result *engine.ScanResult, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s := result.Session
	a := result.Artifacts

	fmt.Fprintf(w, "triagehost scan %s\n", s.ID)
	fmt.Fprintf(w, "%s\n\n", strings.Repeat("=", 50))
	fmt.Fprintf(w, "Host:       %s (%s)\n", s.Hostname, s.OSVersion)
	fmt.Fprintf(w, "Started:    %s\n", isoTime(s.StartUTC))
	fmt.Fprintf(w, "Duration:   %s\n", s.Duration)
	fmt.Fprintf(w, "Status:     %s\n", s.Status)
	fmt.Fprintf(w, "Artifacts:  %d\n\n", s.TotalArtifacts)

	suspicious := 0
	for _, p := range a.Persistence {
		if p.Suspicious {
			suspicious++
		}
	}
	external := 0
	for _, c := range a.Network {
		if c.External() {
			external++
		}
	}

	fmt.Fprintf(w, "Processes:              %d\n", len(a.Processes))
	fmt.Fprintf(w, "Network connections:    %d (%d external)\n", len(a.Network), external)
	fmt.Fprintf(w, "Persistence mechanisms: %d (%d suspicious)\n", len(a.Persistence), suspicious)
	fmt.Fprintf(w, "Event log entries:      %d\n", a.EventLogs.TotalEntries())
	fmt.Fprintf(w, "Prefetch files:         %d\n", len(a.Prefetch))
	fmt.Fprintf(w, "Shimcache entries:      %d\n", len(a.Shimcache))

	warnings, errors := 0, 0
	for _, e := range result.Log {
		switch e.Level {
		case auditlog.LevelWarn:
			warnings++
		case auditlog.LevelError:
			errors++
		}
	}
	if warnings+errors > 0 {
		fmt.Fprintf(w, "\nCollection issues: %d warnings, %d errors\n", warnings, errors)
		for _, e := range result.Log {
			if e.Level == auditlog.LevelInfo {
				continue
			}
			fmt.Fprintf(w, "  [%s] %s: %s\n", e.Level, e.Component, e.Message)
		}
	}
	return nil
}
