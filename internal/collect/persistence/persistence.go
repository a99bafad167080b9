// Package persistence enumerates autostart mechanisms: registry run
// keys, scheduled tasks, services, and startup folders. Each source is
// independent; one failing leaves the others' findings intact.
package persistence

import (
	"context"
	"strings"

	"github.com/spf13/afero"

	"github.com/4n6ix/triagehost/internal/auditlog"
	"github.com/4n6ix/triagehost/internal/engine"
)

// source is one autostart enumeration strategy.
type source struct {
	name    string
	collect func(context.Context) ([]engine.PersistenceEntry, error)
}

type Collector struct {
	sources []source
}

// NewCollector wires the live sources. fs backs startup folder scans and
// runner executes the task scheduler query; nil values select the real
// filesystem and schtasks.
func NewCollector(fs afero.Fs, runner TaskRunner) *Collector {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if runner == nil {
		runner = runSchtasks
	}
	return &Collector{sources: []source{
		{name: "registry run keys", collect: collectRunKeys},
		{name: "scheduled tasks", collect: taskSource(runner)},
		{name: "services", collect: collectServices},
		{name: "startup folders", collect: startupSource(fs)},
	}}
}

func (c *Collector) Name() string { return "persistence" }

func (c *Collector) Collect(ctx context.Context, log *auditlog.Log) (*engine.Contribution, error) {
	var entries []engine.PersistenceEntry
	var firstErr error
	failures := 0
	for _, s := range c.sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		found, err := s.collect(ctx)
		if err != nil {
			log.Warnf(c.Name(), "%s enumeration failed: %v", s.name, err)
			failures++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		entries = append(entries, found...)
	}
	if failures == len(c.sources) {
		return nil, firstErr
	}

	suspicious := 0
	for i := range entries {
		entries[i].Suspicious = Suspicious(entries[i].Command)
		if entries[i].Suspicious {
			suspicious++
		}
	}

	log.Infof(c.Name(), "found %d persistence mechanisms (%d flagged suspicious)",
		len(entries), suspicious)
	return &engine.Contribution{Persistence: entries}, nil
}

// Heuristic inputs for Suspicious. Matching any one rule flags the entry;
// this is triage surfacing, not verdicts.
var (
	suspiciousLocations = []string{
		"temp", "tmp", `appdata\local\temp`, "downloads", "desktop",
		"documents", "public", `users\public`, "programdata",
	}
	suspiciousExtensions = []string{
		".bat", ".cmd", ".ps1", ".vbs", ".js", ".jar", ".scr", ".pif",
	}
	suspiciousPatterns = []string{
		"powershell", "cmd.exe", "wscript", "cscript", "regsvr32",
		"rundll32", "mshta", "bitsadmin", "certutil",
	}
)

// Suspicious flags commands that reference user-writable locations,
// script payloads, or living-off-the-land binaries.
func Suspicious(command string) bool {
	c := strings.ToLower(command)
	if c == "" {
		return false
	}
	for _, loc := range suspiciousLocations {
		if strings.Contains(c, loc) {
			return true
		}
	}
	for _, ext := range suspiciousExtensions {
		if strings.Contains(c, ext) {
			return true
		}
	}
	for _, pat := range suspiciousPatterns {
		if strings.Contains(c, pat) {
			return true
		}
	}
	return false
}
