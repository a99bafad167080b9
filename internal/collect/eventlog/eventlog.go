// Package eventlog pulls recent entries from the Security, System and
// Application channels. Collection shells out to the OS event log query
// tool; parsing and the global recency cap are pure and testable.
package eventlog

import (
	"context"
	"sort"

	"github.com/4n6ix/triagehost/internal/auditlog"
	"github.com/4n6ix/triagehost/internal/engine"
)

// DefaultMaxEvents caps the combined entry count across all channels.
const DefaultMaxEvents = 1000

var channels = []string{"Security", "System", "Application"}

// Runner queries one event log channel and returns its XML event stream.
type Runner func(ctx context.Context, channel string, max int) ([]byte, error)

type Collector struct {
	runner    Runner
	maxEvents int
}

// NewCollector queries the live event log. maxEvents <= 0 selects the
// default cap; a nil runner selects the OS query tool.
func NewCollector(maxEvents int, runner Runner) *Collector {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	if runner == nil {
		runner = queryChannel
	}
	return &Collector{runner: runner, maxEvents: maxEvents}
}

func (c *Collector) Name() string { return "event_logs" }

func (c *Collector) Collect(ctx context.Context, log *auditlog.Log) (*engine.Contribution, error) {
	logs := engine.EventLogs{}
	var firstErr error
	failures := 0
	for _, channel := range channels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// Ask each channel for the full cap; the global trim happens after
		// all channels report.
		raw, err := c.runner(ctx, channel, c.maxEvents)
		if err != nil {
			log.Warnf(c.Name(), "query %s channel failed: %v", channel, err)
			failures++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		entries, err := parseEvents(raw)
		if err != nil {
			log.Warnf(c.Name(), "parse %s channel failed: %v", channel, err)
			failures++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		switch channel {
		case "Security":
			logs.Security = entries
		case "System":
			logs.System = entries
		case "Application":
			logs.Application = entries
		}
	}
	if failures == len(channels) {
		return nil, firstErr
	}

	capEvents(&logs, c.maxEvents)
	log.Infof(c.Name(), "collected %d event log entries (security=%d system=%d application=%d)",
		logs.TotalEntries(), len(logs.Security), len(logs.System), len(logs.Application))
	return &engine.Contribution{EventLogs: &logs}, nil
}

// capEvents trims the combined collection to the max most recent entries,
// keeping each channel internally ordered newest first.
func capEvents(logs *engine.EventLogs, max int) {
	total := logs.TotalEntries()
	if max <= 0 || total <= max {
		return
	}

	type tagged struct {
		channel *[]engine.EventLogEntry
		entry   engine.EventLogEntry
	}
	all := make([]tagged, 0, total)
	for _, ch := range []*[]engine.EventLogEntry{&logs.Security, &logs.System, &logs.Application} {
		for _, e := range *ch {
			all = append(all, tagged{channel: ch, entry: e})
		}
		*ch = (*ch)[:0]
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].entry.Timestamp.After(all[j].entry.Timestamp)
	})

	for _, t := range all[:max] {
		*t.channel = append(*t.channel, t.entry)
	}
}
