package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/4n6ix/triagehost/internal/auditlog"
)

// Collector is a single artifact source. Collect must honor ctx for
// long-running work and report degraded conditions through log rather than
// failing; a returned error marks the whole collector as failed.
type Collector interface {
	// Name identifies the collector in the audit trail.
	Name() string

	// Collect gathers this collector's artifacts.
	Collect(ctx context.Context, log *auditlog.Log) (*Contribution, error)
}

// HostProbe resolves the identity of the machine under scan. A probe
// failure is the one unrecoverable error of a scan.
type HostProbe func() (hostname, osVersion string, err error)

// Config holds the caller-controlled knobs of one scan.
type Config struct {
	// Budget is the per-collector time budget. Zero disables the budget.
	Budget time.Duration

	// Verbose is the console verbosity level 0-3. The audit trail is
	// always complete regardless of this setting.
	Verbose int

	// EngineVersion is stamped into the scan session metadata.
	EngineVersion string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Budget:        2 * time.Minute,
		EngineVersion: "dev",
	}
}

// Orchestrator drives a single linear pass over the configured collectors,
// isolates their failures, and aggregates everything into one ScanResult.
type Orchestrator struct {
	config     *Config
	collectors []Collector
	log        *auditlog.Log
	logger     *slog.Logger
	probe      HostProbe
	state      ScanStatus
	now        func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCollectors sets the collectors to run, in the given order.
func WithCollectors(cs ...Collector) Option {
	return func(o *Orchestrator) {
		o.collectors = cs
	}
}

// WithHostProbe sets the machine-identity probe.
func WithHostProbe(p HostProbe) Option {
	return func(o *Orchestrator) {
		o.probe = p
	}
}

// WithLogger sets the operator-facing logger. The forensic audit trail is
// separate and always recorded.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithClock sets the clock used for session timestamps, for tests.
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = clock
	}
}

// New creates an orchestrator in the Idle state.
func New(config *Config, opts ...Option) *Orchestrator {
	if config == nil {
		config = DefaultConfig()
	}

	logLevel := slog.LevelError
	switch {
	case config.Verbose >= 3:
		logLevel = slog.LevelDebug
	case config.Verbose >= 2:
		logLevel = slog.LevelInfo
	case config.Verbose >= 1:
		logLevel = slog.LevelWarn
	}

	o := &Orchestrator{
		config: config,
		log:    auditlog.New(),
		logger: slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: logLevel})),
		state:  StatusIdle,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current state of the scan state machine.
func (o *Orchestrator) State() ScanStatus {
	return o.state
}

// CollectorNames returns the names of the configured collectors in run order.
func (o *Orchestrator) CollectorNames() []string {
	names := make([]string, len(o.collectors))
	for i, c := range o.collectors {
		names[i] = c.Name()
	}
	return names
}

// Run executes the full collection pipeline.
//
// Pipeline:
//  1. Resolve machine identity (fatal on failure)
//  2. Create the scan session (UUID, start timestamp)
//  3. Run each collector in order under the time budget; a collector
//     failure is recorded and the scan continues
//  4. Finalize: totals, duration, terminal status
//
// The returned ScanResult is valid whenever err is nil, including when one
// or more collectors failed (Status PartiallyFailed).
func (o *Orchestrator) Run(ctx context.Context) (*ScanResult, error) {
	if o.probe == nil {
		o.state = StatusFatal
		o.log.Errorf("orchestrator", "no host probe configured")
		return nil, fmt.Errorf("engine: no host probe configured: %w", ErrNotFound)
	}

	hostname, osVersion, err := o.probe()
	if err != nil {
		o.state = StatusFatal
		o.log.Errorf("orchestrator", "cannot resolve machine identity: %v", err)
		return nil, fmt.Errorf("engine: resolve machine identity: %w", err)
	}

	session := ScanSession{
		ID:            uuid.New().String(),
		StartUTC:      o.now(),
		Hostname:      hostname,
		OSVersion:     osVersion,
		EngineVersion: o.config.EngineVersion,
	}
	o.log.Infof("orchestrator", "scan %s started on %s", session.ID, hostname)

	o.state = StatusCollecting
	var artifacts ArtifactSet
	failed := 0

	for _, c := range o.collectors {
		if ctx.Err() != nil {
			o.state = StatusFatal
			o.log.Errorf("orchestrator", "scan cancelled: %v", ctx.Err())
			return nil, fmt.Errorf("engine: scan cancelled: %w", ctx.Err())
		}

		contrib, err := o.runCollector(ctx, c)
		if err != nil {
			failed++
			o.log.Errorf(c.Name(), "collector failed: %v", err)
			o.logger.Warn("collector failed", "collector", c.Name(), "error", err)
			continue
		}
		artifacts.merge(contrib)
	}

	o.state = StatusFinalizing
	session.Duration = o.now().Sub(session.StartUTC)
	session.TotalArtifacts = artifacts.Total()

	if failed > 0 {
		session.Status = StatusPartiallyFailed
		o.log.Warnf("orchestrator", "scan finished with %d failed collector(s)", failed)
	} else {
		session.Status = StatusComplete
	}
	o.state = session.Status
	o.log.Infof("orchestrator", "scan %s finished: %d artifacts in %dms",
		session.ID, session.TotalArtifacts, session.Duration.Milliseconds())

	return &ScanResult{
		Session:   session,
		Artifacts: artifacts,
		Log:       o.log.Entries(),
	}, nil
}

// runCollector invokes one collector under the per-collector budget. On
// timeout the collector's eventual result is discarded; it writes only into
// its own Contribution, never into shared state.
func (o *Orchestrator) runCollector(ctx context.Context, c Collector) (*Contribution, error) {
	o.log.Infof(c.Name(), "collection started")
	o.logger.Info("collector started", "collector", c.Name())
	start := o.now()

	cctx := ctx
	cancel := context.CancelFunc(func() {})
	if o.config.Budget > 0 {
		cctx, cancel = context.WithTimeout(ctx, o.config.Budget)
	}
	defer cancel()

	type outcome struct {
		contrib *Contribution
		err     error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("collector panic: %v", r)}
			}
		}()
		contrib, err := c.Collect(cctx, o.log)
		done <- outcome{contrib: contrib, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, out.err
		}
		o.log.Infof(c.Name(), "collection completed in %dms", o.now().Sub(start).Milliseconds())
		return out.contrib, nil
	case <-cctx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("budget of %s exceeded: %w", o.config.Budget, ErrTimeout)
	}
}

// discardWriter is an io.Writer that discards all data (used for quiet logging).
type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
