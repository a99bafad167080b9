package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/4n6ix/triagehost/internal/auditlog"
)

// fakeCollector is a scripted collector for orchestrator tests.
type fakeCollector struct {
	name    string
	contrib *Contribution
	err     error
	delay   time.Duration
	panics  bool
}

func (f *fakeCollector) Name() string { return f.name }

func (f *fakeCollector) Collect(ctx context.Context, log *auditlog.Log) (*Contribution, error) {
	if f.panics {
		panic("scripted panic")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.contrib, f.err
}

func testProbe() (string, string, error) {
	return "TEST-HOST", "Windows 10 Pro 19045", nil
}

func TestRunAllCollectorsSucceed(t *testing.T) {
	o := New(&Config{EngineVersion: "1.2.3"},
		WithHostProbe(testProbe),
		WithCollectors(
			&fakeCollector{name: "processes", contrib: &Contribution{
				Processes: []ProcessRecord{{PID: 4, Name: "System", SHA256: HashSkipped}},
			}},
			&fakeCollector{name: "network", contrib: &Contribution{
				Network: []NetworkConnection{{Protocol: ProtoTCP, State: StateListen}},
			}},
		),
	)

	result, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusComplete, result.Session.Status)
	assert.Equal(t, StatusComplete, o.State())
	assert.Equal(t, "TEST-HOST", result.Session.Hostname)
	assert.Equal(t, "Windows 10 Pro 19045", result.Session.OSVersion)
	assert.Equal(t, "1.2.3", result.Session.EngineVersion)
	assert.Equal(t, 2, result.Session.TotalArtifacts)

	_, err = uuid.Parse(result.Session.ID)
	assert.NoError(t, err, "scan id must be a valid UUID")
}

func TestRunCollectorFailureDoesNotAbort(t *testing.T) {
	o := New(nil,
		WithHostProbe(testProbe),
		WithCollectors(
			&fakeCollector{name: "persistence", err: errors.New("registry unavailable")},
			&fakeCollector{name: "processes", contrib: &Contribution{
				Processes: []ProcessRecord{{PID: 4, Name: "System", SHA256: HashSkipped}},
			}},
		),
	)

	result, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusPartiallyFailed, result.Session.Status)
	assert.Len(t, result.Artifacts.Processes, 1, "surviving collector output is kept")
	assert.Empty(t, result.Artifacts.Persistence)

	var errorEntries int
	for _, e := range result.Log {
		if e.Level == auditlog.LevelError && e.Component == "persistence" {
			errorEntries++
		}
	}
	assert.Equal(t, 1, errorEntries, "failed collector must leave an ERROR audit entry")
}

func TestRunCollectorPanicIsContained(t *testing.T) {
	o := New(nil,
		WithHostProbe(testProbe),
		WithCollectors(
			&fakeCollector{name: "shimcache", panics: true},
			&fakeCollector{name: "network", contrib: &Contribution{
				Network: []NetworkConnection{{Protocol: ProtoUDP, State: StateStateless}},
			}},
		),
	)

	result, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusPartiallyFailed, result.Session.Status)
	assert.Len(t, result.Artifacts.Network, 1)
}

func TestRunCollectorTimeout(t *testing.T) {
	o := New(&Config{Budget: 20 * time.Millisecond},
		WithHostProbe(testProbe),
		WithCollectors(
			&fakeCollector{name: "eventlog", delay: time.Second},
		),
	)

	result, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusPartiallyFailed, result.Session.Status)

	var sawTimeout bool
	for _, e := range result.Log {
		if e.Level == auditlog.LevelError && e.Component == "eventlog" {
			sawTimeout = true
		}
	}
	assert.True(t, sawTimeout, "timeout must be audited against the collector")
}

func TestRunFatalWhenProbeFails(t *testing.T) {
	o := New(nil,
		WithHostProbe(func() (string, string, error) {
			return "", "", errors.New("no machine identity")
		}),
		WithCollectors(&fakeCollector{name: "processes"}),
	)

	result, err := o.Run(context.Background())
	assert.Nil(t, result)
	assert.Error(t, err)
	assert.Equal(t, StatusFatal, o.State())
}

func TestRunFatalWithoutProbe(t *testing.T) {
	o := New(nil)
	result, err := o.Run(context.Background())
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, StatusFatal, o.State())
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := New(nil,
		WithHostProbe(testProbe),
		WithCollectors(&fakeCollector{name: "processes"}),
	)

	result, err := o.Run(ctx)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusFatal, o.State())
}

func TestRunDurationFromClock(t *testing.T) {
	base := time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)
	step := 0
	clock := func() time.Time {
		step++
		return base.Add(time.Duration(step) * 100 * time.Millisecond)
	}

	o := New(nil,
		WithHostProbe(testProbe),
		WithClock(clock),
		WithCollectors(&fakeCollector{name: "sysinfo", contrib: &Contribution{
			SystemInfo: &SystemInfo{UptimeSecs: 10},
		}}),
	)

	result, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Session.Duration > 0)
	assert.True(t, result.Session.StartUTC.After(base))
}

func TestCollectorNames(t *testing.T) {
	o := New(nil, WithCollectors(
		&fakeCollector{name: "sysinfo"},
		&fakeCollector{name: "processes"},
	))
	assert.Equal(t, []string{"sysinfo", "processes"}, o.CollectorNames())
}
