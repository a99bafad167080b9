package auditlog

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendOrder(t *testing.T) {
	l := New()
	l.Infof("processes", "starting enumeration")
	l.Warnf("eventlog", "Security channel denied")
	l.Errorf("shimcache", "cache value missing")

	entries := l.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, LevelInfo, entries[0].Level)
	assert.Equal(t, "processes", entries[0].Component)
	assert.Equal(t, LevelWarn, entries[1].Level)
	assert.Equal(t, LevelError, entries[2].Level)
	assert.Equal(t, "cache value missing", entries[2].Message)
}

func TestClockInjection(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewWithClock(func() time.Time { return fixed })
	l.Infof("sysinfo", "uptime: %d seconds", 42)

	entries := l.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, fixed, entries[0].Timestamp)
	assert.Equal(t, "uptime: 42 seconds", entries[0].Message)
}

func TestConcurrentAppend(t *testing.T) {
	l := New()
	const writers = 8
	const perWriter = 100

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				l.Infof(fmt.Sprintf("worker-%d", id), "entry %d", i)
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, writers*perWriter, l.Len())
}

func TestEntriesReturnsCopy(t *testing.T) {
	l := New()
	l.Infof("test", "one")

	first := l.Entries()
	first[0].Message = "mutated"

	assert.Equal(t, "one", l.Entries()[0].Message)
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(9).String())
}
