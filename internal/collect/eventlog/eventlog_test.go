package eventlog

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/4n6ix/triagehost/internal/auditlog"
	"github.com/4n6ix/triagehost/internal/engine"
)

const securityXML = `
<Event xmlns='http://schemas.microsoft.com/win/2004/08/events/event'>
  <System>
    <Provider Name='Microsoft-Windows-Security-Auditing'/>
    <EventID>4624</EventID>
    <Level>0</Level>
    <TimeCreated SystemTime='2024-06-15T08:30:00.1234567Z'/>
    <Computer>WS01.corp.local</Computer>
    <Security UserID='S-1-5-18'/>
  </System>
  <EventData>
    <Data Name='TargetUserName'>alice</Data>
    <Data Name='LogonType'>2</Data>
  </EventData>
</Event>
<Event xmlns='http://schemas.microsoft.com/win/2004/08/events/event'>
  <System>
    <Provider Name='Microsoft-Windows-Security-Auditing'/>
    <EventID>4625</EventID>
    <Level>2</Level>
    <TimeCreated SystemTime='2024-06-15T08:31:00Z'/>
    <Computer>WS01.corp.local</Computer>
    <Security/>
  </System>
  <RenderingInfo Culture='en-US'>
    <Message>An account failed to log on.</Message>
  </RenderingInfo>
</Event>`

func TestParseEvents(t *testing.T) {
	entries, err := parseEvents([]byte(securityXML))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	logon := entries[0]
	assert.Equal(t, uint32(4624), logon.EventID)
	assert.Equal(t, engine.EventLevelInformation, logon.Level)
	assert.Equal(t, "Microsoft-Windows-Security-Auditing", logon.Source)
	assert.Equal(t, "WS01.corp.local", logon.Computer)
	assert.Equal(t, "S-1-5-18", logon.User)
	assert.Equal(t, "TargetUserName=alice; LogonType=2", logon.Message)
	assert.Equal(t, time.Date(2024, 6, 15, 8, 30, 0, 123456700, time.UTC), logon.Timestamp)

	failed := entries[1]
	assert.Equal(t, engine.EventLevelError, failed.Level)
	assert.Equal(t, "An account failed to log on.", failed.Message)
}

func TestParseEventsEmpty(t *testing.T) {
	entries, err := parseEvents(nil)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestParseEventsMalformed(t *testing.T) {
	_, err := parseEvents([]byte("<Event><System>"))
	assert.ErrorIs(t, err, engine.ErrParse)
}

func TestLevelOf(t *testing.T) {
	assert.Equal(t, engine.EventLevelCritical, levelOf(1))
	assert.Equal(t, engine.EventLevelError, levelOf(2))
	assert.Equal(t, engine.EventLevelWarning, levelOf(3))
	assert.Equal(t, engine.EventLevelInformation, levelOf(4))
	assert.Equal(t, engine.EventLevelInformation, levelOf(0))
	assert.Equal(t, engine.EventLevelVerbose, levelOf(5))
	assert.Equal(t, engine.EventLevelUnknown, levelOf(42))
}

func entryAt(minute int) engine.EventLogEntry {
	return engine.EventLogEntry{
		EventID:   uint32(minute),
		Timestamp: time.Date(2024, 6, 15, 10, minute, 0, 0, time.UTC),
	}
}

func TestCapEventsKeepsNewestAcrossChannels(t *testing.T) {
	logs := engine.EventLogs{
		Security:    []engine.EventLogEntry{entryAt(50), entryAt(10)},
		System:      []engine.EventLogEntry{entryAt(40), entryAt(5)},
		Application: []engine.EventLogEntry{entryAt(45)},
	}

	capEvents(&logs, 3)

	assert.Equal(t, 3, logs.TotalEntries())
	require.Len(t, logs.Security, 1)
	assert.Equal(t, uint32(50), logs.Security[0].EventID)
	require.Len(t, logs.System, 1)
	assert.Equal(t, uint32(40), logs.System[0].EventID)
	require.Len(t, logs.Application, 1)
	assert.Equal(t, uint32(45), logs.Application[0].EventID)
}

func TestCapEventsUnderLimit(t *testing.T) {
	logs := engine.EventLogs{System: []engine.EventLogEntry{entryAt(1), entryAt(2)}}
	capEvents(&logs, 100)
	assert.Equal(t, 2, logs.TotalEntries())
}

func eventXML(id int, ts string) string {
	return fmt.Sprintf(`<Event><System><Provider Name='P'/><EventID>%d</EventID>
<Level>4</Level><TimeCreated SystemTime='%s'/><Computer>WS01</Computer></System></Event>`, id, ts)
}

func TestCollect(t *testing.T) {
	c := NewCollector(10, func(_ context.Context, channel string, max int) ([]byte, error) {
		assert.Equal(t, 10, max)
		switch channel {
		case "Security":
			return []byte(eventXML(4624, "2024-06-15T08:30:00Z")), nil
		case "System":
			return nil, engine.ErrAccessDenied
		default:
			return []byte(eventXML(1000, "2024-06-15T09:00:00Z")), nil
		}
	})

	log := auditlog.New()
	contrib, err := c.Collect(context.Background(), log)
	require.NoError(t, err)
	require.NotNil(t, contrib.EventLogs)
	assert.Len(t, contrib.EventLogs.Security, 1)
	assert.Empty(t, contrib.EventLogs.System)
	assert.Len(t, contrib.EventLogs.Application, 1)

	var warned bool
	for _, e := range log.Entries() {
		if e.Level == auditlog.LevelWarn {
			warned = true
		}
	}
	assert.True(t, warned, "failed channel should warn")
}

func TestCollectAllChannelsFail(t *testing.T) {
	c := NewCollector(0, func(context.Context, string, int) ([]byte, error) {
		return nil, engine.ErrUnsupportedPlatform
	})
	_, err := c.Collect(context.Background(), auditlog.New())
	assert.ErrorIs(t, err, engine.ErrUnsupportedPlatform)
}
