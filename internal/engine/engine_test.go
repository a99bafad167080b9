package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidHash(t *testing.T) {
	tests := []struct {
		name string
		hash string
		want bool
	}{
		{"sentinel skipped", HashSkipped, true},
		{"sentinel error", HashError, true},
		{"valid digest", strings.Repeat("ab", 32), true},
		{"uppercase rejected", strings.Repeat("AB", 32), false},
		{"too short", strings.Repeat("ab", 31), false},
		{"too long", strings.Repeat("ab", 33), false},
		{"empty", "", false},
		{"non-hex", strings.Repeat("zz", 32), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidHash(tt.hash))
		})
	}
}

func TestScanStatusExitCode(t *testing.T) {
	assert.Equal(t, 0, StatusComplete.ExitCode())
	assert.Equal(t, 1, StatusPartiallyFailed.ExitCode())
	assert.Equal(t, 2, StatusFatal.ExitCode())
	assert.Equal(t, 2, StatusIdle.ExitCode())
}

func TestParseConnState(t *testing.T) {
	tests := []struct {
		raw  string
		want ConnState
	}{
		{"LISTEN", StateListen},
		{"LISTENING", StateListen},
		{"ESTABLISHED", StateEstablished},
		{"established", StateEstablished},
		{"TIME_WAIT", StateTimeWait},
		{"TIME-WAIT", StateTimeWait},
		{"SYN_RECV", StateSynReceived},
		{"NONE", StateStateless},
		{"", StateStateless},
		{"garbage", StateUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseConnState(tt.raw), "raw=%q", tt.raw)
	}
}

func TestNetworkConnectionExternal(t *testing.T) {
	ext := NetworkConnection{RemoteAddress: "8.8.8.8", RemotePort: 53}
	assert.True(t, ext.External())

	for _, addr := range []string{"127.0.0.1", "127.255.0.1", "::1", "0.0.0.0", "::", "*", ""} {
		c := NetworkConnection{RemoteAddress: addr}
		assert.False(t, c.External(), "addr=%q", addr)
	}
}

func TestProcessModuleSystemModule(t *testing.T) {
	sys := ProcessModule{FilePath: `C:\Windows\System32\kernel32.dll`}
	assert.True(t, sys.SystemModule())

	wow := ProcessModule{FilePath: `c:\windows\syswow64\ntdll.dll`}
	assert.True(t, wow.SystemModule())

	user := ProcessModule{FilePath: `C:\Users\bob\AppData\evil.dll`}
	assert.False(t, user.SystemModule())
}

func TestExecutedString(t *testing.T) {
	assert.Equal(t, "yes", ExecutedYes.String())
	assert.Equal(t, "no", ExecutedNo.String())
	assert.Equal(t, "unknown", ExecutedUnknown.String())
	assert.Equal(t, "unknown", Executed(99).String())
}

func TestMechanismTypeString(t *testing.T) {
	assert.Equal(t, "Registry Run Key", MechanismRegistryRunKey.String())
	assert.Equal(t, "Scheduled Task", MechanismScheduledTask.String())
	assert.Equal(t, "Windows Service", MechanismService.String())
	assert.Equal(t, "Startup Folder", MechanismStartupFolder.String())
}

func TestArtifactSetMergeAndTotal(t *testing.T) {
	var set ArtifactSet
	assert.Equal(t, 0, set.Total())

	set.merge(&Contribution{
		SystemInfo: &SystemInfo{
			UptimeSecs:    3600,
			LoggedOnUsers: []LoggedOnUser{{Username: "bob", Domain: "CORP"}},
		},
		Processes: []ProcessRecord{{PID: 4, Name: "System"}},
	})
	set.merge(&Contribution{
		Network: []NetworkConnection{{Protocol: ProtoTCP, OwningPID: 4}},
		EventLogs: &EventLogs{
			Security: []EventLogEntry{{EventID: 4624}},
			System:   []EventLogEntry{{EventID: 7045}},
		},
	})
	set.merge(nil)

	assert.Equal(t, uint64(3600), set.SystemInfo.UptimeSecs)
	// 1 process + 1 connection + 2 events + 1 logged-on user
	assert.Equal(t, 5, set.Total())
}
