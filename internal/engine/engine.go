// Package engine provides the core collection orchestration pipeline.
package engine

import (
	"regexp"
	"strings"
	"time"

	"github.com/4n6ix/triagehost/internal/auditlog"
)

// Sentinel values for the sha256_hash field when no digest was computed.
// HashSkipped means hashing was disabled by policy; HashError means the
// executable could not be read.
const (
	HashSkipped = "N/A"
	HashError   = "ERROR"
)

// hashPattern matches a well-formed lowercase SHA-256 hex digest.
var hashPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// ValidHash reports whether h satisfies the 64-hex-or-sentinel rule.
func ValidHash(h string) bool {
	return h == HashSkipped || h == HashError || hashPattern.MatchString(h)
}

// ScanStatus tracks the orchestrator state machine:
//
//	Idle → Collecting → Finalizing → {Complete | PartiallyFailed}
//
// Fatal is a separate terminal state reachable from Idle or Collecting when
// scan-session metadata cannot be produced.
type ScanStatus int

const (
	StatusIdle ScanStatus = iota
	StatusCollecting
	StatusFinalizing
	StatusComplete
	StatusPartiallyFailed
	StatusFatal
)

// String returns the status name.
func (s ScanStatus) String() string {
	names := [...]string{"Idle", "Collecting", "Finalizing", "Complete", "PartiallyFailed", "Fatal"}
	if int(s) < len(names) {
		return names[s]
	}
	return "Unknown"
}

// ExitCode maps a terminal status to the process exit code contract.
func (s ScanStatus) ExitCode() int {
	switch s {
	case StatusComplete:
		return 0
	case StatusPartiallyFailed:
		return 1
	default:
		return 2
	}
}

// ScanSession holds the metadata of one engine invocation. It is created
// once at scan start and immutable after finalization.
type ScanSession struct {
	ID             string
	StartUTC       time.Time
	Duration       time.Duration
	Hostname       string
	OSVersion      string
	EngineVersion  string
	TotalArtifacts int
	Status         ScanStatus
}

// --------------------------------------------------------------------------
// Artifact records
// --------------------------------------------------------------------------

// ProcessModule describes one module loaded into a process.
type ProcessModule struct {
	Name        string
	FilePath    string
	BaseAddress string
	Size        uint64
	Version     string
}

// SystemModule reports whether the module lives in a Windows system
// directory.
func (m ProcessModule) SystemModule() bool {
	p := strings.ToLower(m.FilePath)
	return strings.Contains(p, `\windows\system32\`) ||
		strings.Contains(p, `\windows\syswow64\`) ||
		strings.Contains(p, `\windows\winsxs\`)
}

// ProcessRecord describes one running process. PIDs of 0 and unresolvable
// fields are retained, never dropped.
type ProcessRecord struct {
	PID            uint32
	ParentPID      uint32
	Name           string
	CommandLine    string
	ExecutablePath string
	SHA256         string
	User           string
	MemoryUsageMB  float64
	LoadedModules  []ProcessModule
}

// HasExecutablePath reports whether a usable executable path was resolved.
func (p ProcessRecord) HasExecutablePath() bool {
	return p.ExecutablePath != "" && p.ExecutablePath != HashSkipped
}

// Protocol is the transport protocol of a network connection.
type Protocol int

const (
	ProtoTCP Protocol = iota
	ProtoUDP
)

// String returns the protocol name.
func (p Protocol) String() string {
	if p == ProtoUDP {
		return "UDP"
	}
	return "TCP"
}

// ConnState is the state of a TCP connection. UDP sockets report
// StateStateless.
type ConnState int

const (
	StateUnknown ConnState = iota
	StateListen
	StateEstablished
	StateSynSent
	StateSynReceived
	StateFinWait1
	StateFinWait2
	StateCloseWait
	StateClosing
	StateLastAck
	StateTimeWait
	StateClosed
	StateDeleteTCB
	StateStateless
)

var connStateNames = [...]string{
	"UNKNOWN", "LISTENING", "ESTABLISHED", "SYN_SENT", "SYN_RECEIVED",
	"FIN_WAIT_1", "FIN_WAIT_2", "CLOSE_WAIT", "CLOSING", "LAST_ACK",
	"TIME_WAIT", "CLOSED", "DELETE_TCB", "NONE",
}

// String returns the connection state name.
func (s ConnState) String() string {
	if int(s) < len(connStateNames) {
		return connStateNames[s]
	}
	return "UNKNOWN"
}

// ParseConnState maps an OS-reported state string to a ConnState.
func ParseConnState(raw string) ConnState {
	switch strings.ToUpper(strings.ReplaceAll(raw, "-", "_")) {
	case "LISTEN", "LISTENING":
		return StateListen
	case "ESTABLISHED":
		return StateEstablished
	case "SYN_SENT":
		return StateSynSent
	case "SYN_RECEIVED", "SYN_RECV":
		return StateSynReceived
	case "FIN_WAIT_1", "FIN_WAIT1":
		return StateFinWait1
	case "FIN_WAIT_2", "FIN_WAIT2":
		return StateFinWait2
	case "CLOSE_WAIT":
		return StateCloseWait
	case "CLOSING":
		return StateClosing
	case "LAST_ACK":
		return StateLastAck
	case "TIME_WAIT":
		return StateTimeWait
	case "CLOSED", "CLOSE":
		return StateClosed
	case "DELETE_TCB":
		return StateDeleteTCB
	case "NONE", "":
		return StateStateless
	default:
		return StateUnknown
	}
}

// NetworkConnection describes one entry of the OS connection table.
// OwningPID is a correlation key into ProcessRecord, never a strong
// reference; the two collectors run and fail independently.
type NetworkConnection struct {
	Protocol      Protocol
	LocalAddress  string
	LocalPort     uint16
	RemoteAddress string
	RemotePort    uint16
	State         ConnState
	OwningPID     uint32
	ProcessName   string
}

// External reports whether the remote endpoint is outside the local host.
func (c NetworkConnection) External() bool {
	r := c.RemoteAddress
	return r != "" && r != "*" &&
		!strings.HasPrefix(r, "127.") &&
		r != "::1" && r != "0.0.0.0" && r != "::"
}

// MechanismType enumerates autostart persistence mechanism categories.
type MechanismType int

const (
	MechanismRegistryRunKey MechanismType = iota
	MechanismScheduledTask
	MechanismService
	MechanismStartupFolder
	MechanismWMIEventConsumer
)

// String returns the mechanism type name.
func (m MechanismType) String() string {
	names := [...]string{
		"Registry Run Key", "Scheduled Task", "Windows Service",
		"Startup Folder", "WMI Event Consumer",
	}
	if int(m) < len(names) {
		return names[m]
	}
	return "Unknown"
}

// PersistenceEntry describes one autostart mechanism. Suspicious is an
// advisory annotation, never a filter.
type PersistenceEntry struct {
	Type       MechanismType
	Name       string
	Command    string
	Source     string
	Location   string
	Value      string
	Suspicious bool
}

// EventLevel is the severity of an OS event-log record.
type EventLevel int

const (
	EventLevelUnknown EventLevel = iota
	EventLevelCritical
	EventLevelError
	EventLevelWarning
	EventLevelInformation
	EventLevelVerbose
)

// String returns the level name.
func (l EventLevel) String() string {
	names := [...]string{"Unknown", "Critical", "Error", "Warning", "Information", "Verbose"}
	if int(l) < len(names) {
		return names[l]
	}
	return "Unknown"
}

// EventLogEntry is one record from an OS log channel.
type EventLogEntry struct {
	EventID   uint32
	Level     EventLevel
	Timestamp time.Time
	Source    string
	Message   string
	User      string
	Computer  string
}

// EventLogs groups entries by channel. Every slice is always present in the
// output, empty when the channel contributed nothing.
type EventLogs struct {
	Security    []EventLogEntry
	System      []EventLogEntry
	Application []EventLogEntry
}

// TotalEntries returns the combined entry count across channels.
func (e EventLogs) TotalEntries() int {
	return len(e.Security) + len(e.System) + len(e.Application)
}

// VolumeInfo describes one volume referenced by a prefetch file.
type VolumeInfo struct {
	DevicePath   string
	SerialNumber string
	CreationTime time.Time
}

// PrefetchRecord is the decoded content of one prefetch file. LastRunTimes
// holds one timestamp for format versions 17 and 23 and up to eight for 26
// and later.
type PrefetchRecord struct {
	SourceFile      string
	ExecutableName  string
	RunCount        uint32
	LastRunTimes    []time.Time
	ReferencedFiles []string
	Volumes         []VolumeInfo
	FormatVersion   uint32
}

// Executed is the tri-state execution flag of a shimcache entry. Not every
// cache layout encodes execution, so absence of evidence stays explicit.
type Executed int

const (
	ExecutedUnknown Executed = iota
	ExecutedYes
	ExecutedNo
)

// String returns the tri-state name.
func (e Executed) String() string {
	switch e {
	case ExecutedYes:
		return "yes"
	case ExecutedNo:
		return "no"
	default:
		return "unknown"
	}
}

// ShimcacheRecord is one application compatibility cache entry. FileSize is
// nil for layouts that do not carry it.
type ShimcacheRecord struct {
	Path         string
	LastModified time.Time
	FileSize     *uint64
	Executed     Executed
}

// LoggedOnUser describes one interactive session.
type LoggedOnUser struct {
	Username  string
	Domain    string
	LogonTime time.Time
}

// SystemInfo holds host identity details beyond the session metadata.
type SystemInfo struct {
	UptimeSecs    uint64
	LoggedOnUsers []LoggedOnUser
}

// --------------------------------------------------------------------------
// Aggregation
// --------------------------------------------------------------------------

// ArtifactSet is the fixed set of artifact collections. Every member is
// always present in the serialized output, degraded to an empty sequence
// when its collector failed.
type ArtifactSet struct {
	SystemInfo  SystemInfo
	Processes   []ProcessRecord
	Network     []NetworkConnection
	Persistence []PersistenceEntry
	EventLogs   EventLogs
	Prefetch    []PrefetchRecord
	Shimcache   []ShimcacheRecord
}

// Total returns the total artifact count across all collections.
func (a *ArtifactSet) Total() int {
	return len(a.Processes) +
		len(a.Network) +
		len(a.Persistence) +
		a.EventLogs.TotalEntries() +
		len(a.Prefetch) +
		len(a.Shimcache) +
		len(a.SystemInfo.LoggedOnUsers)
}

// Contribution is the output of a single collector. Only the populated
// sections are merged into the aggregate set, so a timed-out collector's
// late result can be discarded without racing the aggregator.
type Contribution struct {
	SystemInfo  *SystemInfo
	Processes   []ProcessRecord
	Network     []NetworkConnection
	Persistence []PersistenceEntry
	EventLogs   *EventLogs
	Prefetch    []PrefetchRecord
	Shimcache   []ShimcacheRecord
}

// merge folds a contribution into the aggregate set.
func (a *ArtifactSet) merge(c *Contribution) {
	if c == nil {
		return
	}
	if c.SystemInfo != nil {
		a.SystemInfo = *c.SystemInfo
	}
	a.Processes = append(a.Processes, c.Processes...)
	a.Network = append(a.Network, c.Network...)
	a.Persistence = append(a.Persistence, c.Persistence...)
	if c.EventLogs != nil {
		a.EventLogs.Security = append(a.EventLogs.Security, c.EventLogs.Security...)
		a.EventLogs.System = append(a.EventLogs.System, c.EventLogs.System...)
		a.EventLogs.Application = append(a.EventLogs.Application, c.EventLogs.Application...)
	}
	a.Prefetch = append(a.Prefetch, c.Prefetch...)
	a.Shimcache = append(a.Shimcache, c.Shimcache...)
}

// ScanResult is the complete outcome of one engine run.
type ScanResult struct {
	Session   ScanSession
	Artifacts ArtifactSet
	Log       []auditlog.Entry
}
