package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/4n6ix/triagehost/internal/auditlog"
	"github.com/4n6ix/triagehost/internal/engine"
)

// JSONReporter outputs the structured result document. Field names and
// shapes are a stable contract consumed by downstream tooling; every
// artifact collection is present even when empty, and array fields are
// never null.
type JSONReporter struct {
	// Compact outputs single-line JSON when true (no indentation).
	Compact bool
}

// Format returns "json".
func (r *JSONReporter) Format() string {
	return "json"
}

// jsonOutput is the top-level JSON structure.
type jsonOutput struct {
	ScanMetadata  jsonScanMetadata `json:"scan_metadata"`
	Artifacts     jsonArtifacts    `json:"artifacts"`
	CollectionLog []jsonLogEntry   `json:"collection_log"`
}

type jsonScanMetadata struct {
	ScanID         string `json:"scan_id"`
	ScanStartUTC   string `json:"scan_start_utc"`
	ScanDurationMS uint64 `json:"scan_duration_ms"`
	Hostname       string `json:"hostname"`
	OSVersion      string `json:"os_version"`
	EngineVersion  string `json:"engine_version"`
	TotalArtifacts int    `json:"total_artifacts"`
	Status         string `json:"status"`
}

type jsonArtifacts struct {
	SystemInfo            jsonSystemInfo        `json:"system_info"`
	RunningProcesses      []jsonProcess         `json:"running_processes"`
	NetworkConnections    []jsonConnection      `json:"network_connections"`
	PersistenceMechanisms []jsonPersistence     `json:"persistence_mechanisms"`
	EventLogs             jsonEventLogs         `json:"event_logs"`
	ExecutionEvidence     jsonExecutionEvidence `json:"execution_evidence"`
}

type jsonSystemInfo struct {
	UptimeSecs    uint64           `json:"uptime_secs"`
	LoggedOnUsers []jsonLoggedUser `json:"logged_on_users"`
}

type jsonLoggedUser struct {
	Username  string `json:"username"`
	Domain    string `json:"domain"`
	LogonTime string `json:"logon_time"`
}

type jsonProcess struct {
	PID            uint32       `json:"pid"`
	ParentPID      uint32       `json:"parent_pid"`
	Name           string       `json:"name"`
	CommandLine    string       `json:"command_line"`
	ExecutablePath string       `json:"executable_path"`
	SHA256Hash     string       `json:"sha256_hash"`
	User           string       `json:"user"`
	MemoryUsageMB  float64      `json:"memory_usage_mb"`
	LoadedModules  []jsonModule `json:"loaded_modules"`
}

type jsonModule struct {
	Name           string `json:"name"`
	FilePath       string `json:"file_path"`
	IsSystemModule bool   `json:"is_system_module"`
}

type jsonConnection struct {
	Protocol      string `json:"protocol"`
	LocalAddress  string `json:"local_address"`
	LocalPort     uint16 `json:"local_port"`
	RemoteAddress string `json:"remote_address"`
	RemotePort    uint16 `json:"remote_port"`
	State         string `json:"state"`
	OwningPID     uint32 `json:"owning_pid"`
	ProcessName   string `json:"process_name"`
	IsExternal    bool   `json:"is_external"`
}

type jsonPersistence struct {
	Type       string `json:"type"`
	Name       string `json:"name"`
	Command    string `json:"command"`
	Source     string `json:"source"`
	Location   string `json:"location"`
	Value      string `json:"value"`
	Suspicious bool   `json:"suspicious"`
}

type jsonEventLogs struct {
	Security    []jsonEvent `json:"security"`
	System      []jsonEvent `json:"system"`
	Application []jsonEvent `json:"application"`
}

type jsonEvent struct {
	EventID   uint32 `json:"event_id"`
	Level     string `json:"level"`
	Timestamp string `json:"timestamp"`
	Source    string `json:"source"`
	Message   string `json:"message"`
	User      string `json:"user"`
	Computer  string `json:"computer"`
}

type jsonExecutionEvidence struct {
	PrefetchFiles    []jsonPrefetch  `json:"prefetch_files"`
	ShimcacheEntries []jsonShimcache `json:"shimcache_entries"`
}

type jsonPrefetch struct {
	SourceFile      string       `json:"source_file"`
	ExecutableName  string       `json:"executable_name"`
	RunCount        uint32       `json:"run_count"`
	LastRunTimes    []string     `json:"last_run_times"`
	ReferencedFiles []string     `json:"referenced_files"`
	Volumes         []jsonVolume `json:"volumes"`
	FormatVersion   uint32       `json:"format_version"`
}

type jsonVolume struct {
	DevicePath   string `json:"device_path"`
	SerialNumber string `json:"serial_number"`
	CreationTime string `json:"creation_time"`
}

type jsonShimcache struct {
	Path         string  `json:"path"`
	LastModified string  `json:"last_modified"`
	FileSize     *uint64 `json:"file_size"`
	Executed     string  `json:"executed"`
}

type jsonLogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Component string `json:"component"`
	Message   string `json:"message"`
}

// isoTime renders a UTC ISO-8601 timestamp, empty for the zero time.
func isoTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// Generate validates the output contract and writes the JSON document.
// A contract violation is an internal defect and fails the whole report.
func (r *JSONReporter) Generate(ctx context.Context, result *engine.ScanResult, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validate(result); err != nil {
		return err
	}

	a := result.Artifacts
	output := jsonOutput{
		ScanMetadata: jsonScanMetadata{
			ScanID:         result.Session.ID,
			ScanStartUTC:   isoTime(result.Session.StartUTC),
			ScanDurationMS: uint64(result.Session.Duration.Milliseconds()),
			Hostname:       result.Session.Hostname,
			OSVersion:      result.Session.OSVersion,
			EngineVersion:  result.Session.EngineVersion,
			TotalArtifacts: result.Session.TotalArtifacts,
			Status:         result.Session.Status.String(),
		},
		Artifacts: jsonArtifacts{
			SystemInfo:            systemInfoJSON(a.SystemInfo),
			RunningProcesses:      processesJSON(a.Processes),
			NetworkConnections:    connectionsJSON(a.Network),
			PersistenceMechanisms: persistenceJSON(a.Persistence),
			EventLogs: jsonEventLogs{
				Security:    eventsJSON(a.EventLogs.Security),
				System:      eventsJSON(a.EventLogs.System),
				Application: eventsJSON(a.EventLogs.Application),
			},
			ExecutionEvidence: jsonExecutionEvidence{
				PrefetchFiles:    prefetchJSON(a.Prefetch),
				ShimcacheEntries: shimcacheJSON(a.Shimcache),
			},
		},
		CollectionLog: logJSON(result.Log),
	}

	enc := json.NewEncoder(w)
	if !r.Compact {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(output); err != nil {
		return fmt.Errorf("encode result: %w", engine.ErrSerialization)
	}
	return nil
}

// validate enforces the output contract before anything is written.
func validate(result *engine.ScanResult) error {
	if result.Session.ID == "" {
		return fmt.Errorf("missing scan id: %w", engine.ErrSerialization)
	}
	for _, p := range result.Artifacts.Processes {
		if !engine.ValidHash(p.SHA256) {
			return fmt.Errorf("process %d hash %q violates hash rule: %w",
				p.PID, p.SHA256, engine.ErrSerialization)
		}
	}
	return nil
}

func systemInfoJSON(si engine.SystemInfo) jsonSystemInfo {
	users := make([]jsonLoggedUser, 0, len(si.LoggedOnUsers))
	for _, u := range si.LoggedOnUsers {
		users = append(users, jsonLoggedUser{
			Username:  u.Username,
			Domain:    u.Domain,
			LogonTime: isoTime(u.LogonTime),
		})
	}
	return jsonSystemInfo{UptimeSecs: si.UptimeSecs, LoggedOnUsers: users}
}

func processesJSON(procs []engine.ProcessRecord) []jsonProcess {
	out := make([]jsonProcess, 0, len(procs))
	for _, p := range procs {
		modules := make([]jsonModule, 0, len(p.LoadedModules))
		for _, m := range p.LoadedModules {
			modules = append(modules, jsonModule{
				Name:           m.Name,
				FilePath:       m.FilePath,
				IsSystemModule: m.SystemModule(),
			})
		}
		out = append(out, jsonProcess{
			PID:            p.PID,
			ParentPID:      p.ParentPID,
			Name:           p.Name,
			CommandLine:    p.CommandLine,
			ExecutablePath: p.ExecutablePath,
			SHA256Hash:     p.SHA256,
			User:           p.User,
			MemoryUsageMB:  p.MemoryUsageMB,
			LoadedModules:  modules,
		})
	}
	return out
}

func connectionsJSON(conns []engine.NetworkConnection) []jsonConnection {
	out := make([]jsonConnection, 0, len(conns))
	for _, c := range conns {
		out = append(out, jsonConnection{
			Protocol:      c.Protocol.String(),
			LocalAddress:  c.LocalAddress,
			LocalPort:     c.LocalPort,
			RemoteAddress: c.RemoteAddress,
			RemotePort:    c.RemotePort,
			State:         c.State.String(),
			OwningPID:     c.OwningPID,
			ProcessName:   c.ProcessName,
			IsExternal:    c.External(),
		})
	}
	return out
}

func persistenceJSON(entries []engine.PersistenceEntry) []jsonPersistence {
	out := make([]jsonPersistence, 0, len(entries))
	for _, e := range entries {
		out = append(out, jsonPersistence{
			Type:       e.Type.String(),
			Name:       e.Name,
			Command:    e.Command,
			Source:     e.Source,
			Location:   e.Location,
			Value:      e.Value,
			Suspicious: e.Suspicious,
		})
	}
	return out
}

func eventsJSON(events []engine.EventLogEntry) []jsonEvent {
	out := make([]jsonEvent, 0, len(events))
	for _, e := range events {
		out = append(out, jsonEvent{
			EventID:   e.EventID,
			Level:     e.Level.String(),
			Timestamp: isoTime(e.Timestamp),
			Source:    e.Source,
			Message:   e.Message,
			User:      e.User,
			Computer:  e.Computer,
		})
	}
	return out
}

func prefetchJSON(records []engine.PrefetchRecord) []jsonPrefetch {
	out := make([]jsonPrefetch, 0, len(records))
	for _, rec := range records {
		runs := make([]string, 0, len(rec.LastRunTimes))
		for _, t := range rec.LastRunTimes {
			runs = append(runs, isoTime(t))
		}
		files := rec.ReferencedFiles
		if files == nil {
			files = []string{}
		}
		vols := make([]jsonVolume, 0, len(rec.Volumes))
		for _, v := range rec.Volumes {
			vols = append(vols, jsonVolume{
				DevicePath:   v.DevicePath,
				SerialNumber: v.SerialNumber,
				CreationTime: isoTime(v.CreationTime),
			})
		}
		out = append(out, jsonPrefetch{
			SourceFile:      rec.SourceFile,
			ExecutableName:  rec.ExecutableName,
			RunCount:        rec.RunCount,
			LastRunTimes:    runs,
			ReferencedFiles: files,
			Volumes:         vols,
			FormatVersion:   rec.FormatVersion,
		})
	}
	return out
}

func shimcacheJSON(records []engine.ShimcacheRecord) []jsonShimcache {
	out := make([]jsonShimcache, 0, len(records))
	for _, rec := range records {
		out = append(out, jsonShimcache{
			Path:         rec.Path,
			LastModified: isoTime(rec.LastModified),
			FileSize:     rec.FileSize,
			Executed:     rec.Executed.String(),
		})
	}
	return out
}

func logJSON(entries []auditlog.Entry) []jsonLogEntry {
	out := make([]jsonLogEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, jsonLogEntry{
			Timestamp: isoTime(e.Timestamp),
			Level:     e.Level.String(),
			Component: e.Component,
			Message:   e.Message,
		})
	}
	return out
}
