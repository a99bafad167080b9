// Package session keeps a local history of completed scans, so prior
// runs on the same host can be reviewed and compared.
package session

import (
	"context"
	"time"

	"github.com/4n6ix/triagehost/internal/engine"
)

// Record is one finished scan as stored in history. It holds session
// metadata and outcome counters, never the artifact payload; the full
// result lives in the report file the record points to.
type Record struct {
	ScanID         string    `json:"scan_id"`
	Hostname       string    `json:"hostname"`
	OSVersion      string    `json:"os_version"`
	EngineVersion  string    `json:"engine_version"`
	StartUTC       time.Time `json:"start_utc"`
	DurationMS     int64     `json:"duration_ms"`
	Status         string    `json:"status"`
	TotalArtifacts int       `json:"total_artifacts"`
	Warnings       int       `json:"warnings"`
	Errors         int       `json:"errors"`
	ReportPath     string    `json:"report_path"`
}

// FromResult builds a history record from a finished scan. reportPath
// may be empty when output went to stdout.
func FromResult(result *engine.ScanResult, reportPath string) *Record {
	rec := &Record{
		ScanID:         result.Session.ID,
		Hostname:       result.Session.Hostname,
		OSVersion:      result.Session.OSVersion,
		EngineVersion:  result.Session.EngineVersion,
		StartUTC:       result.Session.StartUTC,
		DurationMS:     result.Session.Duration.Milliseconds(),
		Status:         result.Session.Status.String(),
		TotalArtifacts: result.Session.TotalArtifacts,
		ReportPath:     reportPath,
	}
	for _, e := range result.Log {
		switch e.Level.String() {
		case "WARN":
			rec.Warnings++
		case "ERROR":
			rec.Errors++
		}
	}
	return rec
}

// Store persists and retrieves scan history.
type Store interface {
	Save(ctx context.Context, rec *Record) error
	Get(ctx context.Context, scanID string) (*Record, error)
	List(ctx context.Context, limit int) ([]*Record, error)
	Delete(ctx context.Context, scanID string) error
	Close() error
}
