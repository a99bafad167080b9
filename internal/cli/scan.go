package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/4n6ix/triagehost/internal/collect/eventlog"
	"github.com/4n6ix/triagehost/internal/collect/network"
	"github.com/4n6ix/triagehost/internal/collect/persistence"
	"github.com/4n6ix/triagehost/internal/collect/process"
	"github.com/4n6ix/triagehost/internal/collect/sysinfo"
	"github.com/4n6ix/triagehost/internal/config"
	"github.com/4n6ix/triagehost/internal/engine"
	"github.com/4n6ix/triagehost/internal/evidence"
	"github.com/4n6ix/triagehost/internal/prefetch"
	"github.com/4n6ix/triagehost/internal/report"
	"github.com/4n6ix/triagehost/internal/session"
	"github.com/4n6ix/triagehost/internal/shimcache"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Collect triage artifacts from the local host",
	Long: `Scan runs the configured collectors against the local host and writes
the result document. The process exits 0 on a clean scan, 1 when one or
more collectors failed but a valid result exists, and 2 when no result
could be produced.`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	scanCmd.Flags().StringP("format", "f", "json", "Output format (json, text)")
	scanCmd.Flags().String("profile", "", "Scan profile YAML file")
	scanCmd.Flags().String("artifacts", "", "Comma-separated artifact types to collect (default: all)")
	scanCmd.Flags().Bool("skip-hashes", false, "Skip SHA-256 hashing of process executables")
	scanCmd.Flags().Int("max-events", eventlog.DefaultMaxEvents, "Cap on total event log entries")
	scanCmd.Flags().Duration("timeout", 2*time.Minute, "Per-collector time budget")
	scanCmd.Flags().IntP("verbose", "v", 0, "Verbosity level (0-3)")
	scanCmd.Flags().String("history", "", "Scan history database path (SQLite)")

	scanCmd.Flags().Bool("package", false, "Bundle the result into an evidence package")
	scanCmd.Flags().String("case-id", "", "Case identifier for the evidence package")
	scanCmd.Flags().String("examiner", "", "Examiner name for the chain of custody record")
	scanCmd.Flags().String("package-dir", ".", "Directory for the evidence package")
	scanCmd.Flags().String("password", "", "Encrypt the evidence package with this password")
}

// exitCodeError carries the process exit code for non-clean scans.
type exitCodeError struct {
	code int
	msg  string
}

func (e exitCodeError) Error() string { return e.msg }

// ExitCode maps an Execute error to the process exit code contract.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ec exitCodeError
	if errors.As(err, &ec) {
		return ec.code
	}
	return 2
}

func runScan(cmd *cobra.Command, args []string) error {
	profile, err := scanProfile(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	verbose, _ := cmd.Flags().GetInt("verbose")
	orch := engine.New(
		&engine.Config{
			Budget:        profile.Budget(),
			Verbose:       verbose,
			EngineVersion: version,
		},
		engine.WithCollectors(buildCollectors(profile)...),
		engine.WithHostProbe(sysinfo.Probe),
	)

	result, err := orch.Run(ctx)
	if err != nil {
		return exitCodeError{code: engine.StatusFatal.ExitCode(), msg: fmt.Sprintf("scan failed: %v", err)}
	}

	outputPath, _ := cmd.Flags().GetString("output")
	if profile.Output != "" && outputPath == "" {
		outputPath = profile.Output
	}
	if err := writeReport(ctx, cmd, result, profile.Format, outputPath); err != nil {
		return exitCodeError{code: engine.StatusFatal.ExitCode(), msg: err.Error()}
	}

	if pack, _ := cmd.Flags().GetBool("package"); pack || profile.Package.Enabled {
		// A packaging failure is reported but never invalidates the
		// report that was already written.
		if path, err := packageResult(ctx, cmd, result, profile); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "evidence packaging failed: %v\n", err)
		} else {
			fmt.Fprintf(cmd.ErrOrStderr(), "evidence package written to %s\n", path)
		}
	}

	if historyPath, _ := cmd.Flags().GetString("history"); historyPath != "" {
		if err := saveHistory(ctx, historyPath, result, outputPath); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "saving scan history failed: %v\n", err)
		}
	}

	if result.Session.Status != engine.StatusComplete {
		return exitCodeError{
			code: result.Session.Status.ExitCode(),
			msg: fmt.Sprintf("scan finished with status %s (%d artifacts collected)",
				result.Session.Status, result.Session.TotalArtifacts),
		}
	}
	return nil
}

// scanProfile resolves the effective profile: YAML file first, then
// explicit flags override it.
func scanProfile(cmd *cobra.Command) (*config.Profile, error) {
	profile := config.Default()
	if path, _ := cmd.Flags().GetString("profile"); path != "" {
		loaded, err := config.Load(afero.NewOsFs(), path)
		if err != nil {
			return nil, err
		}
		profile = loaded
	}

	if cmd.Flags().Changed("artifacts") {
		raw, _ := cmd.Flags().GetString("artifacts")
		profile.Artifacts = nil
		for _, a := range strings.Split(raw, ",") {
			if a = strings.TrimSpace(a); a != "" {
				profile.Artifacts = append(profile.Artifacts, a)
			}
		}
	}
	if cmd.Flags().Changed("skip-hashes") {
		profile.SkipHashes, _ = cmd.Flags().GetBool("skip-hashes")
	}
	if cmd.Flags().Changed("max-events") {
		profile.MaxEvents, _ = cmd.Flags().GetInt("max-events")
	}
	if cmd.Flags().Changed("timeout") {
		d, _ := cmd.Flags().GetDuration("timeout")
		profile.TimeoutSeconds = int(d.Seconds())
	}
	if cmd.Flags().Changed("format") {
		profile.Format, _ = cmd.Flags().GetString("format")
	}

	if err := profile.Validate(); err != nil {
		return nil, err
	}
	return profile, nil
}

// buildCollectors wires the selected collectors in their fixed
// deterministic run order.
func buildCollectors(profile *config.Profile) []engine.Collector {
	var collectors []engine.Collector
	for _, artifact := range config.KnownArtifacts {
		if !profile.Selected(artifact) {
			continue
		}
		switch artifact {
		case "system_info":
			collectors = append(collectors, sysinfo.NewCollector())
		case "processes":
			collectors = append(collectors, process.NewCollector(process.Options{
				SkipHashes: profile.SkipHashes,
			}))
		case "network":
			collectors = append(collectors, network.NewCollector())
		case "persistence":
			collectors = append(collectors, persistence.NewCollector(nil, nil))
		case "event_logs":
			collectors = append(collectors, eventlog.NewCollector(profile.MaxEvents, nil))
		case "prefetch":
			collectors = append(collectors, prefetch.NewCollector(nil, ""))
		case "shimcache":
			collectors = append(collectors, shimcache.NewCollector(nil))
		}
	}
	return collectors
}

func writeReport(ctx context.Context, cmd *cobra.Command, result *engine.ScanResult, format, outputPath string) error {
	reporter, err := report.New(format)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("create output file %q: %w", outputPath, err)
		}
		defer f.Close()
		out = f
	}
	if err := reporter.Generate(ctx, result, out); err != nil {
		return fmt.Errorf("generate report: %w", err)
	}
	return nil
}

func packageResult(ctx context.Context, cmd *cobra.Command, result *engine.ScanResult, profile *config.Profile) (string, error) {
	var buf bytes.Buffer
	jsonReporter := &report.JSONReporter{}
	if err := jsonReporter.Generate(ctx, result, &buf); err != nil {
		return "", err
	}

	caseID, _ := cmd.Flags().GetString("case-id")
	if caseID == "" {
		caseID = profile.Package.CaseID
	}
	examiner, _ := cmd.Flags().GetString("examiner")
	if examiner == "" {
		examiner = profile.Package.Examiner
	}
	outputDir, _ := cmd.Flags().GetString("package-dir")
	if profile.Package.OutputDir != "" && !cmd.Flags().Changed("package-dir") {
		outputDir = profile.Package.OutputDir
	}
	password, _ := cmd.Flags().GetString("password")

	packager := evidence.NewPackager(nil)
	return packager.Package(
		[]evidence.File{{Name: "result.json", Data: buf.Bytes()}},
		evidence.Options{
			CaseID:      caseID,
			Examiner:    examiner,
			Hostname:    result.Session.Hostname,
			ToolVersion: version,
			Password:    password,
			OutputDir:   outputDir,
		})
}

func saveHistory(ctx context.Context, dbPath string, result *engine.ScanResult, reportPath string) error {
	store, err := session.NewSQLiteStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Save(ctx, session.FromResult(result, reportPath))
}
