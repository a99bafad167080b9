package persistence

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/4n6ix/triagehost/internal/engine"
)

// TaskRunner executes the task scheduler query and returns its CSV output.
type TaskRunner func(context.Context) ([]byte, error)

func runSchtasks(ctx context.Context) ([]byte, error) {
	out, err := exec.CommandContext(ctx, "schtasks", "/query", "/fo", "csv", "/v").Output()
	if err != nil {
		return nil, fmt.Errorf("run schtasks: %w", err)
	}
	return out, nil
}

func taskSource(runner TaskRunner) func(context.Context) ([]engine.PersistenceEntry, error) {
	return func(ctx context.Context) ([]engine.PersistenceEntry, error) {
		out, err := runner(ctx)
		if err != nil {
			return nil, err
		}
		return parseTaskCSV(out)
	}
}

// parseTaskCSV decodes the verbose schtasks CSV listing. The tool repeats
// the header row before each task folder, so header rows are matched and
// skipped anywhere in the stream.
func parseTaskCSV(data []byte) ([]engine.PersistenceEntry, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("parse schtasks output: %w", engine.ErrParse)
	}
	nameIdx := columnIndex(header, "TaskName")
	statusIdx := columnIndex(header, "Status")
	userIdx := columnIndex(header, "Run As User")
	commandIdx := columnIndex(header, "Task To Run")
	if nameIdx < 0 || commandIdx < 0 {
		return nil, fmt.Errorf("schtasks output missing expected columns: %w", engine.ErrParse)
	}

	var entries []engine.PersistenceEntry
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return entries, fmt.Errorf("parse schtasks output: %w", engine.ErrParse)
		}
		taskPath := field(row, nameIdx)
		if taskPath == "" || taskPath == "TaskName" {
			continue
		}
		if !strings.HasPrefix(taskPath, `\`) {
			taskPath = `\` + taskPath
		}
		command := field(row, commandIdx)
		status := field(row, statusIdx)

		// Disabled tasks stay out of the report unless their command
		// already looks like something an attacker would park there.
		active := strings.EqualFold(status, "Ready") || strings.EqualFold(status, "Running")
		if !active && !Suspicious(command) {
			continue
		}

		entries = append(entries, engine.PersistenceEntry{
			Type:     engine.MechanismScheduledTask,
			Name:     taskName(taskPath),
			Command:  command,
			Source:   "Task Scheduler: " + taskPath,
			Location: taskPath,
			Value:    field(row, userIdx),
		})
	}
	return entries, nil
}

func columnIndex(header []string, name string) int {
	for i, col := range header {
		if strings.EqualFold(strings.TrimSpace(col), name) {
			return i
		}
	}
	return -1
}

func field(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func taskName(taskPath string) string {
	if i := strings.LastIndex(taskPath, `\`); i >= 0 {
		return taskPath[i+1:]
	}
	return taskPath
}
