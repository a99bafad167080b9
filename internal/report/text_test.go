package report

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/4n6ix/triagehost/internal/auditlog"
)

func TestTextSummary(t *testing.T) {
	result := sampleResult()
	result.Log = append(result.Log, auditlog.Entry{
		Level: auditlog.LevelError, Component: "event_logs", Message: "query failed",
	})

	var buf bytes.Buffer
	require.NoError(t, (&TextReporter{}).Generate(context.Background(), result, &buf))
	out := buf.String()

	assert.Contains(t, out, result.Session.ID)
	assert.Contains(t, out, "WS01")
	assert.Contains(t, out, "Status:     Complete")
	assert.Contains(t, out, "Processes:              2")
	assert.Contains(t, out, "(1 external)")
	assert.Contains(t, out, "(1 suspicious)")
	assert.Contains(t, out, "[ERROR] event_logs: query failed")
}

func TestReporterFactory(t *testing.T) {
	r, err := New("JSON")
	require.NoError(t, err)
	assert.Equal(t, "json", r.Format())

	r, err = New("text")
	require.NoError(t, err)
	assert.Equal(t, "text", r.Format())

	_, err = New("xml")
	assert.Error(t, err)
}
