package config

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProfile(t *testing.T, fs afero.Fs, content string) string {
	t.Helper()
	path := "/profiles/triage.yaml"
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := writeProfile(t, fs, `
artifacts:
  - processes
  - prefetch
skip_hashes: true
max_events: 100
timeout_seconds: 60
format: text
package:
  enabled: true
  case_id: IR-2024-042
  examiner: A. Analyst
  output_dir: /cases
`)

	p, err := Load(fs, path)
	require.NoError(t, err)
	assert.Equal(t, []string{"processes", "prefetch"}, p.Artifacts)
	assert.True(t, p.SkipHashes)
	assert.Equal(t, 100, p.MaxEvents)
	assert.Equal(t, time.Minute, p.Budget())
	assert.Equal(t, "text", p.Format)
	assert.True(t, p.Package.Enabled)
	assert.Equal(t, "IR-2024-042", p.Package.CaseID)
}

func TestLoadAppliesDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := writeProfile(t, fs, "skip_hashes: true\n")

	p, err := Load(fs, path)
	require.NoError(t, err)
	assert.Equal(t, 1000, p.MaxEvents)
	assert.Equal(t, 2*time.Minute, p.Budget())
	assert.Equal(t, "json", p.Format)
	assert.Empty(t, p.Artifacts)
}

func TestLoadRejectsUnknownArtifact(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := writeProfile(t, fs, "artifacts: [registry_hives]\n")

	_, err := Load(fs, path)
	assert.ErrorContains(t, err, "unknown artifact type")
}

func TestLoadRejectsBadValues(t *testing.T) {
	fs := afero.NewMemMapFs()

	_, err := Load(fs, writeProfile(t, fs, "max_events: -5\n"))
	assert.ErrorContains(t, err, "max_events")

	_, err = Load(fs, writeProfile(t, fs, "timeout_seconds: 0\n"))
	assert.ErrorContains(t, err, "timeout_seconds")

	_, err = Load(fs, writeProfile(t, fs, "format: csv\n"))
	assert.ErrorContains(t, err, "unknown format")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(afero.NewMemMapFs(), "/nope.yaml")
	assert.Error(t, err)
}

func TestSelected(t *testing.T) {
	p := Default()
	assert.True(t, p.Selected("processes"), "empty selection means all")

	p.Artifacts = []string{"prefetch"}
	assert.True(t, p.Selected("prefetch"))
	assert.False(t, p.Selected("processes"))
}
