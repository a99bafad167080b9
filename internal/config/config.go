// Package config loads scan profiles: reusable YAML files that fix the
// artifact selection and collection limits for repeated engagements.
package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// KnownArtifacts lists the selectable artifact types in collection order.
var KnownArtifacts = []string{
	"system_info", "processes", "network", "persistence",
	"event_logs", "prefetch", "shimcache",
}

// Profile is one scan configuration.
type Profile struct {
	// Artifacts selects the collectors to run; empty selects all.
	Artifacts  []string `yaml:"artifacts"`
	SkipHashes bool     `yaml:"skip_hashes"`
	MaxEvents  int      `yaml:"max_events"`
	// TimeoutSeconds is the per-collector time budget.
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Output         string `yaml:"output"`
	Format         string `yaml:"format"`

	Package PackageProfile `yaml:"package"`
}

// PackageProfile configures evidence packaging.
type PackageProfile struct {
	Enabled   bool   `yaml:"enabled"`
	CaseID    string `yaml:"case_id"`
	Examiner  string `yaml:"examiner"`
	OutputDir string `yaml:"output_dir"`
}

// Default returns the profile used when no file is given.
func Default() *Profile {
	return &Profile{
		MaxEvents:      1000,
		TimeoutSeconds: 120,
		Format:         "json",
	}
}

// Budget returns the per-collector time budget.
func (p *Profile) Budget() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// Selected reports whether an artifact type should be collected.
func (p *Profile) Selected(artifact string) bool {
	if len(p.Artifacts) == 0 {
		return true
	}
	for _, a := range p.Artifacts {
		if a == artifact {
			return true
		}
	}
	return false
}

// Load reads and validates a profile, filling unset limits from the
// defaults.
func Load(fs afero.Fs, path string) (*Profile, error) {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read profile %s: %w", path, err)
	}

	p := Default()
	if err := yaml.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	return p, nil
}

// Validate checks field ranges and artifact names.
func (p *Profile) Validate() error {
	if p.MaxEvents < 0 {
		return fmt.Errorf("max_events must not be negative")
	}
	if p.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be positive")
	}
	switch p.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("unknown format %q", p.Format)
	}
	for _, a := range p.Artifacts {
		if !knownArtifact(a) {
			return fmt.Errorf("unknown artifact type %q (valid: %v)", a, KnownArtifacts)
		}
	}
	return nil
}

func knownArtifact(name string) bool {
	i := sort.SearchStrings(sortedArtifacts, name)
	return i < len(sortedArtifacts) && sortedArtifacts[i] == name
}

var sortedArtifacts = func() []string {
	s := append([]string{}, KnownArtifacts...)
	sort.Strings(s)
	return s
}()
