package prefetch

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/4n6ix/triagehost/internal/auditlog"
	"github.com/4n6ix/triagehost/internal/engine"
)

// DefaultDir is the standard prefetch location on a live system.
const DefaultDir = `C:\Windows\Prefetch`

// maxFileSize caps how much of a single .pf file is read. Real prefetch
// files are tens of kilobytes; anything larger is corrupt or hostile.
const maxFileSize = 16 << 20

// Collector reads every .pf file under a directory. A file that fails to
// parse is skipped with a warning; the collector itself fails only when
// the directory cannot be read at all.
type Collector struct {
	fs  afero.Fs
	dir string
}

// NewCollector scans dir on fs. Zero values select the OS filesystem and
// the standard prefetch directory.
func NewCollector(fs afero.Fs, dir string) *Collector {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if dir == "" {
		dir = DefaultDir
	}
	return &Collector{fs: fs, dir: dir}
}

func (c *Collector) Name() string { return "prefetch" }

func (c *Collector) Collect(ctx context.Context, log *auditlog.Log) (*engine.Contribution, error) {
	entries, err := afero.ReadDir(c.fs, c.dir)
	if err != nil {
		return nil, fmt.Errorf("read prefetch directory %s: %w", c.dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pf") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	records := make([]engine.PrefetchRecord, 0, len(names))
	skipped := 0
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := c.readFile(name)
		if err != nil {
			log.Warnf(c.Name(), "skipping %s: %v", name, err)
			skipped++
			continue
		}
		rec, err := Parse(data, name)
		if err != nil {
			log.Warnf(c.Name(), "skipping %s: %v", name, err)
			skipped++
			continue
		}
		records = append(records, rec)
	}

	log.Infof(c.Name(), "parsed %d prefetch files (%d skipped)", len(records), skipped)
	return &engine.Contribution{Prefetch: records}, nil
}

func (c *Collector) readFile(name string) ([]byte, error) {
	path := filepath.Join(c.dir, name)
	info, err := c.fs.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("file too large (%d bytes): %w", info.Size(), engine.ErrParse)
	}
	return afero.ReadFile(c.fs, path)
}
