// Package process snapshots the running process table and hashes the
// executable images behind it. Hashing is the expensive part of a scan,
// so it runs through a bounded worker pool behind a rate limiter.
package process

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/spf13/afero"
	"golang.org/x/time/rate"

	"github.com/4n6ix/triagehost/internal/auditlog"
	"github.com/4n6ix/triagehost/internal/engine"
)

const maxModules = 64

// Options tunes process collection.
type Options struct {
	// SkipHashes records every hash as the skip sentinel without touching
	// the filesystem.
	SkipHashes bool
	// HashWorkers bounds concurrent hashing; zero picks a CPU-based
	// default.
	HashWorkers int
	// HashRate caps executable reads per second. Zero means unlimited.
	HashRate rate.Limit
}

// snapshot is one process row as reported by the OS, before hashing.
type snapshot struct {
	pid, ppid uint32
	name      string
	cmdline   string
	exe       string
	user      string
	rssBytes  uint64
	modules   []engine.ProcessModule
}

// lister enumerates the process table.
type lister func(context.Context) ([]snapshot, error)

// Collector builds ProcessRecords from a process lister and an optional
// hashing pass over the executables.
type Collector struct {
	opts Options
	fs   afero.Fs
	list lister
}

// NewCollector reads the live process table via gopsutil and hashes from
// the OS filesystem.
func NewCollector(opts Options) *Collector {
	return &Collector{opts: opts, fs: afero.NewOsFs(), list: gopsutilList}
}

func (c *Collector) Name() string { return "processes" }

func (c *Collector) Collect(ctx context.Context, log *auditlog.Log) (*engine.Contribution, error) {
	snaps, err := c.list(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate processes: %w", err)
	}

	records := make([]engine.ProcessRecord, len(snaps))
	for i, s := range snaps {
		records[i] = engine.ProcessRecord{
			PID:            s.pid,
			ParentPID:      s.ppid,
			Name:           s.name,
			CommandLine:    s.cmdline,
			ExecutablePath: s.exe,
			SHA256:         engine.HashSkipped,
			User:           s.user,
			MemoryUsageMB:  float64(s.rssBytes) / (1024 * 1024),
			LoadedModules:  s.modules,
		}
	}

	hashed, failed := 0, 0
	if !c.opts.SkipHashes {
		hashed, failed = c.hashAll(ctx, records)
	}

	log.Infof(c.Name(), "collected %d processes (%d hashed, %d hash failures)",
		len(records), hashed, failed)
	return &engine.Contribution{Processes: records}, nil
}

// hashAll fills the SHA256 field of every record that has an executable
// path. Each worker pulls record indexes, so slots are written without
// further coordination.
func (c *Collector) hashAll(ctx context.Context, records []engine.ProcessRecord) (hashed, failed int) {
	workers := c.opts.HashWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
		if workers > 4 {
			workers = 4
		}
	}
	limit := c.opts.HashRate
	if limit <= 0 {
		limit = rate.Inf
	}
	limiter := rate.NewLimiter(limit, 1)

	jobs := make(chan int)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				var ok bool
				if err := limiter.Wait(ctx); err == nil {
					if sum, err := hashFile(c.fs, records[i].ExecutablePath); err == nil {
						records[i].SHA256 = sum
						ok = true
					}
				}
				if !ok {
					records[i].SHA256 = engine.HashError
				}
				mu.Lock()
				if ok {
					hashed++
				} else {
					failed++
				}
				mu.Unlock()
			}
		}()
	}

	for i := range records {
		if records[i].ExecutablePath == "" {
			continue
		}
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return hashed, failed
}

func hashFile(fs afero.Fs, path string) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// moduleFromPath builds a module record from a mapped file path.
func moduleFromPath(path string) engine.ProcessModule {
	return engine.ProcessModule{
		Name:     filepath.Base(path),
		FilePath: path,
	}
}
