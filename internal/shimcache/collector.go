package shimcache

import (
	"context"
	"fmt"

	"github.com/4n6ix/triagehost/internal/auditlog"
	"github.com/4n6ix/triagehost/internal/engine"
)

// Source yields the raw AppCompatCache registry value.
type Source func() ([]byte, error)

// Collector reads the compatibility cache from a Source and decodes it.
type Collector struct {
	source Source
}

// NewCollector uses the live registry on Windows. A non-nil source
// overrides it, which tests and offline analysis use.
func NewCollector(source Source) *Collector {
	if source == nil {
		source = readSystemCache
	}
	return &Collector{source: source}
}

func (c *Collector) Name() string { return "shimcache" }

func (c *Collector) Collect(ctx context.Context, log *auditlog.Log) (*engine.Contribution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := c.source()
	if err != nil {
		return nil, fmt.Errorf("read appcompat cache: %w", err)
	}

	records, err := Parse(raw)
	if err != nil {
		// A truncated blob still yields the entries decoded before the
		// damage; keep them and degrade instead of losing everything.
		if len(records) == 0 {
			return nil, err
		}
		log.Warnf(c.Name(), "cache decoded partially: %v", err)
	}

	log.Infof(c.Name(), "decoded %d shimcache entries", len(records))
	return &engine.Contribution{Shimcache: records}, nil
}
