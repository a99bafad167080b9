package process

import (
	"context"
	"strings"

	gops "github.com/shirou/gopsutil/v3/process"

	"github.com/4n6ix/triagehost/internal/engine"
)

// gopsutilList snapshots the live process table. Per-field failures are
// tolerated: a process the caller cannot fully inspect still appears in
// the output with the fields that did resolve.
func gopsutilList(ctx context.Context) ([]snapshot, error) {
	procs, err := gops.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	snaps := make([]snapshot, 0, len(procs))
	for _, p := range procs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s := snapshot{pid: uint32(p.Pid)}
		if ppid, err := p.PpidWithContext(ctx); err == nil {
			s.ppid = uint32(ppid)
		}
		s.name, _ = p.NameWithContext(ctx)
		s.cmdline, _ = p.CmdlineWithContext(ctx)
		s.exe, _ = p.ExeWithContext(ctx)
		s.user, _ = p.UsernameWithContext(ctx)
		if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
			s.rssBytes = mem.RSS
		}
		s.modules = loadedModules(ctx, p)
		snaps = append(snaps, s)
	}
	return snaps, nil
}

// loadedModules lists mapped shared libraries, capped to keep pathological
// processes from bloating the report. Unsupported platforms and access
// failures yield an empty list.
func loadedModules(ctx context.Context, p *gops.Process) []engine.ProcessModule {
	maps, err := p.MemoryMapsWithContext(ctx, false)
	if err != nil || maps == nil {
		return nil
	}

	seen := make(map[string]struct{})
	var modules []engine.ProcessModule
	for _, m := range *maps {
		if len(modules) >= maxModules {
			break
		}
		path := m.Path
		if path == "" || !isSharedLibrary(path) {
			continue
		}
		if _, dup := seen[path]; dup {
			continue
		}
		seen[path] = struct{}{}
		modules = append(modules, moduleFromPath(path))
	}
	return modules
}

func isSharedLibrary(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".dll") || strings.Contains(lower, ".so")
}
