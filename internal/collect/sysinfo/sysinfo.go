// Package sysinfo gathers host identity details: uptime and the
// interactive logon sessions present at collection time.
package sysinfo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/4n6ix/triagehost/internal/auditlog"
	"github.com/4n6ix/triagehost/internal/engine"
)

// Probe resolves hostname and OS version for the session header. It runs
// before any collector; failure here aborts the whole scan.
func Probe() (hostname, osVersion string, err error) {
	info, err := host.Info()
	if err != nil {
		return "", "", fmt.Errorf("query host info: %w", err)
	}
	version := strings.TrimSpace(info.Platform + " " + info.PlatformVersion)
	return info.Hostname, version, nil
}

// Collector reads uptime and logon sessions. The two probes are
// injectable so tests run without a live host.
type Collector struct {
	hostInfo func(context.Context) (*host.InfoStat, error)
	users    func(context.Context) ([]host.UserStat, error)
}

func NewCollector() *Collector {
	return &Collector{
		hostInfo: host.InfoWithContext,
		users:    host.UsersWithContext,
	}
}

func (c *Collector) Name() string { return "system_info" }

func (c *Collector) Collect(ctx context.Context, log *auditlog.Log) (*engine.Contribution, error) {
	info, err := c.hostInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("query host info: %w", err)
	}

	si := engine.SystemInfo{UptimeSecs: info.Uptime}

	// Logon enumeration needs more privilege than uptime on some systems;
	// its failure degrades the collection instead of failing it.
	sessions, err := c.users(ctx)
	if err != nil {
		log.Warnf(c.Name(), "logged-on user enumeration failed: %v", err)
	}
	for _, s := range sessions {
		user := engine.LoggedOnUser{
			Username:  s.User,
			LogonTime: time.Unix(int64(s.Started), 0).UTC(),
		}
		if domain, name, ok := strings.Cut(s.User, `\`); ok {
			user.Domain = domain
			user.Username = name
		}
		si.LoggedOnUsers = append(si.LoggedOnUsers, user)
	}

	log.Infof(c.Name(), "uptime %ds, %d logon sessions", si.UptimeSecs, len(si.LoggedOnUsers))
	return &engine.Contribution{SystemInfo: &si}, nil
}
