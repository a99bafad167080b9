// Package network snapshots the OS connection table: TCP in every state
// plus bound UDP endpoints.
package network

import (
	"context"
	"fmt"
	"syscall"

	gopsnet "github.com/shirou/gopsutil/v3/net"
	gops "github.com/shirou/gopsutil/v3/process"

	"github.com/4n6ix/triagehost/internal/auditlog"
	"github.com/4n6ix/triagehost/internal/engine"
)

// lister returns the raw connection table.
type lister func(context.Context) ([]gopsnet.ConnectionStat, error)

// nameResolver maps a PID to its process name, best effort.
type nameResolver func(context.Context, uint32) string

// Collector reads the connection table and annotates each row with the
// owning process name. PID to name resolution is a convenience join; a
// row whose process has exited keeps its PID with an empty name.
type Collector struct {
	list    lister
	resolve nameResolver
}

func NewCollector() *Collector {
	return &Collector{
		list: func(ctx context.Context) ([]gopsnet.ConnectionStat, error) {
			return gopsnet.ConnectionsWithContext(ctx, "inet")
		},
		resolve: resolveName,
	}
}

func (c *Collector) Name() string { return "network" }

func (c *Collector) Collect(ctx context.Context, log *auditlog.Log) (*engine.Contribution, error) {
	stats, err := c.list(ctx)
	if err != nil {
		return nil, fmt.Errorf("read connection table: %w", err)
	}

	// Most rows share a handful of owners; resolve each PID once.
	names := make(map[uint32]string)
	conns := make([]engine.NetworkConnection, 0, len(stats))
	external := 0
	for _, s := range stats {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		conn := engine.NetworkConnection{
			Protocol:      protocolOf(s),
			LocalAddress:  s.Laddr.IP,
			LocalPort:     uint16(s.Laddr.Port),
			RemoteAddress: s.Raddr.IP,
			RemotePort:    uint16(s.Raddr.Port),
			State:         engine.ParseConnState(s.Status),
			OwningPID:     uint32(s.Pid),
		}
		if conn.OwningPID != 0 {
			name, cached := names[conn.OwningPID]
			if !cached {
				name = c.resolve(ctx, conn.OwningPID)
				names[conn.OwningPID] = name
			}
			conn.ProcessName = name
		}
		if conn.External() {
			external++
		}
		conns = append(conns, conn)
	}

	log.Infof(c.Name(), "collected %d connections (%d external)", len(conns), external)
	return &engine.Contribution{Network: conns}, nil
}

func protocolOf(s gopsnet.ConnectionStat) engine.Protocol {
	if s.Type == syscall.SOCK_DGRAM {
		return engine.ProtoUDP
	}
	return engine.ProtoTCP
}

func resolveName(ctx context.Context, pid uint32) string {
	p, err := gops.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return ""
	}
	name, err := p.NameWithContext(ctx)
	if err != nil {
		return ""
	}
	return name
}
