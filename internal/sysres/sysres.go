// Package sysres reports host resource usage.
//
// The pipeline does not compute resource figures itself; it passes a
// collaborator snapshot through the status surfaces. Collection is best
// effort: a subsystem that cannot be read on this platform leaves its
// fields zero instead of failing the whole snapshot.
package sysres

import (
	"context"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/xtxerr/pulse/internal/logging"
)

// Snapshot is one host resource reading.
type Snapshot struct {
	CPUPercent     float64 `json:"cpu_percent"`
	MemTotalBytes  uint64  `json:"mem_total_bytes"`
	MemUsedBytes   uint64  `json:"mem_used_bytes"`
	MemUsedPercent float64 `json:"mem_used_percent"`
	Load1          float64 `json:"load1"`
	Load5          float64 `json:"load5"`
	Load15         float64 `json:"load15"`
	Processes      int     `json:"processes"`
	HostUptimeSec  uint64  `json:"host_uptime_sec"`
	CollectedUs    int64   `json:"collected_us"`
}

// Provider produces resource snapshots.
type Provider interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// HostProvider reads the local host through gopsutil.
type HostProvider struct {
	log *slog.Logger
}

var _ Provider = (*HostProvider)(nil)

// NewHostProvider creates a host-backed provider.
func NewHostProvider() *HostProvider {
	return &HostProvider{log: logging.Component("sysres")}
}

// Snapshot collects a best-effort reading of the local host.
func (p *HostProvider) Snapshot(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{CollectedUs: time.Now().UnixMicro()}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		p.log.Debug("memory read failed", "error", err)
	} else {
		snap.MemTotalBytes = vm.Total
		snap.MemUsedBytes = vm.Used
		snap.MemUsedPercent = vm.UsedPercent
	}

	// Interval zero compares against the previous call instead of blocking.
	if pcts, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		p.log.Debug("cpu read failed", "error", err)
	} else if len(pcts) > 0 {
		snap.CPUPercent = pcts[0]
	}

	if avg, err := load.AvgWithContext(ctx); err != nil {
		p.log.Debug("load read failed", "error", err)
	} else {
		snap.Load1 = avg.Load1
		snap.Load5 = avg.Load5
		snap.Load15 = avg.Load15
	}

	if pids, err := process.PidsWithContext(ctx); err != nil {
		p.log.Debug("process count failed", "error", err)
	} else {
		snap.Processes = len(pids)
	}

	if up, err := host.UptimeWithContext(ctx); err != nil {
		p.log.Debug("host uptime failed", "error", err)
	} else {
		snap.HostUptimeSec = up
	}

	return snap, ctx.Err()
}

// StaticProvider returns a fixed snapshot. Used in tests and anywhere a
// live host reading is unwanted.
type StaticProvider struct {
	Snap Snapshot
	Err  error
}

var _ Provider = StaticProvider{}

// Snapshot returns the configured snapshot and error.
func (p StaticProvider) Snapshot(context.Context) (Snapshot, error) {
	return p.Snap, p.Err
}
