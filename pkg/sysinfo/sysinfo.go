// Package sysinfo samples host resources for the admin system status page.
package sysinfo

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// cpuSampleWindow is how long CPU usage is measured
const cpuSampleWindow = 100 * time.Millisecond

// Host describes the machine running the server
type Host struct {
	Hostname        string  `json:"hostname"`
	OS              string  `json:"os"`
	Platform        string  `json:"platform,omitempty"`
	UptimeSeconds   uint64  `json:"uptime_seconds"`
	CPUCount        int     `json:"cpu_count"`
	CPUPercent      float64 `json:"cpu_percent"`
	MemoryTotal     uint64  `json:"memory_total_bytes"`
	MemoryUsed      uint64  `json:"memory_used_bytes"`
	MemoryAvailable uint64  `json:"memory_available_bytes"`
	MemoryPercent   float64 `json:"memory_percent"`
}

// Process describes the server process itself
type Process struct {
	PID           int    `json:"pid"`
	GoVersion     string `json:"go_version"`
	Goroutines    int    `json:"goroutines"`
	HeapAlloc     uint64 `json:"heap_alloc_bytes"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// Snapshot is one sample. Errors of individual probes leave their fields zero.
type Snapshot struct {
	Host    Host     `json:"host"`
	Process Process  `json:"process"`
	Errors  []string `json:"errors,omitempty"`
}

var startedAt = time.Now()

// Collect samples host and process resources
func Collect(ctx context.Context) Snapshot {
	var snap Snapshot

	if info, err := host.InfoWithContext(ctx); err == nil {
		snap.Host.Hostname = info.Hostname
		snap.Host.OS = info.OS
		snap.Host.Platform = info.Platform
		snap.Host.UptimeSeconds = info.Uptime
	} else {
		snap.Host.Hostname, _ = os.Hostname()
		snap.Host.OS = runtime.GOOS
		snap.Errors = append(snap.Errors, "host: "+err.Error())
	}

	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		snap.Host.CPUCount = n
	} else {
		snap.Host.CPUCount = runtime.NumCPU()
	}
	if pct, err := cpu.PercentWithContext(ctx, cpuSampleWindow, false); err == nil && len(pct) > 0 {
		snap.Host.CPUPercent = pct[0]
	} else if err != nil {
		snap.Errors = append(snap.Errors, "cpu: "+err.Error())
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		snap.Host.MemoryTotal = vm.Total
		snap.Host.MemoryUsed = vm.Used
		snap.Host.MemoryAvailable = vm.Available
		snap.Host.MemoryPercent = vm.UsedPercent
	} else {
		snap.Errors = append(snap.Errors, "memory: "+err.Error())
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	snap.Process = Process{
		PID:           os.Getpid(),
		GoVersion:     runtime.Version(),
		Goroutines:    runtime.NumGoroutine(),
		HeapAlloc:     ms.HeapAlloc,
		UptimeSeconds: int64(time.Since(startedAt).Seconds()),
	}
	return snap
}
