package main

import (
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostInfo is a snapshot of the machine the relay runs on
type HostInfo struct {
	CPUCores       int     `json:"cpu_cores"`
	Load1Min       float64 `json:"load_1min"`
	Load5Min       float64 `json:"load_5min"`
	Load15Min      float64 `json:"load_15min"`
	MemUsedPercent float64 `json:"mem_used_percent"`
	Goroutines     int     `json:"goroutines"`
	Uptime         string  `json:"uptime"`
}

// collectHostInfo gathers host load. Values gopsutil cannot read on this
// platform are left at zero.
func collectHostInfo(started time.Time) HostInfo {
	info := HostInfo{
		Goroutines: runtime.NumGoroutine(),
		Uptime:     time.Since(started).Round(time.Second).String(),
	}

	if cpus, err := cpu.Info(); err == nil {
		// Sum cores across all CPUs (for multi-socket systems)
		for _, c := range cpus {
			info.CPUCores += int(c.Cores)
		}
	}
	if info.CPUCores == 0 {
		info.CPUCores = runtime.NumCPU()
	}
	if avg, err := load.Avg(); err == nil {
		info.Load1Min, info.Load5Min, info.Load15Min = avg.Load1, avg.Load5, avg.Load15
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info.MemUsedPercent = vm.UsedPercent
	}
	return info
}
