package status

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostHealth summarises the resources a long-running logger can exhaust.
type HostHealth struct {
	MemoryUsedPercent float64 `json:"memory_used_percent"`
	MemoryUsedMB      uint64  `json:"memory_used_mb"`
	MemoryTotalMB     uint64  `json:"memory_total_mb"`
	DiskPath          string  `json:"disk_path"`
	DiskUsedPercent   float64 `json:"disk_used_percent"`
	DiskFreeMB        uint64  `json:"disk_free_mb"`
	Goroutines        int     `json:"goroutines"`
	HeapAllocMB       uint64  `json:"heap_alloc_mb"`
}

const mb = 1024 * 1024

func collectHostHealth(ctx context.Context, path string) (*HostHealth, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading memory: %w", err)
	}
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("reading disk usage of %s: %w", path, err)
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	used := vm.Total - vm.Available
	return &HostHealth{
		MemoryUsedPercent: vm.UsedPercent,
		MemoryUsedMB:      used / mb,
		MemoryTotalMB:     vm.Total / mb,
		DiskPath:          path,
		DiskUsedPercent:   usage.UsedPercent,
		DiskFreeMB:        usage.Free / mb,
		Goroutines:        runtime.NumGoroutine(),
		HeapAllocMB:       ms.HeapAlloc / mb,
	}, nil
}
