// Package hostinfo reports the host capabilities a worker announces on
// register and the live CPU/memory figures it carries on every heartbeat.
// SVT-AV1 and the Opus encoder here are software-only, so there is no GPU
// capability to probe; this package replaces what used to be a Vulkan
// device enumerator with real telemetry from gopsutil.
package hostinfo

import (
	"context"
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/avfarm/common/models"
)

// EncoderPresets are the SVT-AV1 preset numbers this worker build supports,
// 0 (slowest/best) through 13 (fastest).
var EncoderPresets = []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13}

// Capabilities collects the one-time registration payload.
func Capabilities(ctx context.Context) (models.Capabilities, error) {
	count, err := cpu.CountsWithContext(ctx, true)
	if err != nil || count == 0 {
		count = runtime.NumCPU()
	}

	var totalBytes uint64
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		totalBytes = vm.Total
	}

	return models.Capabilities{
		CPUCount:                 count,
		MemoryTotalBytes:          totalBytes,
		EncoderPresets:            EncoderPresets,
		SupportsFileDistribution: true,
	}, nil
}

// Telemetry is the live load snapshot attached to each heartbeat.
type Telemetry struct {
	CPUPercent float64
	MemPercent float64
}

// Sample reads CPU utilization since the previous call and the current
// memory percentage. The CPU read uses a zero interval, so it does not
// block; callers run it off the heartbeat ticker's own goroutine.
func Sample(ctx context.Context) (Telemetry, error) {
	var t Telemetry

	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err == nil && len(percents) > 0 {
		t.CPUPercent = percents[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		t.MemPercent = vm.UsedPercent
	}

	return t, nil
}
