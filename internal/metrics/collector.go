package metrics

import (
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

// Collect gathers a snapshot of host metrics suitable for worker heartbeat
// payloads. Sections that cannot be read on this host are left out.
func Collect() map[string]any {
	snapshot := map[string]any{
		"collected_at": time.Now().UTC().Format(time.RFC3339),
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		snapshot["cpu"] = map[string]any{
			"percent": percents[0],
		}
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		snapshot["memory"] = map[string]any{
			"total":     vm.Total,
			"available": vm.Available,
			"used":      vm.Used,
			"percent":   vm.UsedPercent,
		}
	}

	if usage, err := disk.Usage("/"); err == nil {
		snapshot["disk"] = map[string]any{
			"total":   usage.Total,
			"free":    usage.Free,
			"used":    usage.Used,
			"percent": usage.UsedPercent,
		}
	}

	if avg, err := load.Avg(); err == nil {
		snapshot["load"] = map[string]any{
			"load1":  avg.Load1,
			"load5":  avg.Load5,
			"load15": avg.Load15,
		}
	}

	return snapshot
}
