package server

import (
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemMetrics is the host memory snapshot reported by /api/status.
type SystemMetrics struct {
	MemoryUsedGB  float64 `json:"memory_used_gb"`
	MemoryTotalGB float64 `json:"memory_total_gb"`
	MemoryPercent float64 `json:"memory_percent"`
}

const bytesPerGB = 1024 * 1024 * 1024

// systemMetrics samples host memory. Failures degrade to zeros rather
// than failing the status endpoint.
func systemMetrics() SystemMetrics {
	v, err := mem.VirtualMemory()
	if err != nil {
		return SystemMetrics{}
	}
	return SystemMetrics{
		MemoryUsedGB:  float64(v.Total-v.Available) / bytesPerGB,
		MemoryTotalGB: float64(v.Total) / bytesPerGB,
		MemoryPercent: v.UsedPercent,
	}
}
