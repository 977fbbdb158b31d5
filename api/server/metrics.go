// metrics.go - health metrics collection for the IoTSentry node
package server

import (
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
)

// NodeMetrics holds granular health metrics for the node.
type NodeMetrics struct {
	UptimeSeconds       int64   `json:"uptime_seconds"`
	BlockHeight         int     `json:"block_height"`
	PendingTransactions int     `json:"pending_transactions"`
	CPULoadPercent      float64 `json:"cpu_load_percent"`
	MemoryMB            float64 `json:"memory_mb"`
	ChainValid          bool    `json:"chain_valid"`
	LastBlockTime       string  `json:"last_block_time"`
}

// Track server start time for uptime calculation
var startTime = time.Now()

// GetNodeMetrics returns current health metrics for the node.
func (s *Server) GetNodeMetrics() NodeMetrics {
	uptime := int64(time.Since(startTime).Seconds())

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	memoryMB := float64(m.Alloc) / (1024 * 1024)

	cpuLoad := 0.0
	if cpuPercents, err := cpu.Percent(0, false); err == nil && len(cpuPercents) > 0 {
		cpuLoad = cpuPercents[0]
	}

	blocks := s.chain.Blocks()
	lastBlockTime := blocks[len(blocks)-1].Timestamp

	return NodeMetrics{
		UptimeSeconds:       uptime,
		BlockHeight:         len(blocks),
		PendingTransactions: s.chain.PendingCount(),
		CPULoadPercent:      cpuLoad,
		MemoryMB:            memoryMB,
		ChainValid:          s.chain.Validate().OK,
		LastBlockTime:       lastBlockTime.UTC().Format(time.RFC3339),
	}
}
