package sheep

import (
	"github.com/shirou/gopsutil/v3/process"
)

// Usage is a point-in-time resource sample for a sheep's worker process,
// surfaced in status() (spec.md §4.5, SPEC_FULL domain stack). Sampling a
// Docker-backed sheep is out of scope here (gopsutil samples OS processes,
// not containers); DockerSheep.Usage always reports ok=false.
type Usage struct {
	CPUPercent     float64
	MemoryRSSBytes uint64
}

// Usage samples the bare subprocess's CPU and RSS via gopsutil. ok is false
// if the sheep has no running subprocess to sample.
func (s *BareSheep) Usage() (Usage, bool) {
	s.procMu.Lock()
	cmd := s.cmd
	s.procMu.Unlock()

	if cmd == nil || cmd.Process == nil || s.State() == StateIdle {
		return Usage{}, false
	}

	proc, err := process.NewProcess(int32(cmd.Process.Pid))
	if err != nil {
		return Usage{}, false
	}

	cpuPct, err := proc.CPUPercent()
	if err != nil {
		return Usage{}, false
	}
	memInfo, err := proc.MemoryInfo()
	if err != nil || memInfo == nil {
		return Usage{}, false
	}

	return Usage{CPUPercent: cpuPct, MemoryRSSBytes: memInfo.RSS}, true
}

// Usage always reports unavailable for Docker-backed sheep; resource
// sampling for containers would go through the Docker stats API, not
// gopsutil, and is not wired up.
func (s *DockerSheep) Usage() (Usage, bool) {
	return Usage{}, false
}
