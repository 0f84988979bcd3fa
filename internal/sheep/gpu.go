package sheep

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var nvidiaDeviceRe = regexp.MustCompile(`^/dev/nvidia(\d+)$`)

// ExtractGPUNumber returns the integer N from a "/dev/nvidiaN" device path,
// and false for anything else — including the non-GPU control device
// "/dev/nvidiactl" (spec.md §4.2, §8 boundary behaviors).
func ExtractGPUNumber(devicePath string) (string, bool) {
	m := nvidiaDeviceRe.FindStringSubmatch(devicePath)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// CountGPUs determines how many GPUs are available to the dispatcher
// process, following the precedence in spec.md §4.2:
//  1. CUDA_VISIBLE_DEVICES if set (comma-separated tokens; "" means 0)
//  2. else NVIDIA_VISIBLE_DEVICES if set and not "all"
//  3. else a /dev scan for nvidia<digits> entries
func CountGPUs() int {
	if v, ok := os.LookupEnv("CUDA_VISIBLE_DEVICES"); ok {
		return countTokens(v)
	}
	if v, ok := os.LookupEnv("NVIDIA_VISIBLE_DEVICES"); ok && v != "all" {
		return countTokens(v)
	}
	return scanDevDir("/dev")
}

func countTokens(v string) int {
	if v == "" {
		return 0
	}
	return len(strings.Split(v, ","))
}

func scanDevDir(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	count := 0
	for _, e := range entries {
		if _, ok := ExtractGPUNumber(filepath.Join(dir, e.Name())); ok {
			count++
		}
	}
	return count
}
