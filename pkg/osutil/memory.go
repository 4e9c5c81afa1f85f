package osutil

import (
	"os"
	"strconv"
	"strings"

	"github.com/pbnjay/memory"
)

// Locations of the container memory limit for cgroup v2 and v1
var cgroupMemoryLimitFiles = []string{
	"/sys/fs/cgroup/memory.max",
	"/sys/fs/cgroup/memory/memory.limit_in_bytes",
}

// cgroup v1 reports this page aligned max int64 when memory isn't limited
const cgroupV1Unlimited = 9223372036854771712

// GetTotalMemory returns the memory available to the process, which is the
// container limit when one is set.
func GetTotalMemory() uint64 {
	total := memory.TotalMemory()
	for _, path := range cgroupMemoryLimitFiles {
		if limit, ok := readMemoryLimit(path); ok && limit < total {
			return limit
		}
	}
	return total
}

func readMemoryLimit(path string) (uint64, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	return parseMemoryLimit(string(raw))
}

func parseMemoryLimit(raw string) (uint64, bool) {
	value := strings.TrimSpace(raw)
	if value == "max" {
		return 0, false
	}

	limit, err := strconv.ParseUint(value, 10, 64)
	if err != nil || limit == 0 || limit == cgroupV1Unlimited {
		return 0, false
	}
	return limit, true
}
