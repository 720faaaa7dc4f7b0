package preflight

import (
	"fmt"
	"syscall"
)

// MinFileDescriptors covers the worker pool's connections plus the
// database, log file and watcher handles.
const MinFileDescriptors = 256

// CheckFileDescriptors warns when the soft open-file limit is low. Runs
// still work, with fewer parallel fetches succeeding.
func (c *Checker) CheckFileDescriptors() CheckResult {
	result := CheckResult{Name: "file_descriptors"}

	var lim syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &lim); err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("getrlimit: %v", err)
		return result
	}

	result.Message = fmt.Sprintf("soft limit %d, want %d", lim.Cur, MinFileDescriptors)
	if lim.Cur < MinFileDescriptors {
		result.Status = StatusWarn
		result.Details = fmt.Sprintf("raise it with 'ulimit -n %d'", 4*MinFileDescriptors)
	}
	return result
}
