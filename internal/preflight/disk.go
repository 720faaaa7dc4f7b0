package preflight

import (
	"fmt"
	"syscall"

	"github.com/dustin/go-humanize"
)

// MinFreeBytes covers the database, the log rotation set and a few exports.
const MinFreeBytes = 100 << 20

// CheckDiskSpace checks free space on the volume holding the data directory.
func (c *Checker) CheckDiskSpace(path string) CheckResult {
	result := CheckResult{
		Name:     "disk_space",
		Required: true,
		Details:  "the database, logs and exports are written under " + path,
	}

	var fs syscall.Statfs_t
	if err := syscall.Statfs(path, &fs); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("statfs %s: %v", path, err)
		return result
	}

	free := fs.Bavail * uint64(fs.Bsize)
	result.Message = fmt.Sprintf("%s free, need %s", humanize.IBytes(free), humanize.IBytes(MinFreeBytes))
	if free < MinFreeBytes {
		result.Status = StatusFail
	}
	return result
}
