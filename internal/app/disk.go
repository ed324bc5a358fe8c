package app

import "syscall"

// DiskUsage is the filesystem usage of the data root.
type DiskUsage struct {
	TotalBytes     uint64  `json:"total_bytes"`
	UsedBytes      uint64  `json:"used_bytes"`
	AvailableBytes uint64  `json:"available_bytes"`
	UsedPercent    float64 `json:"used_percent"`
}

// diskUsage returns usage for the filesystem holding path, or nil on error.
func diskUsage(path string) *DiskUsage {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return nil
	}
	du := &DiskUsage{
		TotalBytes:     stat.Blocks * uint64(stat.Bsize),
		AvailableBytes: stat.Bavail * uint64(stat.Bsize),
	}
	du.UsedBytes = du.TotalBytes - stat.Bfree*uint64(stat.Bsize)
	if du.TotalBytes > 0 {
		du.UsedPercent = float64(du.UsedBytes) / float64(du.TotalBytes) * 100
	}
	return du
}
