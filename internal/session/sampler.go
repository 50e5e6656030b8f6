package session

import (
	"runtime"
	"syscall"
	"time"

	"github.com/aristath/taskdriver/internal/checkpoint"
)

// sampleResources captures a point-in-time resource usage reading for
// inclusion in checkpoints.
func sampleResources() *checkpoint.ResourceSample {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	sample := &checkpoint.ResourceSample{
		Timestamp:      time.Now(),
		HeapAllocBytes: mem.HeapAlloc,
		SysBytes:       mem.Sys,
		Goroutines:     runtime.NumGoroutine(),
	}

	var usage syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &usage); err == nil {
		sample.UserCPUSeconds = rusageSeconds(usage.Utime)
		sample.SystemCPUSeconds = rusageSeconds(usage.Stime)
	}

	return sample
}

func rusageSeconds(tv syscall.Timeval) float64 {
	return float64(tv.Sec) + float64(tv.Usec)/1e6
}
