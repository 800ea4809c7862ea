// Package diagnostics carries the ambient disk/host checks the worker and
// the download-info store consume: pre-flight free-space checks feeding
// the insufficient-space reason, file pre-allocation, lifetime/daily
// statistics, and save-path organization by category. Grounded on the
// teacher's internal/filesystem/allocator.go, internal/analytics/stats.go,
// and internal/filesystem organizer.
package diagnostics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"
)

// Allocator reserves disk space and pre-allocates target files.
type Allocator struct {
	// SafetyBufferBytes is left free beyond the requested size; matches
	// the teacher's 100MB buffer.
	SafetyBufferBytes int64
}

func NewAllocator() *Allocator {
	return &Allocator{SafetyBufferBytes: 100 * 1024 * 1024}
}

// ErrInsufficientSpace maps directly to the insufficient-space reason.
var ErrInsufficientSpace = fmt.Errorf("diagnostics: insufficient disk space")

// CheckDiskSpace reports ErrInsufficientSpace if dir's free space can't
// cover required bytes plus the safety buffer.
func (a *Allocator) CheckDiskSpace(dir string, required int64) error {
	usage, err := disk.Usage(dir)
	if err != nil {
		return fmt.Errorf("diagnostics: check disk space: %w", err)
	}
	if int64(usage.Free) < required+a.SafetyBufferBytes {
		return fmt.Errorf("%w: required %d bytes, available %d bytes", ErrInsufficientSpace, required, usage.Free)
	}
	return nil
}

// AllocateFile checks disk space and truncates path to size, reserving
// blocks up front so a worker doesn't fail late mid-transfer.
func (a *Allocator) AllocateFile(path string, size int64) error {
	if err := a.CheckDiskSpace(filepath.Dir(path), size); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return fmt.Errorf("diagnostics: open file for allocation: %w", err)
	}
	defer f.Close()

	if err := f.Truncate(size); err != nil {
		return fmt.Errorf("diagnostics: pre-allocate space: %w", err)
	}
	return nil
}
