// Package diagnostics captures host state for troubleshooting realtime audio problems.
package diagnostics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/klauspost/cpuid/v2"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/tphakala/playrec/internal/errors"
	"github.com/tphakala/playrec/internal/logger"
)

// GetLogger returns the diagnostics module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("diagnostics")
}

// Snapshot is a point-in-time view of the host. Fields that could not be read are left
// at their zero value and the failures are listed in Errors.
type Snapshot struct {
	Time   time.Time
	Reason string

	Hostname      string
	Platform      string
	KernelVersion string

	CPUBrand      string
	LogicalCores  int
	PhysicalCores int
	CPUFeatures   []string
	CPUPercent    float64

	Load1  float64
	Load5  float64
	Load15 float64

	MemUsedPercent  float64
	MemAvailableMiB uint64
	SwapUsedPercent float64

	ProcessRSSMiB  uint64
	ProcessThreads int32

	GoAllocMiB uint64
	GoSysMiB   uint64
	NumGC      uint32
	Goroutines int
	Errors     []string
}

// Capture collects a snapshot. CPU utilisation is measured since the previous call to
// Capture in this process, so the first call may report zero.
func Capture(ctx context.Context, reason string) Snapshot {
	s := Snapshot{
		Time:          time.Now(),
		Reason:        reason,
		CPUBrand:      cpuid.CPU.BrandName,
		LogicalCores:  cpuid.CPU.LogicalCores,
		PhysicalCores: cpuid.CPU.PhysicalCores,
		CPUFeatures:   realtimeFeatures(),
		Goroutines:    runtime.NumGoroutine(),
	}
	fail := func(what string, err error) {
		s.Errors = append(s.Errors, what+": "+err.Error())
	}

	if info, err := host.InfoWithContext(ctx); err == nil {
		s.Hostname = info.Hostname
		s.Platform = strings.TrimSpace(info.Platform + " " + info.PlatformVersion)
		s.KernelVersion = info.KernelVersion
	} else {
		fail("host", err)
	}

	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		s.CPUPercent = pct[0]
	} else if err != nil {
		fail("cpu", err)
	}

	if avg, err := load.AvgWithContext(ctx); err == nil {
		s.Load1, s.Load5, s.Load15 = avg.Load1, avg.Load5, avg.Load15
	} else {
		fail("load", err)
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		s.MemUsedPercent = vm.UsedPercent
		s.MemAvailableMiB = bToMiB(vm.Available)
	} else {
		fail("memory", err)
	}
	if swap, err := mem.SwapMemoryWithContext(ctx); err == nil {
		s.SwapUsedPercent = swap.UsedPercent
	} else {
		fail("swap", err)
	}

	if proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		if mi, err := proc.MemoryInfoWithContext(ctx); err == nil {
			s.ProcessRSSMiB = bToMiB(mi.RSS)
		}
		if n, err := proc.NumThreadsWithContext(ctx); err == nil {
			s.ProcessThreads = n
		}
	} else {
		fail("process", err)
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	s.GoAllocMiB = bToMiB(ms.Alloc)
	s.GoSysMiB = bToMiB(ms.Sys)
	s.NumGC = ms.NumGC

	return s
}

// realtimeFeatures lists the SIMD extensions relevant to sample conversion.
func realtimeFeatures() []string {
	var out []string
	for _, f := range []struct {
		id   cpuid.FeatureID
		name string
	}{
		{cpuid.SSE2, "sse2"},
		{cpuid.SSE4, "sse4.1"},
		{cpuid.AVX, "avx"},
		{cpuid.AVX2, "avx2"},
		{cpuid.AVX512F, "avx512f"},
		{cpuid.ASIMD, "neon"},
	} {
		if cpuid.CPU.Supports(f.id) {
			out = append(out, f.name)
		}
	}
	return out
}

// Fields returns the snapshot as structured log fields.
func (s *Snapshot) Fields() []logger.Field {
	fields := []logger.Field{
		logger.String("reason", s.Reason),
		logger.String("cpu", s.CPUBrand),
		logger.Int("logical_cores", s.LogicalCores),
		logger.Float64("cpu_percent", s.CPUPercent),
		logger.Float64("load1", s.Load1),
		logger.Float64("mem_used_percent", s.MemUsedPercent),
		logger.Float64("swap_used_percent", s.SwapUsedPercent),
		logger.Uint64("rss_mib", s.ProcessRSSMiB),
		logger.Int("goroutines", s.Goroutines),
		logger.Int("num_gc", int(s.NumGC)),
	}
	if len(s.Errors) > 0 {
		fields = append(fields, logger.String("errors", strings.Join(s.Errors, "; ")))
	}
	return fields
}

// String renders the snapshot as a human readable report.
func (s *Snapshot) String() string {
	var b strings.Builder
	separator := "======== DIAGNOSTICS START ========"
	b.WriteString(separator + "\n")
	fmt.Fprintf(&b, "Time: %s\n", s.Time.Format(time.RFC3339))
	fmt.Fprintf(&b, "Reason: %s\n", s.Reason)
	fmt.Fprintf(&b, "Host: %s (%s, kernel %s)\n", s.Hostname, s.Platform, s.KernelVersion)
	fmt.Fprintf(&b, "CPU: %s, %d logical / %d physical cores, features [%s]\n",
		s.CPUBrand, s.LogicalCores, s.PhysicalCores, strings.Join(s.CPUFeatures, " "))
	fmt.Fprintf(&b, "CPU Utilization: %.2f%%\n", s.CPUPercent)
	fmt.Fprintf(&b, "Load Average: %.2f %.2f %.2f\n", s.Load1, s.Load5, s.Load15)
	fmt.Fprintf(&b, "RAM Usage: %.2f%% (%d MiB available)\n", s.MemUsedPercent, s.MemAvailableMiB)
	fmt.Fprintf(&b, "Swap Usage: %.2f%%\n", s.SwapUsedPercent)
	fmt.Fprintf(&b, "Process: RSS = %d MiB, Threads = %d\n", s.ProcessRSSMiB, s.ProcessThreads)
	fmt.Fprintf(&b, "Go Runtime: Alloc = %d MiB, Sys = %d MiB, NumGC = %d, Goroutines = %d\n",
		s.GoAllocMiB, s.GoSysMiB, s.NumGC, s.Goroutines)
	for _, e := range s.Errors {
		fmt.Fprintf(&b, "Unavailable: %s\n", e)
	}
	b.WriteString(strings.ReplaceAll(separator, "START", "END") + "\n")
	return b.String()
}

// WriteReport writes the snapshot to dir as diagnostics_<timestamp>.txt and returns the
// file path.
func WriteReport(dir string, s *Snapshot) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", reportError(err, dir)
	}
	name := fmt.Sprintf("diagnostics_%s.txt", s.Time.Format("2006-01-02_15-04-05.000"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(s.String()), 0o600); err != nil {
		return "", reportError(err, path)
	}
	return path, nil
}

func reportError(err error, path string) error {
	return errors.New(err).
		Component("diagnostics").
		Category(errors.CategoryFileIO).
		FileContext(path, 0).
		Context("operation", "write_report").
		Build()
}

func bToMiB(b uint64) uint64 {
	return b / 1024 / 1024
}
