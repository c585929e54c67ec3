package profiler

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/HerbHall/hsnap/pkg/models"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/procfs"
)

// Hardware reads CPUs from /proc/cpuinfo and /proc/stat, memory from
// /proc/meminfo and sensors from /sys/class/thermal.
func (p *Profiler) Hardware(ctx context.Context) (models.Hardware, error) {
	var (
		hw   models.Hardware
		errs *multierror.Error
	)
	fs, err := procfs.NewFS(p.path("/proc"))
	if err != nil {
		return hw, fmt.Errorf("open procfs: %w", err)
	}

	if data, err := os.ReadFile(p.path("/proc/cpuinfo")); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("cpuinfo: %w", err))
	} else {
		hw.CPUs = parseCPUInfo(data)
		if err := p.sampleUsage(ctx, fs, hw.CPUs); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("cpu usage: %w", err))
		}
	}

	if mi, err := fs.Meminfo(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("meminfo: %w", err))
	} else {
		avail := kb(mi.MemAvailable)
		if mi.MemAvailable == nil {
			// Kernels before 3.14 have no MemAvailable.
			avail = kb(mi.MemFree) + kb(mi.Buffers) + kb(mi.Cached)
		}
		mem, err := memoryFromKB(kb(mi.MemTotal), avail, kb(mi.SwapTotal), kb(mi.SwapFree))
		if err != nil {
			errs = multierror.Append(errs, err)
		}
		hw.Memory = mem
	}

	comps, err := p.readThermal()
	if err != nil {
		errs = multierror.Append(errs, fmt.Errorf("thermal: %w", err))
	}
	hw.Components = comps

	return hw, errs.ErrorOrNil()
}

// sampleUsage reads /proc/stat twice and fills in Usage for each CPU.
func (p *Profiler) sampleUsage(ctx context.Context, fs procfs.FS, cpus []models.CPU) error {
	if p.sampleInterval <= 0 || len(cpus) == 0 {
		return nil
	}
	s1, err := fs.Stat()
	if err != nil {
		return fmt.Errorf("first stat read: %w", err)
	}

	t := time.NewTimer(p.sampleInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}

	s2, err := fs.Stat()
	if err != nil {
		return fmt.Errorf("second stat read: %w", err)
	}

	usage := cpuUsage(statTimes(s1), statTimes(s2))
	for i := range cpus {
		id, err := strconv.ParseInt(strings.TrimPrefix(cpus[i].Name, "cpu"), 10, 64)
		if err != nil {
			continue
		}
		cpus[i].Usage = usage[id]
	}
	return nil
}

func statTimes(s procfs.Stat) map[int64]cpuTimes {
	out := make(map[int64]cpuTimes, len(s.CPU))
	for id, c := range s.CPU {
		idle := c.Idle + c.Iowait
		total := c.User + c.Nice + c.System + idle + c.IRQ + c.SoftIRQ + c.Steal
		out[id] = cpuTimes{busy: total - idle, total: total}
	}
	return out
}

func kb(v *uint64) uint64 {
	if v == nil {
		return 0
	}
	return *v
}
