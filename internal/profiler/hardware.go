package profiler

import (
	"bufio"
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/HerbHall/hsnap/pkg/models"
)

// parseCPUInfo parses /proc/cpuinfo into one CPU per "processor" stanza.
// Architectures that omit vendor or model fields leave them empty.
func parseCPUInfo(data []byte) []models.CPU {
	var (
		cpus []models.CPU
		cur  *models.CPU
	)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		key, val, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		switch key {
		case "processor":
			cpus = append(cpus, models.CPU{Name: "cpu" + val})
			cur = &cpus[len(cpus)-1]
		case "vendor_id", "CPU implementer":
			if cur != nil && cur.VendorID == "" {
				cur.VendorID = val
			}
		case "model name", "Processor", "cpu model":
			if cur != nil {
				cur.Brand = val
			}
		case "cpu MHz":
			if cur == nil {
				continue
			}
			if f, err := strconv.ParseFloat(val, 64); err == nil && f > 0 {
				cur.FrequencyMHz = uint64(math.Round(f))
			}
		}
	}
	return cpus
}

// cpuTimes are cumulative busy and total seconds for one CPU.
type cpuTimes struct {
	busy, total float64
}

// cpuUsage returns the busy percentage of each CPU between two samples,
// keyed by CPU index. CPUs missing from either sample are omitted.
func cpuUsage(before, after map[int64]cpuTimes) map[int64]float32 {
	out := make(map[int64]float32, len(after))
	for id, a := range after {
		b, ok := before[id]
		if !ok {
			continue
		}
		dt := a.total - b.total
		if dt <= 0 {
			out[id] = 0
			continue
		}
		pct := (a.busy - b.busy) / dt * 100
		out[id] = float32(math.Max(0, math.Min(100, pct)))
	}
	return out
}

// readThermal reads every /sys/class/thermal zone. Zones whose temperature
// cannot be read are reported with a nil temperature.
func (p *Profiler) readThermal() ([]models.Component, error) {
	zones, err := filepath.Glob(p.path("/sys/class/thermal/thermal_zone*"))
	if err != nil {
		return nil, err
	}
	sort.Strings(zones)
	comps := make([]models.Component, 0, len(zones))
	for _, z := range zones {
		label := filepath.Base(z)
		if b, err := os.ReadFile(filepath.Join(z, "type")); err == nil {
			if s := strings.TrimSpace(string(b)); s != "" {
				label = s
			}
		}
		c := models.Component{Label: label}
		if b, err := os.ReadFile(filepath.Join(z, "temp")); err == nil {
			if milli, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64); err == nil {
				t := float32(milli) / 1000
				c.Temperature = &t
			}
		}
		comps = append(comps, c)
	}
	return comps, nil
}

func memoryFromKB(total, available, swapTotal, swapFree uint64) (models.Memory, error) {
	if total == 0 {
		return models.Memory{}, fmt.Errorf("MemTotal not found in meminfo")
	}
	m := models.Memory{
		TotalMemory: total * 1024,
		TotalSwap:   swapTotal * 1024,
	}
	if available <= total {
		m.UsedMemory = (total - available) * 1024
	}
	if swapFree <= swapTotal {
		m.UsedSwap = (swapTotal - swapFree) * 1024
	}
	return m, nil
}
