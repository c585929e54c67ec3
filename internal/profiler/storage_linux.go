package profiler

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/HerbHall/hsnap/pkg/models"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// skipFSTypes are pseudo and virtual filesystems that are not storage.
var skipFSTypes = map[string]bool{
	"autofs":      true,
	"binfmt_misc": true,
	"bpf":         true,
	"cgroup":      true,
	"cgroup2":     true,
	"configfs":    true,
	"debugfs":     true,
	"devpts":      true,
	"devtmpfs":    true,
	"efivarfs":    true,
	"fusectl":     true,
	"hugetlbfs":   true,
	"mqueue":      true,
	"nfsd":        true,
	"nsfs":        true,
	"overlay":     true,
	"proc":        true,
	"pstore":      true,
	"ramfs":       true,
	"rpc_pipefs":  true,
	"securityfs":  true,
	"squashfs":    true,
	"sunrpc":      true,
	"sysfs":       true,
	"tmpfs":       true,
	"tracefs":     true,
}

// Storage lists mounted filesystems from /proc/mounts with their size. The
// disk kind and removable flag come from /sys/block.
func (p *Profiler) Storage(context.Context) (models.Storage, error) {
	data, err := os.ReadFile(p.path("/proc/mounts"))
	if err != nil {
		return models.Storage{Disks: []models.Disk{}}, fmt.Errorf("mounts: %w", err)
	}
	return models.Storage{Disks: p.parseMounts(data)}, nil
}

func (p *Profiler) parseMounts(data []byte) []models.Disk {
	seen := make(map[string]bool)
	disks := []models.Disk{}

	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 3 {
			continue
		}
		dev, mount, fsType := unescapeMount(fields[0]), unescapeMount(fields[1]), fields[2]
		if skipFSTypes[fsType] || seen[mount] {
			continue
		}
		seen[mount] = true

		total, avail, err := p.statfs(mount)
		if err != nil {
			p.logger.Debug("statfs failed", zap.String("mount", mount), zap.Error(err))
			continue
		}
		if total == 0 {
			continue
		}
		kind, removable := p.blockInfo(dev)
		disks = append(disks, models.Disk{
			Name:           dev,
			Kind:           kind,
			FileSystem:     fsType,
			MountPoint:     mount,
			TotalSpace:     total,
			AvailableSpace: avail,
			IsRemovable:    removable,
		})
	}
	return disks
}

// blockInfo looks up the parent block device of dev in sysfs.
func (p *Profiler) blockInfo(dev string) (kind string, removable bool) {
	kind = "Unknown"
	if !strings.HasPrefix(dev, "/dev/") {
		return kind, false
	}
	base := parentDevice(filepath.Base(dev))
	if b, err := os.ReadFile(p.path("/sys/block", base, "queue/rotational")); err == nil {
		switch strings.TrimSpace(string(b)) {
		case "0":
			kind = "SSD"
		case "1":
			kind = "HDD"
		}
	}
	if b, err := os.ReadFile(p.path("/sys/block", base, "removable")); err == nil {
		removable = strings.TrimSpace(string(b)) == "1"
	}
	return kind, removable
}

// parentDevice strips the partition suffix: sda1 → sda, nvme0n1p2 → nvme0n1,
// mmcblk0p1 → mmcblk0.
func parentDevice(name string) string {
	if strings.HasPrefix(name, "nvme") || strings.HasPrefix(name, "mmcblk") || strings.HasPrefix(name, "loop") {
		if i := strings.LastIndexByte(name, 'p'); i > 0 && isDigits(name[i+1:]) && isDigits(name[i-1:i]) {
			return name[:i]
		}
		return name
	}
	return strings.TrimRight(name, "0123456789")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// unescapeMount decodes the octal escapes (\040 for space) the kernel uses
// in /proc/mounts.
func unescapeMount(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+4 <= len(s) {
			if v, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(v))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func statfs(path string) (total, avail uint64, err error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, err
	}
	bs := uint64(st.Bsize)
	return st.Blocks * bs, st.Bavail * bs, nil
}
