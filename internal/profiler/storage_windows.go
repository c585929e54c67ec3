package profiler

import (
	"context"
	"fmt"
	"strings"

	"github.com/HerbHall/hsnap/pkg/models"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sys/windows"
)

// Storage lists fixed and removable logical drives.
func (p *Profiler) Storage(context.Context) (models.Storage, error) {
	s := models.Storage{Disks: []models.Disk{}}
	buf := make([]uint16, 254)
	n, err := windows.GetLogicalDriveStrings(uint32(len(buf)), &buf[0])
	if err != nil {
		return s, fmt.Errorf("list drives: %w", err)
	}
	var errs *multierror.Error
	for _, root := range splitMultiSZ(buf[:n]) {
		rootp, err := windows.UTF16PtrFromString(root)
		if err != nil {
			continue
		}
		dt := windows.GetDriveType(rootp)
		if dt != windows.DRIVE_FIXED && dt != windows.DRIVE_REMOVABLE {
			continue
		}
		total, avail, err := p.statfs(root)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", root, err))
			continue
		}
		fsName := make([]uint16, windows.MAX_PATH+1)
		fs := ""
		if err := windows.GetVolumeInformation(rootp, nil, 0, nil, nil, nil, &fsName[0], uint32(len(fsName))); err == nil {
			fs = windows.UTF16ToString(fsName)
		}
		s.Disks = append(s.Disks, models.Disk{
			Name:           strings.TrimSuffix(root, `\`),
			Kind:           "Unknown",
			FileSystem:     fs,
			MountPoint:     root,
			TotalSpace:     total,
			AvailableSpace: avail,
			IsRemovable:    dt == windows.DRIVE_REMOVABLE,
		})
	}
	return s, errs.ErrorOrNil()
}

func splitMultiSZ(buf []uint16) []string {
	var out []string
	start := 0
	for i, c := range buf {
		if c != 0 {
			continue
		}
		if i > start {
			out = append(out, windows.UTF16ToString(buf[start:i]))
		}
		start = i + 1
	}
	return out
}

func statfs(path string) (total, avail uint64, err error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, 0, err
	}
	var free, tot, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(p, &free, &tot, &totalFree); err != nil {
		return 0, 0, err
	}
	return tot, free, nil
}
