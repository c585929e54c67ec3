//go:build !windows

package profiler

import (
	"fmt"
	"runtime"

	"github.com/HerbHall/hsnap/internal/hostinfo"
	"github.com/HerbHall/hsnap/pkg/models"
	"golang.org/x/sys/unix"
)

func (p *Profiler) fillOS(out *models.OperatingSystem) error {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return fmt.Errorf("uname: %w", err)
	}
	out.KernelVersion = unix.ByteSliceToString(u.Release[:])

	rel, err := hostinfo.ReadOSRelease(p.root)
	if err != nil {
		// macOS and older BSDs ship no os-release.
		out.Name = unix.ByteSliceToString(u.Sysname[:])
		if runtime.GOOS == "linux" {
			return fmt.Errorf("os-release: %w", err)
		}
		return nil
	}
	out.Name = rel.Name()
	out.Version = rel.VersionID()
	return nil
}
