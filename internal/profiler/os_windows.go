package profiler

import (
	"fmt"

	"github.com/HerbHall/hsnap/pkg/models"
	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"
)

const currentVersionKey = `SOFTWARE\Microsoft\Windows NT\CurrentVersion`

func (p *Profiler) fillOS(out *models.OperatingSystem) error {
	v := windows.RtlGetVersion()
	out.KernelVersion = fmt.Sprintf("%d.%d.%d", v.MajorVersion, v.MinorVersion, v.BuildNumber)
	out.Name = "Windows"
	out.Version = out.KernelVersion

	k, err := registry.OpenKey(registry.LOCAL_MACHINE, currentVersionKey, registry.QUERY_VALUE)
	if err != nil {
		return fmt.Errorf("open %s: %w", currentVersionKey, err)
	}
	defer k.Close()
	if name, _, err := k.GetStringValue("ProductName"); err == nil && name != "" {
		out.Name = name
	}
	if dv, _, err := k.GetStringValue("DisplayVersion"); err == nil && dv != "" {
		out.Version = dv
	}
	return nil
}
