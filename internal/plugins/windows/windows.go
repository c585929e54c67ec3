// Package windows detects programs listed under the Windows Uninstall
// registry keys (Programs and Features).
package windows

import (
	"fmt"
	"strings"

	"github.com/HerbHall/hsnap/pkg/plugin"
	"github.com/HerbHall/hsnap/pkg/probe"
	"github.com/HerbHall/hsnap/pkg/purl"
	"github.com/hashicorp/go-multierror"
)

const Name = "windows-registry"

const (
	uninstallKey      = `SOFTWARE\Microsoft\Windows\CurrentVersion\Uninstall`
	uninstallKeyWOW64 = `SOFTWARE\WOW6432Node\Microsoft\Windows\CurrentVersion\Uninstall`
)

// valueNames are read from every Uninstall subkey.
var valueNames = []string{"DisplayName", "DisplayVersion", "Publisher", "SystemComponent", "ParentKeyName"}

var _ plugin.Plugin = (*Plugin)(nil)

type Plugin struct{}

func New() *Plugin { return &Plugin{} }

func (*Plugin) Name() string              { return Name }
func (*Plugin) SupportedOS() plugin.OSSet { return plugin.Only(plugin.Windows) }
func (*Plugin) Description() string {
	return "Uninstall registry keys (machine, 32-bit machine, current user)"
}

func (*Plugin) Probes() []probe.Spec {
	return []probe.Spec{
		probe.RegistryRead{Hive: probe.HiveLocalMachine, Key: uninstallKey, ValueNames: valueNames, Subkeys: true},
		probe.RegistryRead{Hive: probe.HiveLocalMachine, Key: uninstallKeyWOW64, ValueNames: valueNames, Subkeys: true},
		probe.RegistryRead{Hive: probe.HiveCurrentUser, Key: uninstallKey, ValueNames: valueNames, Subkeys: true},
	}
}

// Extract turns Uninstall entries into generic package URLs namespaced by
// publisher. Entries without a DisplayName, system components and child
// updates are skipped.
func (*Plugin) Extract(results []probe.Result) ([]purl.PackageURL, error) {
	var (
		pkgs []purl.PackageURL
		errs *multierror.Error
	)
	for i, res := range results {
		if !res.OK() {
			continue
		}
		quals := map[string]string{}
		if i == 1 {
			quals["arch"] = "x86"
		}
		if i == 2 {
			quals["scope"] = "user"
		}
		for _, entry := range res.Entries {
			v := entry.Values
			name := strings.TrimSpace(v["DisplayName"])
			if name == "" || v["SystemComponent"] == "1" || v["ParentKeyName"] != "" {
				continue
			}
			p, err := purl.New("generic",
				strings.TrimSpace(v["Publisher"]),
				name,
				strings.TrimSpace(v["DisplayVersion"]),
				quals, "")
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("%s: %w", entry.Key, err))
				continue
			}
			pkgs = append(pkgs, p)
		}
	}
	return pkgs, errs.ErrorOrNil()
}
