// Package plugin provides the public SDK types for hsnap detection plugins.
// Every built-in packaging ecosystem (RPM, dpkg, APK, Homebrew, the Windows
// Uninstall registry) implements these interfaces.
//
// A plugin is a stateless detection strategy: it declares the probes it needs
// and turns their results into package URLs. It never touches the host
// itself; the engine runs the probes on its behalf.
package plugin

import (
	"github.com/HerbHall/hsnap/pkg/probe"
	"github.com/HerbHall/hsnap/pkg/purl"
)

// Plugin defines the interface that all detection plugins implement.
type Plugin interface {
	// Name returns the unique identifier, e.g. "rhel-rpm".
	Name() string

	// SupportedOS returns the operating systems the plugin applies to.
	SupportedOS() OSSet

	// Probes returns the ordered probes that must run before Extract.
	// The result must be identical on every call.
	Probes() []probe.Spec

	// Extract converts probe results into package URLs. results[i] is the
	// outcome of Probes()[i]. A non-nil error is recorded against the plugin
	// but any returned packages are still kept.
	Extract(results []probe.Result) ([]purl.PackageURL, error)
}

// Describer is implemented by plugins that carry a human-readable summary
// for probe-surface listings.
type Describer interface {
	Description() string
}

// Describe returns the plugin's description, or "" if it has none.
func Describe(p Plugin) string {
	if d, ok := p.(Describer); ok {
		return d.Description()
	}
	return ""
}
