// Package rhel detects packages installed through RPM on Red Hat style
// distributions (RHEL, Fedora, CentOS, Amazon Linux, SUSE).
package rhel

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/HerbHall/hsnap/internal/hostinfo"
	"github.com/HerbHall/hsnap/pkg/plugin"
	"github.com/HerbHall/hsnap/pkg/probe"
	"github.com/HerbHall/hsnap/pkg/purl"
	"github.com/hashicorp/go-multierror"
)

// Name is the plugin identifier.
const Name = "rhel-rpm"

// ErrMalformedNVRA reports an rpm -qa line that is not name-version-release[.arch].
var ErrMalformedNVRA = errors.New("malformed rpm package line")

// Compile-time interface guard.
var _ plugin.Plugin = (*Plugin)(nil)

// Plugin extracts RPM packages.
type Plugin struct{}

// New returns the RPM plugin.
func New() *Plugin { return &Plugin{} }

func (*Plugin) Name() string              { return Name }
func (*Plugin) SupportedOS() plugin.OSSet { return plugin.Only(plugin.Linux) }
func (*Plugin) Description() string {
	return "RPM database (rpm -qa) with the distro namespace from os-release"
}

// Probes: the package list, then os-release for the vendor namespace.
func (*Plugin) Probes() []probe.Spec {
	return []probe.Spec{
		probe.CommandRun{Executable: "rpm", Args: []string{"-qa"}, Timeout: 30 * time.Second},
		probe.FileRead{Pattern: hostinfo.OSReleasePath},
	}
}

// Extract parses rpm -qa output. Malformed lines are skipped and reported in
// the returned error; the remaining packages are still returned.
func (*Plugin) Extract(results []probe.Result) ([]purl.PackageURL, error) {
	if len(results) == 0 || !results[0].OK() {
		return nil, nil
	}

	var release hostinfo.OSRelease
	if len(results) > 1 && results[1].OK() {
		release = hostinfo.ParseOSRelease(results[1].Output())
	}
	hostNamespace := namespaceForRelease(release)

	var (
		pkgs []purl.PackageURL
		errs *multierror.Error
	)
	scanner := bufio.NewScanner(bytes.NewReader(results[0].Output()))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		n, err := ParseNVRA(line)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("line %d: %w", lineNo, err))
			continue
		}
		// Imported GPG keys show up as packages but are not software.
		if n.Name == "gpg-pubkey" {
			continue
		}

		ns := hostNamespace
		if ns == "" {
			ns = namespaceForDistTag(n.Release)
		}
		p, err := purl.New("rpm", ns, n.Name, n.Version+"-"+n.Release, map[string]string{"arch": n.Arch}, "")
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("line %d: %w", lineNo, err))
			continue
		}
		pkgs = append(pkgs, p)
	}
	if err := scanner.Err(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("reading rpm output: %w", err))
	}
	return pkgs, errs.ErrorOrNil()
}

// NVRA is a parsed RPM package label.
type NVRA struct {
	Name    string
	Version string
	Release string
	Arch    string
}

// knownArches lists architecture suffixes rpm appends to package labels,
// following the arch_canon table of rpmrc.
var knownArches = map[string]bool{
	"noarch": true, "src": true, "nosrc": true,
	"x86_64": true, "amd64": true, "ia32e": true, "em64t": true,
	"i386": true, "i486": true, "i586": true, "i686": true, "athlon": true,
	"geode": true, "pentium3": true, "pentium4": true, "ia64": true,
	"aarch64": true, "armv3l": true, "armv4b": true, "armv4l": true,
	"armv5tel": true, "armv5tejl": true, "armv6l": true, "armv6hl": true,
	"armv7l": true, "armv7hl": true, "armv7hnl": true, "armv8l": true, "armv8hl": true,
	"ppc": true, "ppc64": true, "ppc64le": true, "ppc64p7": true, "ppc64iseries": true, "ppc64pseries": true,
	"s390": true, "s390x": true, "riscv64": true, "loongarch64": true,
	"mips": true, "mipsel": true, "mips64": true, "mips64el": true,
	"mipsr6": true, "mipsr6el": true, "mips64r6": true, "mips64r6el": true,
	"sparc": true, "sparcv8": true, "sparcv9": true, "sparcv9v": true, "sparc64": true, "sparc64v": true,
	"alpha": true, "alphaev5": true, "alphaev56": true, "alphaev6": true, "alphaev67": true,
	"alphapca56": true, "alphaev6e": true,
	"sh3": true, "sh4": true, "sh4a": true, "m68k": true, "m68kmint": true, "e2k": true,
}

// ParseNVRA splits "name-version-release.arch" from the right. The name may
// contain dashes; version and release may not. The arch suffix is optional
// and only recognized for known architectures.
func ParseNVRA(s string) (NVRA, error) {
	var n NVRA
	rest := s
	if i := strings.LastIndexByte(rest, '.'); i > 0 && knownArches[rest[i+1:]] {
		n.Arch = rest[i+1:]
		rest = rest[:i]
	}

	i := strings.LastIndexByte(rest, '-')
	if i <= 0 || i == len(rest)-1 {
		return NVRA{}, fmt.Errorf("%w: %q", ErrMalformedNVRA, s)
	}
	n.Release = rest[i+1:]
	rest = rest[:i]

	i = strings.LastIndexByte(rest, '-')
	if i <= 0 || i == len(rest)-1 {
		return NVRA{}, fmt.Errorf("%w: %q", ErrMalformedNVRA, s)
	}
	n.Version = rest[i+1:]
	n.Name = rest[:i]
	return n, nil
}

// releaseNamespaces maps os-release IDs to purl vendor namespaces.
var releaseNamespaces = map[string]string{
	"rhel":                "redhat",
	"centos":              "centos",
	"fedora":              "fedora",
	"amzn":                "amazon",
	"ol":                  "oracle",
	"rocky":               "rocky",
	"almalinux":           "almalinux",
	"sles":                "suse",
	"sled":                "suse",
	"opensuse":            "opensuse",
	"opensuse-leap":       "opensuse",
	"opensuse-tumbleweed": "opensuse",
}

func namespaceForRelease(rel hostinfo.OSRelease) string {
	id := rel.ID()
	if id == "" {
		return ""
	}
	if ns, ok := releaseNamespaces[id]; ok {
		return ns
	}
	return id
}

// namespaceForDistTag infers the vendor from the dist tag in a release such
// as "1.fc25" or "3.el8_4".
func namespaceForDistTag(release string) string {
	for _, seg := range strings.Split(release, ".") {
		switch {
		case tagged(seg, "fc"):
			return "fedora"
		case tagged(seg, "el"):
			return "redhat"
		case tagged(seg, "amzn"):
			return "amazon"
		case strings.HasPrefix(seg, "suse"), strings.HasPrefix(seg, "sles"):
			return "opensuse"
		}
	}
	return ""
}

// tagged reports whether seg is prefix followed by a digit.
func tagged(seg, prefix string) bool {
	return len(seg) > len(prefix) && strings.HasPrefix(seg, prefix) &&
		seg[len(prefix)] >= '0' && seg[len(prefix)] <= '9'
}
