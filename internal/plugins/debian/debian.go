// Package debian detects packages installed through dpkg on Debian, Ubuntu
// and their derivatives.
package debian

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
	debversion "github.com/knqyf263/go-deb-version"
)

// Name is the plugin identifier.
const Name = "debian-dpkg"

// DefaultNamespace is used when os-release is unreadable.
const DefaultNamespace = "debian"

// showFormat asks dpkg-query for one tab-separated record per package.
const showFormat = "${Package}\t${Version}\t${Architecture}\t${db:Status-Abbrev}\n"

var ErrMalformedRecord = errors.New("malformed dpkg record")

var _ plugin.Plugin = (*Plugin)(nil)

// Plugin extracts dpkg packages.
type Plugin struct{}

// New returns the dpkg plugin.
func New() *Plugin { return &Plugin{} }

func (*Plugin) Name() string              { return Name }
func (*Plugin) SupportedOS() plugin.OSSet { return plugin.Only(plugin.Linux) }
func (*Plugin) Description() string {
	return "dpkg status database (dpkg-query -W), installed packages only"
}

func (*Plugin) Probes() []probe.Spec {
	return []probe.Spec{
		probe.CommandRun{Executable: "dpkg-query", Args: []string{"-W", "--showformat=" + showFormat}, Timeout: 30 * time.Second},
		probe.FileRead{Pattern: hostinfo.OSReleasePath},
	}
}

// Extract parses dpkg-query records, keeping every package whose current
// state (second letter of db:Status-Abbrev) is installed, whatever the
// selection: "ii", held "hi", or pending removal "ri". Records with invalid Debian versions are skipped and
// reported in the returned error.
func (*Plugin) Extract(results []probe.Result) ([]purl.PackageURL, error) {
	if len(results) == 0 || !results[0].OK() {
		return nil, nil
	}

	namespace, distro := DefaultNamespace, ""
	if len(results) > 1 && results[1].OK() {
		rel := hostinfo.ParseOSRelease(results[1].Output())
		if id := rel.ID(); id != "" {
			namespace = id
		}
		distro = rel.Codename()
	}

	var (
		pkgs []purl.PackageURL
		errs *multierror.Error
	)
	scanner := bufio.NewScanner(bytes.NewReader(results[0].Output()))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 4 || fields[0] == "" {
			errs = multierror.Append(errs, fmt.Errorf("line %d: %w: %q", lineNo, ErrMalformedRecord, line))
			continue
		}
		name, version, arch, status := fields[0], fields[1], fields[2], strings.TrimSpace(fields[3])
		if len(status) < 2 || status[1] != 'i' {
			continue
		}
		if _, err := debversion.NewVersion(version); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("line %d: package %s: invalid version %q: %w", lineNo, name, version, err))
			continue
		}

		p, err := purl.New("deb", namespace, name, version, map[string]string{
			"arch":   arch,
			"distro": distro,
		}, "")
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("line %d: %w", lineNo, err))
			continue
		}
		pkgs = append(pkgs, p)
	}
	if err := scanner.Err(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("reading dpkg output: %w", err))
	}
	return pkgs, errs.ErrorOrNil()
}
