// Package alpine detects packages recorded in the apk installed database on
// Alpine Linux.
package alpine

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/HerbHall/hsnap/internal/hostinfo"
	"github.com/HerbHall/hsnap/pkg/plugin"
	"github.com/HerbHall/hsnap/pkg/probe"
	"github.com/HerbHall/hsnap/pkg/purl"
	"github.com/hashicorp/go-multierror"
	apkversion "github.com/knqyf263/go-apk-version"
)

const (
	Name = "alpine-apk"

	// InstalledDB is the apk database of installed packages.
	InstalledDB = "/lib/apk/db/installed"
)

var _ plugin.Plugin = (*Plugin)(nil)

// Plugin extracts apk packages. It reads the database file directly, so it
// works without the apk binary (e.g. in minimal images).
type Plugin struct{}

func New() *Plugin { return &Plugin{} }

func (*Plugin) Name() string              { return Name }
func (*Plugin) SupportedOS() plugin.OSSet { return plugin.Only(plugin.Linux) }
func (*Plugin) Description() string       { return "apk installed database" }

func (*Plugin) Probes() []probe.Spec {
	return []probe.Spec{
		probe.FileRead{Pattern: InstalledDB},
		probe.FileRead{Pattern: hostinfo.OSReleasePath},
	}
}

type record struct {
	name, version, arch string
	line                int
}

func (*Plugin) Extract(results []probe.Result) ([]purl.PackageURL, error) {
	if len(results) == 0 || !results[0].OK() {
		return nil, nil
	}

	namespace, distro := "alpine", ""
	if len(results) > 1 && results[1].OK() {
		rel := hostinfo.ParseOSRelease(results[1].Output())
		if id := rel.ID(); id != "" {
			namespace = id
		}
		distro = majorMinor(rel.VersionID())
	}

	var (
		pkgs []purl.PackageURL
		errs *multierror.Error
	)
	for _, rec := range parseInstalled(results[0].Output()) {
		if rec.name == "" {
			errs = multierror.Append(errs, fmt.Errorf("line %d: package record without P: field", rec.line))
			continue
		}
		if rec.version == "" {
			errs = multierror.Append(errs, fmt.Errorf("line %d: package %s has no V: field", rec.line, rec.name))
			continue
		}
		if _, err := apkversion.NewVersion(rec.version); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("line %d: package %s: invalid version %q: %w", rec.line, rec.name, rec.version, err))
			continue
		}
		p, err := purl.New("apk", namespace, rec.name, rec.version, map[string]string{
			"arch":   rec.arch,
			"distro": distro,
		}, "")
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("line %d: %w", rec.line, err))
			continue
		}
		pkgs = append(pkgs, p)
	}
	return pkgs, errs.ErrorOrNil()
}

// parseInstalled splits the database into blank-line separated stanzas of
// single-letter "K:value" fields.
func parseInstalled(data []byte) []record {
	var (
		out     []record
		cur     record
		started bool
	)
	flush := func() {
		if started {
			out = append(out, cur)
		}
		cur, started = record{}, false
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		if !started {
			cur.line = lineNo
			started = true
		}
		if len(line) < 2 || line[1] != ':' {
			continue
		}
		switch line[0] {
		case 'P':
			cur.name = line[2:]
		case 'V':
			cur.version = line[2:]
		case 'A':
			cur.arch = line[2:]
		}
	}
	flush()
	return out
}

func majorMinor(v string) string {
	parts := strings.SplitN(v, ".", 3)
	if len(parts) < 2 {
		return v
	}
	return parts[0] + "." + parts[1]
}
