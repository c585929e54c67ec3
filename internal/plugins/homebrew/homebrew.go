// Package homebrew detects formulae and casks installed with Homebrew on
// macOS.
package homebrew

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/HerbHall/hsnap/pkg/plugin"
	"github.com/HerbHall/hsnap/pkg/probe"
	"github.com/HerbHall/hsnap/pkg/purl"
	"github.com/hashicorp/go-multierror"
)

const Name = "homebrew"

var _ plugin.Plugin = (*Plugin)(nil)

type Plugin struct{}

func New() *Plugin { return &Plugin{} }

func (*Plugin) Name() string              { return Name }
func (*Plugin) SupportedOS() plugin.OSSet { return plugin.Only(plugin.Darwin) }
func (*Plugin) Description() string       { return "Homebrew formulae and casks (brew list --versions)" }

func (*Plugin) Probes() []probe.Spec {
	return []probe.Spec{
		probe.CommandRun{Executable: "brew", Args: []string{"list", "--formula", "--versions"}, Timeout: 30 * time.Second},
		probe.CommandRun{Executable: "brew", Args: []string{"list", "--cask", "--versions"}, Timeout: 30 * time.Second},
	}
}

// Extract emits one package per installed version; brew keeps several
// versions of a formula side by side until cleanup.
func (*Plugin) Extract(results []probe.Result) ([]purl.PackageURL, error) {
	var (
		pkgs []purl.PackageURL
		errs *multierror.Error
	)
	for i, kind := range []string{"formula", "cask"} {
		if i >= len(results) || !results[i].OK() {
			continue
		}
		got, err := parseList(results[i].Output(), kind)
		pkgs = append(pkgs, got...)
		if err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return pkgs, errs.ErrorOrNil()
}

func parseList(out []byte, kind string) ([]purl.PackageURL, error) {
	var (
		pkgs []purl.PackageURL
		errs *multierror.Error
	)
	quals := map[string]string{}
	if kind == "cask" {
		quals["kind"] = "cask"
	}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 2 {
			errs = multierror.Append(errs, fmt.Errorf("%s line %d: no version for %q", kind, lineNo, fields[0]))
			continue
		}
		for _, v := range fields[1:] {
			p, err := purl.New("brew", "", fields[0], v, quals, "")
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("%s line %d: %w", kind, lineNo, err))
				continue
			}
			pkgs = append(pkgs, p)
		}
	}
	return pkgs, errs.ErrorOrNil()
}
