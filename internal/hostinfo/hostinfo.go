// Package hostinfo detects the identity of the running host: OS family,
// architecture, hostname and the distribution fields of /etc/os-release.
package hostinfo

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/HerbHall/hsnap/pkg/plugin"
)

// Host is the result of host detection, gathered once at process start.
type Host struct {
	OS       plugin.OS
	Arch     string
	Hostname string
	Release  OSRelease
}

// Platform returns "os/arch", e.g. "linux/amd64".
func (h Host) Platform() string { return string(h.OS) + "/" + h.Arch }

// Detect inspects the running host. root is prepended to absolute paths and
// is "" (meaning "/") outside tests. Detection never fails: unreadable
// sources leave their fields empty.
func Detect(root string) Host {
	h := Host{
		OS:   plugin.CurrentOS(),
		Arch: runtime.GOARCH,
	}
	if name, err := os.Hostname(); err == nil {
		h.Hostname = name
	}
	if rel, err := ReadOSRelease(root); err == nil {
		h.Release = rel
	}
	return h
}

// OSRelease holds the fields of an os-release(5) file.
type OSRelease map[string]string

// ID returns the lower-case distribution identifier, e.g. "fedora".
func (r OSRelease) ID() string { return strings.ToLower(r["ID"]) }

// IDLike returns the ID_LIKE list.
func (r OSRelease) IDLike() []string { return strings.Fields(strings.ToLower(r["ID_LIKE"])) }

// VersionID returns VERSION_ID, e.g. "12" or "3.19.1".
func (r OSRelease) VersionID() string { return r["VERSION_ID"] }

// Codename returns VERSION_CODENAME, if present.
func (r OSRelease) Codename() string { return r["VERSION_CODENAME"] }

// Name prefers PRETTY_NAME, falling back to NAME.
func (r OSRelease) Name() string {
	if n := r["PRETTY_NAME"]; n != "" {
		return n
	}
	return r["NAME"]
}

// osReleasePaths are tried in order.
var osReleasePaths = []string{"/etc/os-release", "/usr/lib/os-release"}

// OSReleasePath is the primary os-release location probed by plugins.
const OSReleasePath = "/etc/os-release"

// ReadOSRelease reads and parses the first os-release file found under root.
func ReadOSRelease(root string) (OSRelease, error) {
	var lastErr error
	for _, p := range osReleasePaths {
		data, err := os.ReadFile(filepath.Join(root, p))
		if err != nil {
			lastErr = err
			continue
		}
		return ParseOSRelease(data), nil
	}
	return nil, lastErr
}

// ParseOSRelease parses KEY=value lines. Values may be single or double
// quoted; comments and malformed lines are ignored.
func ParseOSRelease(data []byte) OSRelease {
	fields := make(OSRelease)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok || key == "" {
			continue
		}
		val = strings.TrimSpace(val)
		if len(val) >= 2 && (val[0] == '"' || val[0] == '\'') && val[len(val)-1] == val[0] {
			val = val[1 : len(val)-1]
		}
		fields[key] = val
	}
	return fields
}
