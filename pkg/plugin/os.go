package plugin

import (
	"runtime"
	"sort"
	"strings"
)

// OS identifies a host operating system family.
type OS string

const (
	Linux   OS = "linux"
	Windows OS = "windows"
	Darwin  OS = "darwin"
	FreeBSD OS = "freebsd"
	Unknown OS = "unknown"
)

// KnownOS lists every concrete OS identifier, in a fixed order.
var KnownOS = []OS{Linux, Windows, Darwin, FreeBSD}

// ParseOS maps a GOOS-style or free-form name to an OS. Unrecognized names
// yield Unknown.
func ParseOS(s string) OS {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "linux":
		return Linux
	case "windows", "win32", "win64":
		return Windows
	case "darwin", "macos", "osx":
		return Darwin
	case "freebsd":
		return FreeBSD
	default:
		return Unknown
	}
}

// CurrentOS returns the OS the binary was compiled for.
func CurrentOS() OS { return ParseOS(runtime.GOOS) }

// OSSet is the set of operating systems a plugin applies to. The zero value
// matches nothing.
type OSSet struct {
	all bool
	set map[OS]struct{}
}

// AllOS matches every operating system, including Unknown.
func AllOS() OSSet { return OSSet{all: true} }

// Only matches exactly the given operating systems.
func Only(oses ...OS) OSSet {
	s := OSSet{set: make(map[OS]struct{}, len(oses))}
	for _, o := range oses {
		s.set[o] = struct{}{}
	}
	return s
}

// Contains reports whether os is in the set.
func (s OSSet) Contains(os OS) bool {
	if s.all {
		return true
	}
	_, ok := s.set[os]
	return ok
}

// IsAll reports whether the set matches every OS.
func (s OSSet) IsAll() bool { return s.all }

// List returns the members in sorted order; nil for AllOS.
func (s OSSet) List() []OS {
	if s.all {
		return nil
	}
	out := make([]OS, 0, len(s.set))
	for o := range s.set {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s OSSet) String() string {
	if s.all {
		return "all"
	}
	names := make([]string, 0, len(s.set))
	for _, o := range s.List() {
		names = append(names, string(o))
	}
	return strings.Join(names, ",")
}
