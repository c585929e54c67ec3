// Package probe defines the declarative, read-only host inspections that
// plugins request. A Spec is inert data: it names a file, a registry key, or
// a command, and never carries executable code. Keeping probes as data lets
// the executor apply one timeout and error policy to every plugin and lets
// plugins be audited for exactly which host surface they touch.
package probe

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies the variant of a Spec.
type Kind int

const (
	KindFile Kind = iota + 1
	KindRegistry
	KindCommand
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindRegistry:
		return "registry"
	case KindCommand:
		return "command"
	default:
		return "unknown"
	}
}

// Spec is a single probe request. The interface is sealed: only the variants
// in this package exist, and none of them mutates the host.
type Spec interface {
	Kind() Kind
	// Destructive reports whether running the spec could change host state.
	// Executors refuse destructive specs; every variant here returns false.
	Destructive() bool
	// String returns a stable, human-readable description for audit output.
	String() string

	sealed()
}

// FileRead reads one file, or every file matching a glob pattern.
type FileRead struct {
	Pattern string
}

func (FileRead) Kind() Kind        { return KindFile }
func (FileRead) Destructive() bool { return false }
func (f FileRead) String() string  { return "file:" + f.Pattern }
func (FileRead) sealed()           {}

// IsGlob reports whether Pattern contains glob metacharacters.
func (f FileRead) IsGlob() bool { return strings.ContainsAny(f.Pattern, "*?[") }

// Hive is a Windows registry root key.
type Hive string

const (
	HiveLocalMachine Hive = "HKLM"
	HiveCurrentUser  Hive = "HKCU"
	HiveUsers        Hive = "HKU"
	HiveClassesRoot  Hive = "HKCR"
)

// RegistryRead reads named values from a registry key. With Subkeys set, the
// values are read from every immediate subkey instead of the key itself
// (the layout of the Uninstall keys).
type RegistryRead struct {
	Hive       Hive
	Key        string
	ValueNames []string
	Subkeys    bool
}

func (RegistryRead) Kind() Kind        { return KindRegistry }
func (RegistryRead) Destructive() bool { return false }
func (RegistryRead) sealed()           {}

func (r RegistryRead) String() string {
	s := fmt.Sprintf("registry:%s\\%s", r.Hive, r.Key)
	if r.Subkeys {
		s += `\*`
	}
	if len(r.ValueNames) > 0 {
		s += " [" + strings.Join(r.ValueNames, ",") + "]"
	}
	return s
}

// CommandRun executes a program directly, without a shell. A zero Timeout
// means the executor default applies.
type CommandRun struct {
	Executable string
	Args       []string
	Timeout    time.Duration
}

func (CommandRun) Kind() Kind        { return KindCommand }
func (CommandRun) Destructive() bool { return false }
func (CommandRun) sealed()           {}

func (c CommandRun) String() string {
	if len(c.Args) == 0 {
		return "command:" + c.Executable
	}
	return "command:" + c.Executable + " " + strings.Join(c.Args, " ")
}
