// Package plugintest provides shared contract tests that verify any
// plugin.Plugin implementation behaves correctly. Every plugin's test file
// should call TestPluginContract to ensure conformance.
package plugintest

import (
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/HerbHall/hsnap/pkg/plugin"
	"github.com/HerbHall/hsnap/pkg/probe"
)

// shells must never appear as a CommandRun executable: probes run programs
// directly so that their arguments are auditable.
var shells = map[string]bool{
	"sh": true, "bash": true, "zsh": true, "dash": true, "ksh": true,
	"cmd": true, "cmd.exe": true, "powershell": true, "powershell.exe": true, "pwsh": true,
}

// TestPluginContract runs a suite of behavioral contract tests against
// any plugin.Plugin implementation. Call this from each plugin's _test.go:
//
//	func TestContract(t *testing.T) {
//	    plugintest.TestPluginContract(t, func() plugin.Plugin { return rhel.New() })
//	}
func TestPluginContract(t *testing.T, factory func() plugin.Plugin) {
	t.Helper()

	t.Run("Name_is_not_empty", func(t *testing.T) {
		if factory().Name() == "" {
			t.Error("Name() must not be empty")
		}
	})

	t.Run("SupportedOS_is_not_empty", func(t *testing.T) {
		s := factory().SupportedOS()
		if !s.IsAll() && len(s.List()) == 0 {
			t.Error("SupportedOS() matches no operating system")
		}
	})

	t.Run("Probes_are_declared_and_read_only", func(t *testing.T) {
		specs := factory().Probes()
		if len(specs) == 0 {
			t.Fatal("Probes() must declare at least one probe")
		}
		for i, s := range specs {
			if s == nil {
				t.Fatalf("Probes()[%d] is nil", i)
			}
			if s.Destructive() {
				t.Errorf("Probes()[%d] %s is destructive", i, s)
			}
			if c, ok := s.(probe.CommandRun); ok {
				base := strings.ToLower(filepath.Base(c.Executable))
				if shells[base] {
					t.Errorf("Probes()[%d] runs a shell: %s", i, s)
				}
				if c.Executable == "" {
					t.Errorf("Probes()[%d] has empty executable", i)
				}
			}
		}
	})

	t.Run("Probes_are_deterministic", func(t *testing.T) {
		p := factory()
		if !reflect.DeepEqual(p.Probes(), p.Probes()) {
			t.Error("Probes() must return identical results on every call")
		}
	})

	t.Run("Extract_with_all_probes_failed_yields_nothing", func(t *testing.T) {
		p := factory()
		specs := p.Probes()
		results := make([]probe.Result, len(specs))
		for i, s := range specs {
			results[i] = probe.Failed(s, probe.NotFound, nil)
		}
		pkgs, _ := p.Extract(results)
		if len(pkgs) != 0 {
			t.Errorf("Extract() on failed probes returned %d packages, want 0", len(pkgs))
		}
	})

	t.Run("Extract_tolerates_short_results", func(t *testing.T) {
		p := factory()
		defer func() {
			if r := recover(); r != nil {
				t.Errorf("Extract(nil) panicked: %v", r)
			}
		}()
		pkgs, _ := p.Extract(nil)
		if len(pkgs) != 0 {
			t.Errorf("Extract(nil) returned %d packages, want 0", len(pkgs))
		}
	})

	t.Run("Name_is_idempotent", func(t *testing.T) {
		p := factory()
		a, b := p.Name(), p.Name()
		if a != b {
			t.Error("Name() must return consistent results")
		}
	})
}

// Results pairs canned successes with the plugin's declared probes. outputs[i]
// becomes the stdout (commands) or file content (file reads) of Probes()[i];
// a nil entry becomes a NotFound failure.
func Results(p plugin.Plugin, outputs ...[]byte) []probe.Result {
	specs := p.Probes()
	results := make([]probe.Result, len(specs))
	for i, s := range specs {
		if i >= len(outputs) || outputs[i] == nil {
			results[i] = probe.Failed(s, probe.NotFound, nil)
			continue
		}
		switch v := s.(type) {
		case probe.FileRead:
			results[i] = probe.Result{Spec: s, Files: []probe.File{{Path: v.Pattern, Content: outputs[i]}}}
		default:
			results[i] = probe.Result{Spec: s, Stdout: outputs[i]}
		}
	}
	return results
}
