// Package registry holds the fixed catalogue of compiled-in detection
// plugins and answers which of them apply to a given operating system.
package registry

import (
	"errors"
	"fmt"
	"sort"

	"github.com/HerbHall/hsnap/pkg/plugin"
	"github.com/HerbHall/hsnap/pkg/probe"
	"go.uber.org/zap"
)

var (
	ErrNilPlugin     = errors.New("registry: nil plugin")
	ErrEmptyName     = errors.New("registry: plugin has empty name")
	ErrDuplicateName = errors.New("registry: duplicate plugin name")
)

// Registry is an immutable, ordered set of plugins. It is built once at
// process start and is safe for concurrent reads.
type Registry struct {
	plugins []plugin.Plugin
	byName  map[string]plugin.Plugin
	active  map[plugin.OS][]plugin.Plugin
}

// New validates and registers plugins in declaration order. Declaration
// order is the order Applicable returns and the order the engine merges
// results in.
func New(logger *zap.Logger, plugins ...plugin.Plugin) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		plugins: make([]plugin.Plugin, 0, len(plugins)),
		byName:  make(map[string]plugin.Plugin, len(plugins)),
		active:  make(map[plugin.OS][]plugin.Plugin),
	}

	for i, p := range plugins {
		if p == nil {
			return nil, fmt.Errorf("%w at position %d", ErrNilPlugin, i)
		}
		name := p.Name()
		if name == "" {
			return nil, fmt.Errorf("%w at position %d", ErrEmptyName, i)
		}
		if _, exists := r.byName[name]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, name)
		}
		r.plugins = append(r.plugins, p)
		r.byName[name] = p
		logger.Debug("plugin registered",
			zap.String("name", name),
			zap.Stringer("supported_os", p.SupportedOS()),
			zap.Int("probes", len(p.Probes())),
		)
	}

	for _, os := range plugin.KnownOS {
		r.active[os] = r.filter(os)
	}
	r.active[plugin.Unknown] = r.filter(plugin.Unknown)
	return r, nil
}

// Applicable returns the plugins whose SupportedOS contains os, in
// declaration order. The returned slice is a fresh copy.
func (r *Registry) Applicable(os plugin.OS) []plugin.Plugin {
	ps, ok := r.active[os]
	if !ok {
		ps = r.filter(os)
	}
	out := make([]plugin.Plugin, len(ps))
	copy(out, ps)
	return out
}

func (r *Registry) filter(os plugin.OS) []plugin.Plugin {
	var out []plugin.Plugin
	for _, p := range r.plugins {
		if p.SupportedOS().Contains(os) {
			out = append(out, p)
		}
	}
	return out
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) (plugin.Plugin, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// All returns every registered plugin in declaration order.
func (r *Registry) All() []plugin.Plugin {
	out := make([]plugin.Plugin, len(r.plugins))
	copy(out, r.plugins)
	return out
}

// Len returns the number of registered plugins.
func (r *Registry) Len() int { return len(r.plugins) }

// ProbeSurface describes the host surface one plugin may touch.
type ProbeSurface struct {
	Plugin      string   `json:"plugin" yaml:"plugin"`
	SupportedOS string   `json:"supported_os" yaml:"supported_os"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Probes      []string `json:"probes" yaml:"probes"`
}

// Surface lists every declared probe of every plugin, for auditing.
func (r *Registry) Surface() []ProbeSurface {
	out := make([]ProbeSurface, 0, len(r.plugins))
	for _, p := range r.plugins {
		specs := p.Probes()
		s := ProbeSurface{
			Plugin:      p.Name(),
			SupportedOS: p.SupportedOS().String(),
			Description: plugin.Describe(p),
			Probes:      make([]string, len(specs)),
		}
		for i, spec := range specs {
			s.Probes[i] = spec.String()
		}
		out = append(out, s)
	}
	return out
}

// Commands returns the sorted, distinct executables declared by plugins
// that apply to os. It is the natural command allowlist for the executor.
func (r *Registry) Commands(os plugin.OS) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range r.Applicable(os) {
		for _, spec := range p.Probes() {
			c, ok := spec.(probe.CommandRun)
			if !ok || seen[c.Executable] {
				continue
			}
			seen[c.Executable] = true
			out = append(out, c.Executable)
		}
	}
	sort.Strings(out)
	return out
}
