// Package plugins assembles the compiled-in detection plugins into the
// process-wide registry.
package plugins

import (
	"sync"

	"github.com/HerbHall/hsnap/internal/plugins/alpine"
	"github.com/HerbHall/hsnap/internal/plugins/debian"
	"github.com/HerbHall/hsnap/internal/plugins/homebrew"
	"github.com/HerbHall/hsnap/internal/plugins/rhel"
	"github.com/HerbHall/hsnap/internal/plugins/windows"
	"github.com/HerbHall/hsnap/internal/registry"
	"github.com/HerbHall/hsnap/pkg/plugin"
	"go.uber.org/zap"
)

// Builtin returns fresh instances of every built-in plugin in declaration
// order. When two plugins report the same package, the earlier one wins.
func Builtin() []plugin.Plugin {
	return []plugin.Plugin{
		windows.New(),
		rhel.New(),
		debian.New(),
		alpine.New(),
		homebrew.New(),
	}
}

// NewRegistry builds a fresh registry of the built-in plugins.
func NewRegistry(logger *zap.Logger) (*registry.Registry, error) {
	return registry.New(logger, Builtin()...)
}

// global logs through zap.L(), so callers that want its registration logs
// install their logger with zap.ReplaceGlobals before first use.
var global = sync.OnceValues(func() (*registry.Registry, error) {
	return NewRegistry(zap.L().Named("registry"))
})

// Registry returns the process-wide registry of built-in plugins. It is
// built on first use and never modified afterwards.
func Registry() (*registry.Registry, error) {
	return global()
}
