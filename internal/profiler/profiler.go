// Package profiler collects the sections of a snapshot that sit beside the
// software inventory: hardware, operating system, network, storage and local
// users.
//
// Every method returns whatever it could gather together with an error
// describing what it could not. Callers record the error and keep the
// partial section.
package profiler

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// ErrUnsupported is returned for sections that have no collector on the
// running platform.
var ErrUnsupported = errors.New("not supported on this platform")

// DefaultCPUSampleInterval is the gap between the two /proc/stat reads used
// to compute per-CPU usage.
const DefaultCPUSampleInterval = 200 * time.Millisecond

// Profiler reads host state. The zero value is not usable; call New.
type Profiler struct {
	logger         *zap.Logger
	root           string
	sampleInterval time.Duration

	hostname   func() (string, error)
	statfs     func(path string) (total, avail uint64, err error)
	interfaces func() ([]iface, error)
}

// Option configures a Profiler.
type Option func(*Profiler)

// WithRoot prefixes every absolute path read from the filesystem. Used by
// tests to point the profiler at a fixture tree.
func WithRoot(root string) Option {
	return func(p *Profiler) { p.root = root }
}

// WithCPUSampleInterval sets the usage sampling gap. Zero disables sampling
// and reports zero usage.
func WithCPUSampleInterval(d time.Duration) Option {
	return func(p *Profiler) { p.sampleInterval = d }
}

// New creates a profiler for the running host.
func New(logger *zap.Logger, opts ...Option) *Profiler {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Profiler{
		logger:         logger,
		sampleInterval: DefaultCPUSampleInterval,
		hostname:       os.Hostname,
		statfs:         statfs,
		interfaces:     systemInterfaces,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Profiler) path(elem ...string) string {
	return filepath.Join(append([]string{p.root}, elem...)...)
}
