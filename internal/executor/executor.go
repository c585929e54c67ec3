// Package executor runs declarative probes against the live host.
//
// Run never panics and never returns a Go error: every OS failure is mapped
// to a probe.Result failure with a specific Reason. Commands always run
// under a bounded timeout, so an unresponsive host program cannot block the
// engine.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"runtime"
	"time"

	"github.com/HerbHall/hsnap/pkg/probe"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout    = 10 * time.Second
	DefaultMaxTimeout = 60 * time.Second
	DefaultMaxOutput  = int64(64 << 20)

	// waitDelay bounds how long Run waits for a killed command's pipes to
	// drain before giving up on them.
	waitDelay = time.Second
)

var (
	// ErrNoProcessSupport means the platform cannot spawn processes. It is
	// the only executor construction failure that aborts an invocation.
	ErrNoProcessSupport = errors.New("executor: platform cannot spawn processes")

	ErrNotAllowed     = errors.New("executor: executable not on allowlist")
	ErrOutputTooLarge = errors.New("executor: output exceeds limit")
	ErrUnsupported    = errors.New("executor: probe kind not supported on this platform")
	ErrDestructive    = errors.New("executor: refusing destructive probe")
	ErrIsDirectory    = errors.New("executor: path is a directory")
)

// goos is swapped in tests to exercise platform checks.
var goos = runtime.GOOS

// Executor runs probes. It holds no per-run state and is safe for concurrent
// use by multiple plugin tasks.
type Executor struct {
	logger         *zap.Logger
	defaultTimeout time.Duration
	maxTimeout     time.Duration
	maxOutput      int64
	allowed        map[string]bool
	limiter        *rate.Limiter
	registry       registryReader
}

// registryReader reads registry values; the implementation is per platform.
type registryReader func(ctx context.Context, spec probe.RegistryRead, maxOutput int64) ([]probe.RegistryEntry, error)

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithDefaultTimeout sets the timeout for commands that declare none.
func WithDefaultTimeout(d time.Duration) Option {
	return func(e *Executor) { e.defaultTimeout = d }
}

// WithMaxTimeout caps every command timeout, declared or default.
func WithMaxTimeout(d time.Duration) Option {
	return func(e *Executor) { e.maxTimeout = d }
}

// WithMaxOutput sets the largest payload a single probe may return.
func WithMaxOutput(n int64) Option {
	return func(e *Executor) { e.maxOutput = n }
}

// WithAllowedCommands restricts CommandRun probes to the named executables.
// Without this option any executable may run.
func WithAllowedCommands(names ...string) Option {
	return func(e *Executor) {
		e.allowed = make(map[string]bool, len(names))
		for _, n := range names {
			e.allowed[n] = true
		}
	}
}

// WithSpawnLimit limits how fast commands are started across all plugins.
func WithSpawnLimit(l *rate.Limiter) Option {
	return func(e *Executor) { e.limiter = l }
}

// New creates an Executor. It fails when the platform cannot spawn processes
// or the options are inconsistent.
func New(opts ...Option) (*Executor, error) {
	if goos == "js" || goos == "wasip1" {
		return nil, fmt.Errorf("%w: GOOS=%s", ErrNoProcessSupport, goos)
	}

	e := &Executor{
		logger:         zap.NewNop(),
		defaultTimeout: DefaultTimeout,
		maxTimeout:     DefaultMaxTimeout,
		maxOutput:      DefaultMaxOutput,
		registry:       readRegistry,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.defaultTimeout <= 0 {
		return nil, fmt.Errorf("executor: default timeout must be positive, got %s", e.defaultTimeout)
	}
	if e.maxTimeout < e.defaultTimeout {
		return nil, fmt.Errorf("executor: max timeout %s is below default timeout %s", e.maxTimeout, e.defaultTimeout)
	}
	if e.maxOutput <= 0 {
		return nil, fmt.Errorf("executor: max output must be positive, got %d", e.maxOutput)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e, nil
}

// Run executes spec and returns its result.
func (e *Executor) Run(ctx context.Context, spec probe.Spec) (res probe.Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = probe.Failed(spec, probe.ExecutionError, fmt.Errorf("probe panicked: %v", r))
		}
		res.Spec = spec
		res.Duration = time.Since(start)
		if res.Err != nil {
			e.logger.Debug("probe failed",
				zap.Stringer("probe", stringer{spec}),
				zap.String("reason", res.Reason().String()),
				zap.Error(res.Err),
				zap.Duration("duration", res.Duration),
			)
		} else {
			e.logger.Debug("probe succeeded",
				zap.Stringer("probe", stringer{spec}),
				zap.Duration("duration", res.Duration),
			)
		}
	}()

	if spec == nil {
		return probe.Failed(nil, probe.ExecutionError, errors.New("executor: nil probe"))
	}
	if spec.Destructive() {
		return probe.Failed(spec, probe.PermissionDenied, ErrDestructive)
	}

	switch s := spec.(type) {
	case probe.FileRead:
		return e.readFiles(s)
	case probe.RegistryRead:
		entries, err := e.registry(ctx, s, e.maxOutput)
		if err != nil {
			return probe.Failed(s, classify(err), err)
		}
		return probe.Result{Spec: s, Entries: entries}
	case probe.CommandRun:
		return e.runCommand(ctx, s)
	default:
		return probe.Failed(spec, probe.ExecutionError, fmt.Errorf("%w: %s", ErrUnsupported, spec.Kind()))
	}
}

// Timeout returns the effective timeout for a command spec.
func (e *Executor) Timeout(s probe.CommandRun) time.Duration {
	d := s.Timeout
	if d <= 0 {
		d = e.defaultTimeout
	}
	if d > e.maxTimeout {
		d = e.maxTimeout
	}
	return d
}

// classify maps an OS error to a failure reason.
func classify(err error) probe.Reason {
	switch {
	case err == nil:
		return probe.ReasonNone
	case errors.Is(err, context.DeadlineExceeded):
		return probe.Timeout
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return probe.NotFound
	case errors.Is(err, fs.ErrPermission), errors.Is(err, ErrNotAllowed):
		return probe.PermissionDenied
	default:
		return probe.ExecutionError
	}
}

// stringer defers Spec.String until a debug log is actually written.
type stringer struct{ s probe.Spec }

func (s stringer) String() string {
	if s.s == nil {
		return "<nil>"
	}
	return s.s.String()
}
