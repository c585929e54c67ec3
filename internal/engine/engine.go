// Package engine runs the applicable detection plugins and merges their
// output into one de-duplicated software inventory.
//
// Plugins run in parallel on a bounded pool; the probes of a single plugin
// run sequentially, in declaration order, because Extract matches results
// to probes by position. A failing or panicking plugin is recorded in its
// report and never affects the others.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/HerbHall/hsnap/pkg/models"
	"github.com/HerbHall/hsnap/pkg/plugin"
	"github.com/HerbHall/hsnap/pkg/probe"
	"github.com/HerbHall/hsnap/pkg/purl"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers bounds how many plugins run at once.
const DefaultWorkers = 4

// Runner executes one probe. *executor.Executor satisfies it.
type Runner interface {
	Run(ctx context.Context, spec probe.Spec) probe.Result
}

// PluginReport summarizes one plugin's run.
type PluginReport = models.PluginReport

// Inventory is the merged result of one engine run. It is not modified after
// Run returns.
type Inventory struct {
	// Packages are de-duplicated by purl.Key, first occurrence in registry
	// order winning.
	Packages []purl.PackageURL
	// Plugins holds one report per plugin, in registry order.
	Plugins []PluginReport
	// Duplicates counts records dropped by de-duplication.
	Duplicates int
}

// Options tunes an Engine.
type Options struct {
	Workers int
	Metrics *Metrics
}

// Engine runs a fixed list of plugins.
type Engine struct {
	plugins []plugin.Plugin
	runner  Runner
	logger  *zap.Logger
	workers int
	metrics *Metrics
}

// New creates an engine for plugins, which should already be filtered to
// the current OS (see registry.Registry.Applicable).
func New(plugins []plugin.Plugin, runner Runner, logger *zap.Logger, opts Options) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	ps := make([]plugin.Plugin, len(plugins))
	copy(ps, plugins)
	return &Engine{
		plugins: ps,
		runner:  runner,
		logger:  logger,
		workers: workers,
		metrics: opts.Metrics,
	}
}

type outcome struct {
	report PluginReport
	pkgs   []purl.PackageURL
}

// Run executes every plugin and merges the results. It always returns an
// Inventory; with no plugins the inventory is empty.
func (e *Engine) Run(ctx context.Context) *Inventory {
	start := time.Now()
	outcomes := make([]outcome, len(e.plugins))

	// Tasks never return errors, so a plain Group is used: one plugin's
	// failure must not cancel the others.
	var g errgroup.Group
	g.SetLimit(e.workers)
	for i, p := range e.plugins {
		g.Go(func() error {
			outcomes[i] = e.runPlugin(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	inv := merge(outcomes)
	e.metrics.observeRun(inv, time.Now())
	e.logger.Info("extraction complete",
		zap.Int("plugins", len(inv.Plugins)),
		zap.Int("packages", len(inv.Packages)),
		zap.Int("duplicates", inv.Duplicates),
		zap.Duration("duration", time.Since(start)),
	)
	return inv
}

func (e *Engine) runPlugin(ctx context.Context, p plugin.Plugin) outcome {
	start := time.Now()
	name := p.Name()
	logger := e.logger.With(zap.String("plugin", name))
	rep := PluginReport{Plugin: name}

	specs, err := declaredProbes(p)
	if err != nil {
		rep.ExtractionError = err.Error()
		logger.Warn("plugin failed to declare probes", zap.Error(err))
		e.metrics.observeExtractionError(name, "probes")
		return e.finish(outcome{report: rep}, start)
	}

	results := make([]probe.Result, len(specs))
	for i, spec := range specs {
		results[i] = e.runProbe(ctx, spec)
		rep.ProbesAttempted++
		reason := results[i].Reason()
		e.metrics.observeProbe(name, spec, reason)
		if reason == probe.ReasonNone {
			continue
		}
		rep.ProbesFailed++
		f := models.ProbeFailure{Probe: spec.String(), Reason: reason.String()}
		if results[i].Err != nil && results[i].Err.Err != nil {
			f.Message = results[i].Err.Err.Error()
		}
		rep.Failures = append(rep.Failures, f)
	}

	pkgs, err := extract(p, results)
	if err != nil {
		rep.ExtractionError = err.Error()
		logger.Warn("extraction failed", zap.Error(err), zap.Int("partial_packages", len(pkgs)))
		e.metrics.observeExtractionError(name, "extract")
	}

	valid := make([]purl.PackageURL, 0, len(pkgs))
	for _, pk := range pkgs {
		if err := pk.Validate(); err != nil {
			rep.RecordErrors = append(rep.RecordErrors, err.Error())
			e.metrics.observeExtractionError(name, "record")
			continue
		}
		valid = append(valid, pk)
	}
	if len(rep.RecordErrors) > 0 {
		logger.Warn("dropped invalid package records", zap.Int("count", len(rep.RecordErrors)))
	}
	rep.Packages = len(valid)

	if rep.ProbesAttempted > 0 && rep.ProbesFailed == rep.ProbesAttempted {
		logger.Debug("all probes failed; plugin contributes nothing")
	}
	return e.finish(outcome{report: rep, pkgs: valid}, start)
}

func (e *Engine) finish(o outcome, start time.Time) outcome {
	d := time.Since(start)
	o.report.DurationMS = d.Milliseconds()
	e.metrics.observePlugin(o.report.Plugin, d, len(o.pkgs))
	e.logger.Debug("plugin finished",
		zap.String("plugin", o.report.Plugin),
		zap.Int("packages", len(o.pkgs)),
		zap.Int("probes_failed", o.report.ProbesFailed),
		zap.Duration("duration", d),
	)
	return o
}

// runProbe skips the runner once the caller's context is done, so an
// overall deadline ends the run promptly.
func (e *Engine) runProbe(ctx context.Context, spec probe.Spec) probe.Result {
	if err := ctx.Err(); err != nil {
		reason := probe.ExecutionError
		if errors.Is(err, context.DeadlineExceeded) {
			reason = probe.Timeout
		}
		return probe.Failed(spec, reason, fmt.Errorf("run cancelled: %w", err))
	}
	res := e.runner.Run(ctx, spec)
	if res.Spec == nil {
		res.Spec = spec
	}
	return res
}

// ErrPanic is wrapped by errors recovered from panicking plugin code.
var ErrPanic = errors.New("plugin panicked")

func declaredProbes(p plugin.Plugin) (specs []probe.Spec, err error) {
	defer func() {
		if r := recover(); r != nil {
			specs, err = nil, fmt.Errorf("%w in Probes: %v", ErrPanic, r)
		}
	}()
	specs = p.Probes()
	for i, s := range specs {
		if s == nil {
			return nil, fmt.Errorf("probe %d is nil", i)
		}
		if s.Destructive() {
			return nil, fmt.Errorf("probe %d (%s) is destructive", i, s)
		}
	}
	return specs, nil
}

func extract(p plugin.Plugin, results []probe.Result) (pkgs []purl.PackageURL, err error) {
	defer func() {
		if r := recover(); r != nil {
			pkgs, err = nil, fmt.Errorf("%w in Extract: %v", ErrPanic, r)
		}
	}()
	return p.Extract(results)
}
