// Package agent wires one hsnap invocation: probe executor, extraction
// engine, profiler, snapshot assembly, encoding and delivery.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/HerbHall/hsnap/internal/config"
	"github.com/HerbHall/hsnap/internal/engine"
	"github.com/HerbHall/hsnap/internal/executor"
	"github.com/HerbHall/hsnap/internal/hostinfo"
	"github.com/HerbHall/hsnap/internal/plugins"
	"github.com/HerbHall/hsnap/internal/profiler"
	"github.com/HerbHall/hsnap/internal/registry"
	"github.com/HerbHall/hsnap/internal/report"
	"github.com/HerbHall/hsnap/internal/snapshot"
	"github.com/HerbHall/hsnap/internal/version"
	"github.com/HerbHall/hsnap/pkg/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DeliveryError reports a snapshot that was collected but could not be
// written or sent.
type DeliveryError struct {
	Err error
}

func (e *DeliveryError) Error() string { return "deliver snapshot: " + e.Err.Error() }
func (e *DeliveryError) Unwrap() error { return e.Err }

// Options holds the collaborators of an Agent. Only Config is required.
type Options struct {
	Config *config.Config
	Logger *zap.Logger
	// Stdout receives the document when no report URL is configured.
	Stdout io.Writer
	// Registry defaults to a fresh registry of the built-in plugins.
	Registry *registry.Registry
	// Host defaults to hostinfo.Detect("").
	Host *hostinfo.Host
	// Source defaults to a profiler for the running host. Set to
	// NoSource to skip the profiler sections.
	Source snapshot.Source
	// Runner replaces the probe executor; used by tests.
	Runner engine.Runner
}

// NoSource disables the hardware, OS, network, storage and users sections.
var NoSource snapshot.Source = noSource{}

// Agent performs a single collection run.
type Agent struct {
	cfg       *config.Config
	logger    *zap.Logger
	host      hostinfo.Host
	engine    *engine.Engine
	metrics   *engine.Metrics
	assembler *snapshot.Assembler
	codec     report.Codec
	signer    *report.Signer
	sink      report.Sink
}

// New builds an agent. Any error is fatal for the invocation: it means the
// probe executor cannot exist on this host or the configuration cannot be
// honoured.
func New(opts Options) (*Agent, error) {
	if opts.Config == nil {
		return nil, errors.New("agent: config is required")
	}
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	reg := opts.Registry
	if reg == nil {
		var err error
		if reg, err = plugins.NewRegistry(logger.Named("registry")); err != nil {
			return nil, fmt.Errorf("build plugin registry: %w", err)
		}
	}
	var host hostinfo.Host
	if opts.Host != nil {
		host = *opts.Host
	} else {
		host = hostinfo.Detect("")
	}
	applicable := reg.Applicable(host.OS)

	runner := opts.Runner
	if runner == nil {
		execOpts := []executor.Option{
			executor.WithLogger(logger.Named("executor")),
			executor.WithDefaultTimeout(cfg.Probes.Timeout),
			executor.WithMaxTimeout(cfg.Probes.MaxTimeout),
			executor.WithMaxOutput(cfg.Probes.MaxOutputBytes),
			executor.WithAllowedCommands(reg.Commands(host.OS)...),
		}
		if cfg.Probes.SpawnRate > 0 {
			execOpts = append(execOpts, executor.WithSpawnLimit(rate.NewLimiter(rate.Limit(cfg.Probes.SpawnRate), 1)))
		}
		exec, err := executor.New(execOpts...)
		if err != nil {
			return nil, fmt.Errorf("create probe executor: %w", err)
		}
		runner = exec
	}

	var metrics *engine.Metrics
	if cfg.Metrics.File != "" {
		metrics = engine.NewMetrics()
	}

	format, err := report.ParseFormat(cfg.Report.Format)
	if err != nil {
		return nil, err
	}
	codec, err := report.CodecFor(format)
	if err != nil {
		return nil, err
	}

	var signer *report.Signer
	pemData, err := cfg.SigningKeyPEM()
	if err != nil {
		return nil, err
	}
	if pemData != nil {
		if signer, err = report.ParseSigner(pemData); err != nil {
			return nil, err
		}
	}

	var sink report.Sink = report.WriterSink{W: stdout, Pretty: true}
	if cfg.Report.URL != "" {
		sink, err = report.NewHTTPSink(cfg.Report.URL,
			report.WithToken(cfg.Report.Token),
			report.WithGzip(cfg.Report.Gzip),
			report.WithRetries(cfg.Report.Retries),
			report.WithBackoff(cfg.Report.Backoff),
			report.WithTimeout(cfg.Report.Timeout),
			report.WithUserAgent(version.UserAgent()),
			report.WithHTTPLogger(logger.Named("report")),
		)
		if err != nil {
			return nil, err
		}
	}

	src := opts.Source
	switch src {
	case nil:
		src = profiler.New(logger.Named("profiler"))
	case NoSource:
		src = nil
	}

	return &Agent{
		cfg:     cfg,
		logger:  logger,
		host:    host,
		metrics: metrics,
		engine: engine.New(applicable, runner, logger.Named("engine"), engine.Options{
			Workers: cfg.Engine.Workers,
			Metrics: metrics,
		}),
		assembler: snapshot.New(snapshot.Config{
			HostID:       cfg.Host.ID,
			AgentVersion: version.Short(),
			Platform:     host.Platform(),
			Source:       src,
			Logger:       logger.Named("snapshot"),
		}),
		codec:  codec,
		signer: signer,
		sink:   sink,
	}, nil
}

// Collect runs extraction and assembles the snapshot. It never fails;
// problems are recorded inside the snapshot.
func (a *Agent) Collect(ctx context.Context) models.Snapshot {
	start := time.Now()
	inv := a.engine.Run(ctx)
	snap := a.assembler.Assemble(ctx, inv)
	a.logger.Info("snapshot collected",
		zap.String("host_id", snap.Metadata.ID),
		zap.String("run_id", snap.Metadata.RunID),
		zap.String("platform", snap.Metadata.Platform),
		zap.Int("packages", len(snap.SoftwareComponents)),
		zap.Int("collection_errors", len(snap.CollectionErrors)),
		zap.Duration("duration", time.Since(start)),
	)
	return snap
}

// Run collects a snapshot and delivers it. The only error it returns is a
// *DeliveryError.
func (a *Agent) Run(ctx context.Context) error {
	snap := a.Collect(ctx)
	a.writeMetrics()

	doc, err := report.Build(snap, a.codec, a.signer)
	if err != nil {
		return &DeliveryError{Err: err}
	}
	if err := a.sink.Send(ctx, doc); err != nil {
		return &DeliveryError{Err: err}
	}
	return nil
}

func (a *Agent) writeMetrics() {
	if a.metrics == nil {
		return
	}
	if err := a.metrics.WriteTextfile(a.cfg.Metrics.File); err != nil {
		a.logger.Warn("failed to write metrics textfile",
			zap.String("path", a.cfg.Metrics.File),
			zap.Error(err),
		)
	}
}

type noSource struct{}

func (noSource) Hardware(context.Context) (models.Hardware, error) {
	return models.Hardware{}, nil
}

func (noSource) OperatingSystem(context.Context) (models.OperatingSystem, error) {
	return models.OperatingSystem{}, nil
}

func (noSource) Network(context.Context) (models.Network, error) { return models.Network{}, nil }

func (noSource) Storage(context.Context) (models.Storage, error) { return models.Storage{}, nil }

func (noSource) Users(context.Context) ([]models.User, error) { return nil, nil }
