// Command hsnap collects a one-shot inventory of the host it runs on and
// prints it or posts it to a collector.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/HerbHall/hsnap/internal/agent"
	"github.com/HerbHall/hsnap/internal/config"
	"github.com/HerbHall/hsnap/internal/plugins"
	"github.com/HerbHall/hsnap/internal/version"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Exit codes.
const (
	exitOK       = 0
	exitFatal    = 1
	exitDelivery = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func newFlagSet(stderr io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet("hsnap", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.String("config", "", "path to configuration file")
	fs.Bool("version", false, "print version information and exit")
	fs.Bool("list-probes", false, "print every probe the built-in plugins may run and exit")

	fs.String("id", "", "host identifier (default: machine hostname)")
	fs.String("url", "", "collector URL; the snapshot is printed to stdout when empty")
	fs.String("token", "", "bearer token sent to the collector")
	fs.String("signing-key", "", "PEM-encoded RSA private key used to sign the snapshot")
	fs.String("signing-key-file", "", "path to a PEM-encoded RSA private key")
	fs.String("format", "json", "encoding of the snapshot (json or cbor)")
	fs.Bool("gzip", false, "gzip the request body sent to the collector")
	fs.Int("workers", 4, "plugins run concurrently")
	fs.Duration("deadline", 0, "overall run deadline (default 5m)")
	fs.String("metrics-file", "", "write Prometheus metrics in textfile format to this path")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("log-format", "json", "log format (json or console)")
	return fs
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet(stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitFatal
	}

	if v, _ := fs.GetBool("version"); v {
		fmt.Fprintln(stdout, version.Info())
		return exitOK
	}
	if v, _ := fs.GetBool("list-probes"); v {
		return listProbes(stdout, stderr)
	}

	configPath, _ := fs.GetString("config")
	cfg, _, err := config.Load(configPath, fs)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load configuration: %v\n", err)
		return exitFatal
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(stderr, "failed to create logger: %v\n", err)
		return exitFatal
	}
	defer func() { _ = logger.Sync() }()
	defer zap.ReplaceGlobals(logger)()

	logger.Info("hsnap starting", zap.String("version", version.Short()))

	a, err := agent.New(agent.Options{Config: cfg, Logger: logger, Stdout: stdout})
	if err != nil {
		logger.Error("cannot start collection", zap.Error(err))
		return exitFatal
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Run.Deadline)
	defer cancel()

	if err := a.Run(ctx); err != nil {
		logger.Error("snapshot delivery failed", zap.Error(err))
		var de *agent.DeliveryError
		if errors.As(err, &de) {
			return exitDelivery
		}
		return exitFatal
	}
	return exitOK
}

func listProbes(stdout, stderr io.Writer) int {
	reg, err := plugins.Registry()
	if err != nil {
		fmt.Fprintf(stderr, "failed to build plugin registry: %v\n", err)
		return exitFatal
	}
	enc := yaml.NewEncoder(stdout)
	enc.SetIndent(2)
	if err := enc.Encode(reg.Surface()); err != nil {
		fmt.Fprintf(stderr, "failed to encode probe surface: %v\n", err)
		return exitFatal
	}
	if err := enc.Close(); err != nil {
		return exitFatal
	}
	return exitOK
}
