// Package snapshot assembles the software inventory and the profiler
// sections into one reportable document.
package snapshot

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/HerbHall/hsnap/internal/engine"
	"github.com/HerbHall/hsnap/pkg/models"
	"github.com/HerbHall/hsnap/pkg/purl"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Section names used as keys of Snapshot.CollectionErrors.
const (
	SectionHardware        = "hardware"
	SectionOperatingSystem = "operating_system"
	SectionNetwork         = "network"
	SectionStorage         = "storage"
	SectionUsers           = "users"
)

// UnknownHostID is used when no identifier is configured and the hostname
// cannot be read.
const UnknownHostID = "unknown"

// Source produces the non-software sections. *profiler.Profiler satisfies
// it.
type Source interface {
	Hardware(ctx context.Context) (models.Hardware, error)
	OperatingSystem(ctx context.Context) (models.OperatingSystem, error)
	Network(ctx context.Context) (models.Network, error)
	Storage(ctx context.Context) (models.Storage, error)
	Users(ctx context.Context) ([]models.User, error)
}

// Config configures an Assembler.
type Config struct {
	// HostID identifies the host. Empty means ResolveHostID("").
	HostID       string
	AgentVersion string
	Platform     string
	// Source may be nil, in which case only the software sections are
	// filled.
	Source Source
	Logger *zap.Logger
}

// Assembler builds snapshots. It holds no per-run state and may be reused.
type Assembler struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// New creates an Assembler.
func New(cfg Config) *Assembler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.HostID = ResolveHostID(cfg.HostID)
	return &Assembler{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Assemble merges inv with the profiler sections. A failing section is left
// empty and its error recorded under CollectionErrors; assembly itself
// never fails. A nil inv yields an empty software inventory.
func (a *Assembler) Assemble(ctx context.Context, inv *engine.Inventory) models.Snapshot {
	if inv == nil {
		inv = &engine.Inventory{}
	}
	snap := models.Snapshot{
		Metadata: models.Metadata{
			ID:              a.cfg.HostID,
			RunID:           a.newID(),
			Timestamp:       a.now().UTC(),
			AgentVersion:    a.cfg.AgentVersion,
			Platform:        a.cfg.Platform,
			InventoryDigest: Digest(inv.Packages),
		},
		SoftwareComponents: inv.Packages,
		Plugins:            inv.Plugins,
	}

	if err := a.collect(ctx, &snap); err != nil {
		snap.CollectionErrors = collectionErrors(err)
		a.logger.Warn("some sections could not be collected", zap.Error(err))
	}
	normalize(&snap)
	return snap
}

// sectionError ties an error to the section that produced it.
type sectionError struct {
	section string
	err     error
}

func (e *sectionError) Error() string { return e.section + ": " + e.err.Error() }
func (e *sectionError) Unwrap() error { return e.err }

func (a *Assembler) collect(ctx context.Context, snap *models.Snapshot) error {
	src := a.cfg.Source
	if src == nil {
		return nil
	}
	errs := make([]error, 5)
	var g errgroup.Group
	run := func(i int, section string, fn func() error) {
		g.Go(func() error {
			errs[i] = guard(section, fn)
			return nil
		})
	}
	run(0, SectionHardware, func() (err error) {
		snap.Hardware, err = src.Hardware(ctx)
		return err
	})
	run(1, SectionOperatingSystem, func() (err error) {
		snap.OperatingSystem, err = src.OperatingSystem(ctx)
		return err
	})
	run(2, SectionNetwork, func() (err error) {
		snap.Network, err = src.Network(ctx)
		return err
	})
	run(3, SectionStorage, func() (err error) {
		snap.Storage, err = src.Storage(ctx)
		return err
	})
	run(4, SectionUsers, func() (err error) {
		snap.Users, err = src.Users(ctx)
		return err
	})
	_ = g.Wait()

	var merr *multierror.Error
	for _, err := range errs {
		if err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	return merr.ErrorOrNil()
}

// guard runs fn and converts a panic into an error for section.
func guard(section string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &sectionError{section: section, err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := fn(); err != nil {
		return &sectionError{section: section, err: err}
	}
	return nil
}

func collectionErrors(err error) map[string]string {
	out := map[string]string{}
	merr, ok := err.(*multierror.Error)
	if !ok {
		return map[string]string{"snapshot": err.Error()}
	}
	for _, e := range merr.Errors {
		se, ok := e.(*sectionError)
		if !ok {
			continue
		}
		out[se.section] = flatten(se.err)
	}
	return out
}

// flatten renders nested multierrors on one line.
func flatten(err error) string {
	merr, ok := err.(*multierror.Error)
	if !ok {
		return err.Error()
	}
	msgs := make([]string, 0, len(merr.Errors))
	for _, e := range merr.Errors {
		msgs = append(msgs, e.Error())
	}
	sort.Strings(msgs)
	return strings.Join(msgs, "; ")
}

// normalize replaces nil lists so they encode as empty arrays.
func normalize(s *models.Snapshot) {
	if s.Hardware.CPUs == nil {
		s.Hardware.CPUs = []models.CPU{}
	}
	if s.Hardware.Components == nil {
		s.Hardware.Components = []models.Component{}
	}
	if s.Network.Interfaces == nil {
		s.Network.Interfaces = []models.NetworkInterface{}
	}
	if s.Storage.Disks == nil {
		s.Storage.Disks = []models.Disk{}
	}
	if s.Users == nil {
		s.Users = []models.User{}
	}
}

// Digest fingerprints an inventory: "blake3:" followed by the hex BLAKE3-256
// of the canonical package strings joined by newlines.
func Digest(pkgs []purl.PackageURL) string {
	lines := make([]string, len(pkgs))
	for i, p := range pkgs {
		lines[i] = p.String()
	}
	sum := blake3.Sum256([]byte(strings.Join(lines, "\n")))
	return "blake3:" + hex.EncodeToString(sum[:])
}

// ResolveHostID returns id, or the hostname when id is empty, or
// UnknownHostID when the hostname cannot be read.
func ResolveHostID(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return UnknownHostID
}
