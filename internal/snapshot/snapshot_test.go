package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/HerbHall/hsnap/internal/engine"
	"github.com/HerbHall/hsnap/pkg/models"
	"github.com/HerbHall/hsnap/pkg/purl"
	"go.uber.org/zap"
)

type fakeSource struct {
	hwErr    error
	panicNet bool
}

func (f fakeSource) Hardware(context.Context) (models.Hardware, error) {
	if f.hwErr != nil {
		return models.Hardware{}, f.hwErr
	}
	return models.Hardware{CPUs: []models.CPU{{Name: "cpu0"}}}, nil
}

func (f fakeSource) OperatingSystem(context.Context) (models.OperatingSystem, error) {
	return models.OperatingSystem{Name: "Debian GNU/Linux 12 (bookworm)", HostName: "web01"}, nil
}

func (f fakeSource) Network(context.Context) (models.Network, error) {
	if f.panicNet {
		panic("netlink exploded")
	}
	return models.Network{Interfaces: []models.NetworkInterface{{Name: "eth0"}}}, nil
}

func (f fakeSource) Storage(context.Context) (models.Storage, error) {
	return models.Storage{}, nil
}

func (f fakeSource) Users(context.Context) ([]models.User, error) {
	return []models.User{{Name: "root", ID: "0"}}, nil
}

func newTestAssembler(src Source) *Assembler {
	a := New(Config{HostID: "host-1", AgentVersion: "1.2.3", Platform: "linux/amd64", Source: src, Logger: zap.NewNop()})
	a.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3600)) }
	a.newID = func() string { return "run-1" }
	return a
}

func TestAssemble(t *testing.T) {
	inv := &engine.Inventory{
		Packages: []purl.PackageURL{purl.Must(purl.Parse("pkg:deb/debian/curl@7.88.1-10?arch=amd64"))},
		Plugins:  []models.PluginReport{{Plugin: "debian-dpkg", Packages: 1}},
	}
	snap := newTestAssembler(fakeSource{}).Assemble(context.Background(), inv)

	md := snap.Metadata
	if md.ID != "host-1" || md.RunID != "run-1" || md.AgentVersion != "1.2.3" || md.Platform != "linux/amd64" {
		t.Errorf("metadata = %+v", md)
	}
	if !md.Timestamp.Equal(time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)) || md.Timestamp.Location() != time.UTC {
		t.Errorf("timestamp = %v, want UTC", md.Timestamp)
	}
	if md.InventoryDigest != Digest(inv.Packages) {
		t.Errorf("digest = %q", md.InventoryDigest)
	}
	if len(snap.SoftwareComponents) != 1 || len(snap.Plugins) != 1 {
		t.Errorf("software = %v, plugins = %v", snap.SoftwareComponents, snap.Plugins)
	}
	if snap.OperatingSystem.HostName != "web01" || len(snap.Users) != 1 || len(snap.Hardware.CPUs) != 1 {
		t.Errorf("sections not populated: %+v", snap)
	}
	if snap.CollectionErrors != nil {
		t.Errorf("CollectionErrors = %v, want nil", snap.CollectionErrors)
	}
}

func TestAssemble_SectionFailuresAreIsolated(t *testing.T) {
	src := fakeSource{hwErr: errors.New("no /proc"), panicNet: true}
	snap := newTestAssembler(src).Assemble(context.Background(), nil)

	if got := snap.CollectionErrors[SectionHardware]; got != "no /proc" {
		t.Errorf("hardware error = %q", got)
	}
	if got := snap.CollectionErrors[SectionNetwork]; !strings.Contains(got, "netlink exploded") {
		t.Errorf("network error = %q", got)
	}
	if len(snap.CollectionErrors) != 2 {
		t.Errorf("CollectionErrors = %v", snap.CollectionErrors)
	}
	if len(snap.Users) != 1 || snap.OperatingSystem.Name == "" {
		t.Error("healthy sections must still be collected")
	}
	if snap.Network.Interfaces == nil || len(snap.Network.Interfaces) != 0 {
		t.Errorf("failed network section = %+v, want empty", snap.Network)
	}
}

func TestAssemble_NilSourceEncodesEmptyLists(t *testing.T) {
	snap := newTestAssembler(nil).Assemble(context.Background(), &engine.Inventory{})
	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	for _, want := range []string{`"users":[]`, `"cpu_info":[]`, `"interfaces":[]`, `"disks":[]`} {
		if !strings.Contains(s, want) {
			t.Errorf("encoded snapshot missing %s: %s", want, s)
		}
	}
	if strings.Contains(s, "collection_errors") {
		t.Errorf("unexpected collection_errors: %s", s)
	}
}

func TestDigest(t *testing.T) {
	a := []purl.PackageURL{purl.Must(purl.Parse("pkg:apk/alpine/musl@1.2.4-r2")), purl.Must(purl.Parse("pkg:apk/alpine/busybox@1.36.1-r5"))}
	b := []purl.PackageURL{a[1], a[0]}

	da, db := Digest(a), Digest(b)
	if !strings.HasPrefix(da, "blake3:") || len(da) != len("blake3:")+64 {
		t.Errorf("Digest = %q", da)
	}
	if da == db {
		t.Error("digest must depend on order")
	}
	if da != Digest(append([]purl.PackageURL(nil), a...)) {
		t.Error("digest must be deterministic")
	}
	if Digest(nil) == da {
		t.Error("empty inventory must have a distinct digest")
	}
}

func TestResolveHostID(t *testing.T) {
	if got := ResolveHostID("  db-7 "); got != "db-7" {
		t.Errorf("ResolveHostID = %q", got)
	}
	if got := ResolveHostID(""); got == "" {
		t.Error("ResolveHostID(\"\") must not be empty")
	}
}
