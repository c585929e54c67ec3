package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/HerbHall/hsnap/pkg/plugin"
	"github.com/HerbHall/hsnap/pkg/probe"
	"github.com/HerbHall/hsnap/pkg/purl"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

// fakeRunner returns canned stdout keyed by probe string; unknown probes fail
// with NotFound. It records the order probes were requested in.
type fakeRunner struct {
	mu      sync.Mutex
	outputs map[string]string
	delay   map[string]time.Duration
	calls   []string
}

func (r *fakeRunner) Run(_ context.Context, spec probe.Spec) probe.Result {
	key := spec.String()
	r.mu.Lock()
	r.calls = append(r.calls, key)
	out, ok := r.outputs[key]
	d := r.delay[key]
	r.mu.Unlock()
	if d > 0 {
		time.Sleep(d)
	}
	if !ok {
		return probe.Failed(spec, probe.NotFound, errors.New("no such probe"))
	}
	return probe.Result{Spec: spec, Stdout: []byte(out)}
}

// linePlugin emits one purl per stdout line of each successful probe.
type linePlugin struct {
	name    string
	probes  []probe.Spec
	err     error
	panics  bool
	extra   []purl.PackageURL
	checkFn func([]probe.Result)
}

func (p *linePlugin) Name() string              { return p.name }
func (p *linePlugin) SupportedOS() plugin.OSSet { return plugin.AllOS() }
func (p *linePlugin) Probes() []probe.Spec      { return p.probes }

func (p *linePlugin) Extract(results []probe.Result) ([]purl.PackageURL, error) {
	if p.panics {
		panic("extract exploded")
	}
	if p.checkFn != nil {
		p.checkFn(results)
	}
	var out []purl.PackageURL
	for _, r := range results {
		for _, line := range strings.Split(r.Text(), "\n") {
			if line == "" {
				continue
			}
			pk, err := purl.Parse(line)
			if err != nil {
				return out, err
			}
			out = append(out, pk)
		}
	}
	out = append(out, p.extra...)
	return out, p.err
}

func cmd(name string) probe.Spec { return probe.CommandRun{Executable: name} }

func newEngine(runner Runner, opts Options, plugins ...plugin.Plugin) *Engine {
	return New(plugins, runner, zap.NewNop(), opts)
}

func TestRun_Isolation(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"command:good": "pkg:deb/debian/curl@7.50.3-1",
		"command:bad":  "pkg:deb/debian/bash@5.1",
	}}
	eng := newEngine(runner, Options{},
		&linePlugin{name: "failing", probes: []probe.Spec{cmd("bad")}, err: errors.New("unexpected output")},
		&linePlugin{name: "panicking", probes: []probe.Spec{cmd("good")}, panics: true},
		&linePlugin{name: "healthy", probes: []probe.Spec{cmd("good")}},
	)

	inv := eng.Run(context.Background())

	got := inv.Strings()
	want := []string{"pkg:deb/debian/bash@5.1", "pkg:deb/debian/curl@7.50.3-1"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("packages = %v, want %v", got, want)
	}
	if inv.Plugins[0].ExtractionError != "unexpected output" {
		t.Errorf("failing report = %+v", inv.Plugins[0])
	}
	if inv.Plugins[0].Packages != 1 {
		t.Errorf("partial results of a failing plugin must be kept, got %d", inv.Plugins[0].Packages)
	}
	if !strings.Contains(inv.Plugins[1].ExtractionError, "panicked") {
		t.Errorf("panicking report = %+v", inv.Plugins[1])
	}
	if inv.Plugins[2].ExtractionError != "" || inv.Plugins[2].Packages != 1 {
		t.Errorf("healthy report = %+v", inv.Plugins[2])
	}
}

func TestRun_Deduplication(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"command:a": "pkg:rpm/redhat/curl@7.50.3?arch=x86_64",
		"command:b": "pkg:rpm/redhat/curl@7.50.3?arch=i686&distro=el7\npkg:rpm/redhat/bash@4.2",
	}}
	eng := newEngine(runner, Options{Workers: 2},
		&linePlugin{name: "first", probes: []probe.Spec{cmd("a")}},
		&linePlugin{name: "second", probes: []probe.Spec{cmd("b")}},
	)

	inv := eng.Run(context.Background())

	want := []string{"pkg:rpm/redhat/curl@7.50.3?arch=x86_64", "pkg:rpm/redhat/bash@4.2"}
	if got := inv.Strings(); !reflect.DeepEqual(got, want) {
		t.Errorf("packages = %v, want %v", got, want)
	}
	if inv.Duplicates != 1 {
		t.Errorf("Duplicates = %d, want 1", inv.Duplicates)
	}
}

func TestRun_Idempotent(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"command:a": "pkg:deb/debian/zlib@1?distro=x&arch=y\npkg:deb/debian/abc@2",
		"command:b": "pkg:rpm/fedora/curl@1",
	}}
	plugins := []plugin.Plugin{
		&linePlugin{name: "a", probes: []probe.Spec{cmd("a")}},
		&linePlugin{name: "b", probes: []probe.Spec{cmd("b")}},
	}
	eng := New(plugins, runner, zap.NewNop(), Options{Workers: 2})

	first := strings.Join(eng.Run(context.Background()).Strings(), "\n")
	second := strings.Join(eng.Run(context.Background()).Strings(), "\n")
	if first != second {
		t.Errorf("runs differ:\n%s\n---\n%s", first, second)
	}
}

func TestRun_OrderIsRegistryOrderNotCompletionOrder(t *testing.T) {
	runner := &fakeRunner{
		outputs: map[string]string{"command:slow": "pkg:generic/slow@1", "command:fast": "pkg:generic/fast@1"},
		delay:   map[string]time.Duration{"command:slow": 50 * time.Millisecond},
	}
	eng := newEngine(runner, Options{Workers: 4},
		&linePlugin{name: "slow", probes: []probe.Spec{cmd("slow")}},
		&linePlugin{name: "fast", probes: []probe.Spec{cmd("fast")}},
	)

	inv := eng.Run(context.Background())
	if got := inv.Strings(); !reflect.DeepEqual(got, []string{"pkg:generic/slow@1", "pkg:generic/fast@1"}) {
		t.Errorf("packages = %v", got)
	}
	if inv.Plugins[0].Plugin != "slow" || inv.Plugins[1].Plugin != "fast" {
		t.Errorf("reports out of order: %s, %s", inv.Plugins[0].Plugin, inv.Plugins[1].Plugin)
	}
}

func TestRun_ProbesAreSequentialAndPositional(t *testing.T) {
	specs := []probe.Spec{cmd("one"), probe.FileRead{Pattern: "/two"}, cmd("three")}
	runner := &fakeRunner{outputs: map[string]string{"command:one": "", "command:three": ""}}
	var checked bool
	p := &linePlugin{name: "p", probes: specs, checkFn: func(results []probe.Result) {
		checked = true
		if len(results) != len(specs) {
			t.Errorf("got %d results, want %d", len(results), len(specs))
			return
		}
		for i := range specs {
			if !reflect.DeepEqual(results[i].Spec, specs[i]) {
				t.Errorf("results[%d] is for %v, want %v", i, results[i].Spec, specs[i])
			}
		}
		if results[1].Reason() != probe.NotFound {
			t.Errorf("results[1] reason = %v", results[1].Reason())
		}
	}}

	inv := newEngine(runner, Options{}, p).Run(context.Background())
	if !checked {
		t.Fatal("Extract was not called")
	}
	if !reflect.DeepEqual(runner.calls, []string{"command:one", "file:/two", "command:three"}) {
		t.Errorf("probe order = %v", runner.calls)
	}
	rep := inv.Plugins[0]
	if rep.ProbesAttempted != 3 || rep.ProbesFailed != 1 {
		t.Errorf("report = %+v", rep)
	}
	if len(rep.Failures) != 1 || rep.Failures[0].Probe != "file:/two" || rep.Failures[0].Reason != "not_found" {
		t.Errorf("failures = %+v", rep.Failures)
	}
}

func TestRun_AllProbesFailedIsNotAnError(t *testing.T) {
	eng := newEngine(&fakeRunner{}, Options{},
		&linePlugin{name: "rpm", probes: []probe.Spec{cmd("rpm"), probe.FileRead{Pattern: "/etc/os-release"}}},
	)
	inv := eng.Run(context.Background())

	if len(inv.Packages) != 0 {
		t.Errorf("packages = %v, want none", inv.Strings())
	}
	rep := inv.Plugins[0]
	if rep.ProbesFailed != 2 || rep.ProbesAttempted != 2 {
		t.Errorf("report = %+v", rep)
	}
	if rep.ExtractionError != "" {
		t.Errorf("ExtractionError = %q, want empty", rep.ExtractionError)
	}
}

func TestRun_InvalidRecordDroppedOnly(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{"command:x": "pkg:generic/ok@1"}}
	eng := newEngine(runner, Options{},
		&linePlugin{name: "x", probes: []probe.Spec{cmd("x")}, extra: []purl.PackageURL{{}}},
	)
	inv := eng.Run(context.Background())

	if got := inv.Strings(); !reflect.DeepEqual(got, []string{"pkg:generic/ok@1"}) {
		t.Errorf("packages = %v", got)
	}
	rep := inv.Plugins[0]
	if len(rep.RecordErrors) != 1 || rep.ExtractionError != "" {
		t.Errorf("report = %+v, want one record error and no extraction error", rep)
	}
}

func TestRun_NoPlugins(t *testing.T) {
	inv := newEngine(&fakeRunner{}, Options{}).Run(context.Background())
	if inv == nil || len(inv.Packages) != 0 || len(inv.Plugins) != 0 {
		t.Errorf("Run() = %+v, want empty inventory", inv)
	}
}

func TestRun_CancelledContextSkipsProbes(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{"command:x": "pkg:generic/x@1"}}
	eng := newEngine(runner, Options{}, &linePlugin{name: "x", probes: []probe.Spec{cmd("x")}})

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	inv := eng.Run(ctx)
	if len(runner.calls) != 0 {
		t.Errorf("runner called %v after deadline", runner.calls)
	}
	if inv.Plugins[0].Failures[0].Reason != "timeout" {
		t.Errorf("failures = %+v", inv.Plugins[0].Failures)
	}
}

func TestRun_DestructiveOrNilProbesRejected(t *testing.T) {
	runner := &fakeRunner{}
	eng := newEngine(runner, Options{}, &linePlugin{name: "nil", probes: []probe.Spec{nil}})
	inv := eng.Run(context.Background())
	if inv.Plugins[0].ExtractionError == "" || len(runner.calls) != 0 {
		t.Errorf("report = %+v, calls = %v", inv.Plugins[0], runner.calls)
	}
}

func TestDedupe(t *testing.T) {
	a := purl.Must(purl.New("rpm", "redhat", "curl", "7.50.3", map[string]string{"arch": "x86_64"}, ""))
	b := purl.Must(purl.New("rpm", "redhat", "curl", "7.50.3", map[string]string{"arch": "i686"}, ""))
	c := purl.Must(purl.New("rpm", "redhat", "curl", "7.50.4", nil, ""))

	out, dups := Dedupe([]purl.PackageURL{a, c, b})
	if dups != 1 || len(out) != 2 {
		t.Fatalf("Dedupe = %v, %d", out, dups)
	}
	if !out[0].Equal(a) || !out[1].Equal(c) {
		t.Errorf("Dedupe kept %v, want first occurrences", out)
	}
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()
	runner := &fakeRunner{outputs: map[string]string{"command:rpm": "pkg:rpm/fedora/curl@1\npkg:rpm/fedora/curl@1"}}
	eng := newEngine(runner, Options{Metrics: m},
		&linePlugin{name: "rpm", probes: []probe.Spec{cmd("rpm"), probe.FileRead{Pattern: "/missing"}}},
	)
	eng.Run(context.Background())

	if got := testutil.ToFloat64(m.probes.WithLabelValues("rpm", "command", "ok")); got != 1 {
		t.Errorf("ok command probes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.probes.WithLabelValues("rpm", "file", "not_found")); got != 1 {
		t.Errorf("not_found file probes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.packages); got != 1 {
		t.Errorf("inventory packages = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.duplicates); got != 1 {
		t.Errorf("duplicates = %v, want 1", got)
	}

	path := filepath.Join(t.TempDir(), "hsnap.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `hsnap_probes_total{kind="command",plugin="rpm",result="ok"} 1`) {
		t.Errorf("textfile missing probe counter:\n%s", data)
	}
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	m.observeProbe("x", cmd("x"), probe.ReasonNone)
	m.observeExtractionError("x", "extract")
	m.observePlugin("x", time.Second, 1)
	m.observeRun(&Inventory{}, time.Now())
}
