package rhel

import (
	"errors"
	"testing"

	"github.com/HerbHall/hsnap/pkg/plugin"
	"github.com/HerbHall/hsnap/pkg/plugin/plugintest"
)

func TestContract(t *testing.T) {
	plugintest.TestPluginContract(t, func() plugin.Plugin { return New() })
}

func TestExtract_FedoraExample(t *testing.T) {
	p := New()
	pkgs, err := p.Extract(plugintest.Results(p, []byte("curl-7.50.3-1.fc25.x86_64\n")))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(pkgs) != 1 {
		t.Fatalf("got %d packages, want 1", len(pkgs))
	}
	if got, want := pkgs[0].String(), "pkg:rpm/fedora/curl@7.50.3-1.fc25?arch=x86_64"; got != want {
		t.Errorf("purl = %q, want %q", got, want)
	}
}

func TestExtract_NamespaceFromOSRelease(t *testing.T) {
	p := New()
	out := []byte("curl-7.50.3-1.el7.x86_64\nbash-4.2.46-34.el7.x86_64\n")
	rel := []byte("NAME=\"Red Hat Enterprise Linux\"\nID=\"rhel\"\n")

	pkgs, err := p.Extract(plugintest.Results(p, out, rel))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := []string{
		"pkg:rpm/redhat/curl@7.50.3-1.el7?arch=x86_64",
		"pkg:rpm/redhat/bash@4.2.46-34.el7?arch=x86_64",
	}
	if len(pkgs) != len(want) {
		t.Fatalf("got %d packages, want %d", len(pkgs), len(want))
	}
	for i, w := range want {
		if pkgs[i].String() != w {
			t.Errorf("pkgs[%d] = %q, want %q", i, pkgs[i], w)
		}
	}
}

func TestExtract_SkipsMalformedAndKeys(t *testing.T) {
	p := New()
	out := []byte("gpg-pubkey-f4a80eb5-53a7ff4b\nbroken\n\nopenssl-libs-1.0.2k-19.amzn2.0.1.x86_64\n")

	pkgs, err := p.Extract(plugintest.Results(p, out))
	if !errors.Is(err, ErrMalformedNVRA) {
		t.Errorf("error = %v, want ErrMalformedNVRA for the broken line", err)
	}
	if len(pkgs) != 1 {
		t.Fatalf("got %d packages, want 1 (partial results kept)", len(pkgs))
	}
	if got, want := pkgs[0].String(), "pkg:rpm/amazon/openssl-libs@1.0.2k-19.amzn2.0.1?arch=x86_64"; got != want {
		t.Errorf("purl = %q, want %q", got, want)
	}
}

func TestParseNVRA(t *testing.T) {
	tests := []struct {
		in      string
		want    NVRA
		wantErr bool
	}{
		{in: "curl-7.50.3-1.fc25.x86_64", want: NVRA{"curl", "7.50.3", "1.fc25", "x86_64"}},
		{in: "python3-libs-3.6.8-18.el7.noarch", want: NVRA{"python3-libs", "3.6.8", "18.el7", "noarch"}},
		{in: "kernel-core-5.14.0-70.13.1.el9_0.aarch64", want: NVRA{"kernel-core", "5.14.0", "70.13.1.el9_0", "aarch64"}},
		{in: "gpg-pubkey-f4a80eb5-53a7ff4b", want: NVRA{"gpg-pubkey", "f4a80eb5", "53a7ff4b", ""}},
		{in: "foo-1.0-1.unknownarch", want: NVRA{"foo", "1.0", "1.unknownarch", ""}},
		{in: "glibc-2.17-326.el7.sparc64", want: NVRA{"glibc", "2.17", "326.el7", "sparc64"}},
		{in: "bash-5.1-2.fc35.armv5tel", want: NVRA{"bash", "5.1", "2.fc35", "armv5tel"}},
		{in: "zlib-1.2.11-1.alpha", want: NVRA{"zlib", "1.2.11", "1", "alpha"}},
		{in: "broken", wantErr: true},
		{in: "name-1.0", wantErr: true},
		{in: "-1.0-1", wantErr: true},
		{in: "name-1.0-", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseNVRA(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseNVRA(%q) = %+v, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseNVRA(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseNVRA(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNamespaceForDistTag(t *testing.T) {
	tests := map[string]string{
		"1.fc25":         "fedora",
		"3.el8_4":        "redhat",
		"19.amzn2.0.1":   "amazon",
		"150400.1.suse":  "opensuse",
		"1.sles15":       "opensuse",
		"1":              "",
		"1.elephant":     "",
	}
	for rel, want := range tests {
		if got := namespaceForDistTag(rel); got != want {
			t.Errorf("namespaceForDistTag(%q) = %q, want %q", rel, got, want)
		}
	}
}
