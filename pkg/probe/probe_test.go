package probe

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"
)

func TestSpecs_AreReadOnly(t *testing.T) {
	specs := []Spec{
		FileRead{Pattern: "/etc/os-release"},
		RegistryRead{Hive: HiveLocalMachine, Key: `SOFTWARE\Example`, Subkeys: true},
		CommandRun{Executable: "rpm", Args: []string{"-qa"}},
	}
	for _, s := range specs {
		if s.Destructive() {
			t.Errorf("%s reports Destructive", s)
		}
	}
}

func TestSpec_String(t *testing.T) {
	tests := []struct {
		spec Spec
		want string
	}{
		{FileRead{Pattern: "/lib/apk/db/installed"}, "file:/lib/apk/db/installed"},
		{CommandRun{Executable: "brew"}, "command:brew"},
		{CommandRun{Executable: "rpm", Args: []string{"-qa", "--qf", "%{NAME}"}}, "command:rpm -qa --qf %{NAME}"},
		{RegistryRead{Hive: HiveCurrentUser, Key: `Software\X`, ValueNames: []string{"A", "B"}, Subkeys: true}, `registry:HKCU\Software\X\* [A,B]`},
		{RegistryRead{Hive: HiveLocalMachine, Key: `Software\X`}, `registry:HKLM\Software\X`},
	}
	for _, tt := range tests {
		if got := tt.spec.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestFileRead_IsGlob(t *testing.T) {
	if (FileRead{Pattern: "/etc/os-release"}).IsGlob() {
		t.Error("plain path reported as glob")
	}
	if !(FileRead{Pattern: "/etc/*-release"}).IsGlob() {
		t.Error("pattern with * not reported as glob")
	}
}

func TestResult_Accessors(t *testing.T) {
	cmd := CommandRun{Executable: "true"}

	ok := Result{Spec: cmd, Stdout: []byte("  hello\n")}
	if !ok.OK() || ok.Reason() != ReasonNone {
		t.Errorf("success result: OK=%v Reason=%v", ok.OK(), ok.Reason())
	}
	if ok.Text() != "hello" {
		t.Errorf("Text() = %q, want hello", ok.Text())
	}

	file := Result{Spec: FileRead{Pattern: "x"}, Files: []File{{Path: "x", Content: []byte("data")}}}
	if string(file.Output()) != "data" {
		t.Errorf("file Output() = %q", file.Output())
	}

	failed := Failed(cmd, Timeout, errors.New("deadline"))
	if failed.OK() {
		t.Error("failed result reports OK")
	}
	if failed.Reason() != Timeout {
		t.Errorf("Reason() = %v, want timeout", failed.Reason())
	}
	if failed.Output() != nil {
		t.Error("failed result must have no Output")
	}
}

func TestReasonOf(t *testing.T) {
	wrapped := fmt.Errorf("reading: %w", &Error{Reason: PermissionDenied, Err: fs.ErrPermission})
	tests := []struct {
		name string
		err  error
		want Reason
	}{
		{"nil", nil, ReasonNone},
		{"plain", errors.New("boom"), ExecutionError},
		{"wrapped probe error", wrapped, PermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ReasonOf(tt.err); got != tt.want {
				t.Errorf("ReasonOf = %v, want %v", got, tt.want)
			}
		})
	}
	if !errors.Is(wrapped, fs.ErrPermission) {
		t.Error("Error must unwrap to its cause")
	}
}

func TestReason_MarshalText(t *testing.T) {
	b, err := NotFound.MarshalText()
	if err != nil || string(b) != "not_found" {
		t.Errorf("MarshalText = %q, %v", b, err)
	}
}
