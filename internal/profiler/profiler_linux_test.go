package profiler

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

const meminfoFixture = `MemTotal:       16331292 kB
MemFree:         1203908 kB
MemAvailable:    8165646 kB
Buffers:          523488 kB
Cached:          6781316 kB
SwapTotal:       2097148 kB
SwapFree:        2097148 kB
HugePages_Total:       0
`

func TestHardware(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"proc/cpuinfo":                          "processor\t: 0\nvendor_id\t: AuthenticAMD\nmodel name\t: AMD Ryzen 7\ncpu MHz\t\t: 3600.000\n",
		"proc/meminfo":                          meminfoFixture,
		"sys/class/thermal/thermal_zone0/type":  "x86_pkg_temp\n",
		"sys/class/thermal/thermal_zone0/temp":  "45500\n",
		"sys/class/thermal/thermal_zone1/type":  "acpitz\n",
		"sys/class/thermal/thermal_zone1/other": "",
	})
	p := New(zap.NewNop(), WithRoot(root), WithCPUSampleInterval(0))

	hw, err := p.Hardware(context.Background())
	if err != nil {
		t.Fatalf("Hardware: %v", err)
	}
	if len(hw.CPUs) != 1 || hw.CPUs[0].VendorID != "AuthenticAMD" || hw.CPUs[0].FrequencyMHz != 3600 {
		t.Errorf("CPUs = %+v", hw.CPUs)
	}
	if hw.Memory.TotalMemory != 16331292*1024 {
		t.Errorf("TotalMemory = %d", hw.Memory.TotalMemory)
	}
	if hw.Memory.UsedMemory != (16331292-8165646)*1024 {
		t.Errorf("UsedMemory = %d", hw.Memory.UsedMemory)
	}
	if hw.Memory.TotalSwap != 2097148*1024 || hw.Memory.UsedSwap != 0 {
		t.Errorf("swap = %d/%d", hw.Memory.UsedSwap, hw.Memory.TotalSwap)
	}
	if len(hw.Components) != 2 {
		t.Fatalf("Components = %+v", hw.Components)
	}
	if c := hw.Components[0]; c.Label != "x86_pkg_temp" || c.Temperature == nil || *c.Temperature != 45.5 {
		t.Errorf("zone0 = %+v", c)
	}
	if c := hw.Components[1]; c.Label != "acpitz" || c.Temperature != nil {
		t.Errorf("zone1 = %+v", c)
	}
}

func TestHardware_PartialOnMissingCPUInfo(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"proc/meminfo": meminfoFixture})
	p := New(nil, WithRoot(root), WithCPUSampleInterval(0))

	hw, err := p.Hardware(context.Background())
	if err == nil {
		t.Fatal("expected error for missing cpuinfo")
	}
	if hw.Memory.TotalMemory == 0 {
		t.Error("memory should still be collected")
	}
}

func TestStorage(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"proc/mounts": `/dev/nvme0n1p2 / ext4 rw,relatime 0 0
proc /proc proc rw 0 0
tmpfs /run tmpfs rw 0 0
/dev/sdb1 /media/usb\040stick vfat rw 0 0
/dev/nvme0n1p2 / ext4 rw,relatime 0 0
/dev/sdc1 /mnt/broken xfs rw 0 0
`,
		"sys/block/nvme0n1/queue/rotational": "0\n",
		"sys/block/nvme0n1/removable":        "0\n",
		"sys/block/sdb/queue/rotational":     "1\n",
		"sys/block/sdb/removable":            "1\n",
	})
	p := New(zap.NewNop(), WithRoot(root))
	p.statfs = func(path string) (uint64, uint64, error) {
		switch path {
		case "/":
			return 500 << 30, 100 << 30, nil
		case "/media/usb stick":
			return 16 << 30, 8 << 30, nil
		}
		return 0, 0, errors.New("stale handle")
	}

	s, err := p.Storage(context.Background())
	if err != nil {
		t.Fatalf("Storage: %v", err)
	}
	if len(s.Disks) != 2 {
		t.Fatalf("Disks = %+v", s.Disks)
	}
	d := s.Disks[0]
	if d.Name != "/dev/nvme0n1p2" || d.MountPoint != "/" || d.FileSystem != "ext4" || d.Kind != "SSD" || d.IsRemovable {
		t.Errorf("disk 0 = %+v", d)
	}
	if d.TotalSpace != 500<<30 || d.AvailableSpace != 100<<30 {
		t.Errorf("disk 0 space = %d/%d", d.AvailableSpace, d.TotalSpace)
	}
	d = s.Disks[1]
	if d.MountPoint != "/media/usb stick" || d.Kind != "HDD" || !d.IsRemovable {
		t.Errorf("disk 1 = %+v", d)
	}
}

func TestStorage_NoMounts(t *testing.T) {
	p := New(nil, WithRoot(t.TempDir()))
	s, err := p.Storage(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if s.Disks == nil {
		t.Error("Disks should be empty, not nil")
	}
}

func TestParentDevice(t *testing.T) {
	tests := map[string]string{
		"sda1":      "sda",
		"sda":       "sda",
		"vdb12":     "vdb",
		"nvme0n1p2": "nvme0n1",
		"nvme0n1":   "nvme0n1",
		"mmcblk0p1": "mmcblk0",
		"loop3":     "loop3",
	}
	for in, want := range tests {
		if got := parentDevice(in); got != want {
			t.Errorf("parentDevice(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestUnescapeMount(t *testing.T) {
	tests := map[string]string{
		`/plain`:         "/plain",
		`/a\040b`:        "/a b",
		`/tab\011x`:      "/tab\tx",
		`/trailing\04`:   `/trailing\04`,
		`/back\134slash`: `/back\slash`,
	}
	for in, want := range tests {
		if got := unescapeMount(in); got != want {
			t.Errorf("unescapeMount(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestUsers(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"etc/passwd": "root:x:0:0:root:/root:/bin/bash\n",
		"etc/group":  "root:x:0:\nwheel:x:10:root\n",
	})
	users, err := New(nil, WithRoot(root)).Users(context.Background())
	if err != nil {
		t.Fatalf("Users: %v", err)
	}
	if len(users) != 1 || len(users[0].Groups) != 2 {
		t.Errorf("users = %+v", users)
	}
}

func TestUsers_MissingGroupIsPartial(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"etc/passwd": "root:x:0:0:root:/root:/bin/bash\n"})
	users, err := New(nil, WithRoot(root)).Users(context.Background())
	if err == nil {
		t.Error("expected error for missing group file")
	}
	if len(users) != 1 {
		t.Errorf("users = %+v", users)
	}
}

func TestOperatingSystem(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"etc/os-release": "NAME=\"Fedora Linux\"\nVERSION_ID=40\nPRETTY_NAME=\"Fedora Linux 40 (Workstation Edition)\"\n",
	})
	p := New(nil, WithRoot(root))
	p.hostname = func() (string, error) { return "build01", nil }

	got, err := p.OperatingSystem(context.Background())
	if err != nil {
		t.Fatalf("OperatingSystem: %v", err)
	}
	if got.Name != "Fedora Linux 40 (Workstation Edition)" || got.Version != "40" || got.HostName != "build01" {
		t.Errorf("got %+v", got)
	}
	if got.KernelVersion == "" {
		t.Error("KernelVersion should come from uname")
	}
}
