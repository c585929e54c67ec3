package models

import (
	"time"

	"github.com/HerbHall/hsnap/pkg/purl"
)

// Snapshot is the document produced by one hsnap invocation.
type Snapshot struct {
	Metadata           Metadata          `json:"metadata"`
	Hardware           Hardware          `json:"hardware"`
	OperatingSystem    OperatingSystem   `json:"operating_system"`
	Network            Network           `json:"network"`
	Storage            Storage           `json:"storage"`
	Users              []User            `json:"users"`
	SoftwareComponents []purl.PackageURL `json:"software_components,omitempty"`
	Plugins            []PluginReport    `json:"plugins,omitempty"`
	CollectionErrors   map[string]string `json:"collection_errors,omitempty"`
}

// Metadata identifies the host and the collection run.
type Metadata struct {
	// ID maps the snapshot to a host. Defaults to the hostname.
	ID              string    `json:"id"`
	RunID           string    `json:"run_id"`
	Timestamp       time.Time `json:"timestamp"`
	AgentVersion    string    `json:"agent_version,omitempty"`
	Platform        string    `json:"platform,omitempty" example:"linux/amd64"`
	InventoryDigest string    `json:"inventory_digest,omitempty" example:"blake3:af1349b9..."`
}

// Hardware holds CPU, memory and sensor information.
type Hardware struct {
	CPUs       []CPU       `json:"cpu_info"`
	Memory     Memory      `json:"memory"`
	Components []Component `json:"components"`
}

// CPU describes one logical processor.
type CPU struct {
	Name         string  `json:"name" example:"cpu0"`
	VendorID     string  `json:"vendor_id" example:"GenuineIntel"`
	Brand        string  `json:"brand" example:"Intel(R) Core(TM) i7-8565U CPU @ 1.80GHz"`
	FrequencyMHz uint64  `json:"frequency"`
	Usage        float32 `json:"usage"`
}

// Memory sizes are in bytes.
type Memory struct {
	TotalMemory uint64 `json:"total_memory"`
	UsedMemory  uint64 `json:"used_memory"`
	TotalSwap   uint64 `json:"total_swap"`
	UsedSwap    uint64 `json:"used_swap"`
}

// Component is a temperature sensor. Temperature is in degrees Celsius and
// nil when the sensor could not be read.
type Component struct {
	Label       string   `json:"label" example:"x86_pkg_temp"`
	Temperature *float32 `json:"temperature"`
}

// OperatingSystem describes the running OS.
type OperatingSystem struct {
	Name          string `json:"os_name,omitempty" example:"Fedora Linux"`
	Version       string `json:"os_version,omitempty" example:"40"`
	KernelVersion string `json:"kernel_version,omitempty" example:"6.8.5-301.fc40.x86_64"`
	HostName      string `json:"host_name,omitempty"`
}

// Network lists network interfaces.
type Network struct {
	Interfaces []NetworkInterface `json:"interfaces"`
}

// NetworkInterface describes one interface and its addresses.
type NetworkInterface struct {
	Name       string   `json:"name" example:"eth0"`
	MACAddress string   `json:"mac_address" example:"00:1a:2b:3c:4d:5e"`
	IPs        []string `json:"ips"`
}

// Storage lists mounted filesystems.
type Storage struct {
	Disks []Disk `json:"disks"`
}

// Disk describes one mounted filesystem. Space is in bytes.
type Disk struct {
	Name           string `json:"name" example:"/dev/nvme0n1p2"`
	Kind           string `json:"kind" example:"SSD"`
	FileSystem     string `json:"file_system" example:"ext4"`
	MountPoint     string `json:"mount_point" example:"/"`
	TotalSpace     uint64 `json:"total_space"`
	AvailableSpace uint64 `json:"available_space"`
	IsRemovable    bool   `json:"is_removable"`
}

// User is a local account.
type User struct {
	Name   string   `json:"name"`
	ID     string   `json:"id"`
	Groups []string `json:"groups"`
}

// PluginReport summarizes one plugin's contribution to the inventory.
type PluginReport struct {
	Plugin          string         `json:"plugin" example:"rhel-rpm"`
	ProbesAttempted int            `json:"probes_attempted"`
	ProbesFailed    int            `json:"probes_failed"`
	Failures        []ProbeFailure `json:"failures,omitempty"`
	ExtractionError string         `json:"extraction_error,omitempty"`
	RecordErrors    []string       `json:"record_errors,omitempty"`
	Packages        int            `json:"packages"`
	DurationMS      int64          `json:"duration_ms"`
}

// ProbeFailure records one failed probe.
type ProbeFailure struct {
	Probe   string `json:"probe" example:"command:rpm -qa"`
	Reason  string `json:"reason" example:"not_found"`
	Message string `json:"message,omitempty"`
}
