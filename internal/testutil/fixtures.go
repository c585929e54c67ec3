package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/HerbHall/hsnap/pkg/models"
	"github.com/HerbHall/hsnap/pkg/purl"
)

// NewSnapshot returns a Snapshot with sensible defaults, suitable for test
// fixtures. Override individual fields after creation as needed.
func NewSnapshot(opts ...func(*models.Snapshot)) models.Snapshot {
	s := models.Snapshot{
		Metadata: models.Metadata{
			ID:           "test-host",
			RunID:        uuid.New().String(),
			Timestamp:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			AgentVersion: "dev",
			Platform:     "linux/amd64",
		},
		Hardware: models.Hardware{
			CPUs:       []models.CPU{},
			Components: []models.Component{},
		},
		Network: models.Network{Interfaces: []models.NetworkInterface{}},
		Storage: models.Storage{Disks: []models.Disk{}},
		Users:   []models.User{{Name: "root", ID: "0", Groups: []string{"root"}}},
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// WithHostID sets the host identifier.
func WithHostID(id string) func(*models.Snapshot) {
	return func(s *models.Snapshot) { s.Metadata.ID = id }
}

// WithRunID sets the run identifier.
func WithRunID(id string) func(*models.Snapshot) {
	return func(s *models.Snapshot) { s.Metadata.RunID = id }
}

// WithTimestamp sets the collection time.
func WithTimestamp(t time.Time) func(*models.Snapshot) {
	return func(s *models.Snapshot) { s.Metadata.Timestamp = t.UTC() }
}

// WithPackages parses each package URL and sets the software inventory.
// It panics on an invalid URL.
func WithPackages(urls ...string) func(*models.Snapshot) {
	return func(s *models.Snapshot) {
		s.SoftwareComponents = make([]purl.PackageURL, len(urls))
		for i, u := range urls {
			s.SoftwareComponents[i] = purl.Must(purl.Parse(u))
		}
	}
}

// WithUsers sets the local accounts.
func WithUsers(users ...models.User) func(*models.Snapshot) {
	return func(s *models.Snapshot) { s.Users = users }
}

// WithCollectionError records a failed section.
func WithCollectionError(section, msg string) func(*models.Snapshot) {
	return func(s *models.Snapshot) {
		if s.CollectionErrors == nil {
			s.CollectionErrors = make(map[string]string)
		}
		s.CollectionErrors[section] = msg
	}
}
