//go:build !linux && !windows

package profiler

import (
	"context"

	"github.com/HerbHall/hsnap/pkg/models"
)

// Storage has no collector on this platform.
func (p *Profiler) Storage(context.Context) (models.Storage, error) {
	return models.Storage{Disks: []models.Disk{}}, ErrUnsupported
}

func statfs(string) (total, avail uint64, err error) {
	return 0, 0, ErrUnsupported
}
