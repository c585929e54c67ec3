//go:build !linux

package profiler

import (
	"context"

	"github.com/HerbHall/hsnap/pkg/models"
)

// Hardware has no collector outside Linux.
func (p *Profiler) Hardware(context.Context) (models.Hardware, error) {
	p.logger.Debug("hardware profiling is only supported on Linux")
	return models.Hardware{}, ErrUnsupported
}
