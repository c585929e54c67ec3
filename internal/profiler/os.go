package profiler

import (
	"context"
	"fmt"

	"github.com/HerbHall/hsnap/pkg/models"
	"github.com/hashicorp/go-multierror"
)

// OperatingSystem reports the OS name and version, kernel release and
// hostname.
func (p *Profiler) OperatingSystem(context.Context) (models.OperatingSystem, error) {
	var (
		out  models.OperatingSystem
		errs *multierror.Error
	)
	if h, err := p.hostname(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("hostname: %w", err))
	} else {
		out.HostName = h
	}
	if err := p.fillOS(&out); err != nil {
		errs = multierror.Append(errs, err)
	}
	return out, errs.ErrorOrNil()
}
