//go:build !windows

package executor

import (
	"context"
	"fmt"

	"github.com/HerbHall/hsnap/pkg/probe"
)

func readRegistry(_ context.Context, s probe.RegistryRead, _ int64) ([]probe.RegistryEntry, error) {
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, s)
}
