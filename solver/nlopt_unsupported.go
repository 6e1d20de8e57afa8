//go:build windows || no_cgo

package solver

import (
	"context"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
)

func solveNLopt(ctx context.Context, p *Problem, opts Options, logger golog.Logger) (Summary, error) {
	return Summary{}, errors.Errorf("solver family %q is unsupported on this platform", opts.Family)
}
