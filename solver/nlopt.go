//go:build !windows && !no_cgo

package solver

import (
	"context"
	"math"

	"github.com/edaniels/golog"
	"github.com/go-nlopt/nlopt"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/floats"
)

// solveNLopt minimizes the summed squared residuals as a scalar objective
// with a forward-difference gradient, the same way the native families
// differentiate. Gradient is an unsafe C buffer mutated in place.
func solveNLopt(ctx context.Context, p *Problem, opts Options, logger golog.Logger) (Summary, error) {
	algo := nlopt.LD_SLSQP
	if opts.Family == FamilyNLoptLBFGS {
		algo = nlopt.LD_LBFGS
	}
	opt, err := nlopt.NewNLopt(algo, uint(p.NumParameters()))
	if err != nil {
		return Summary{}, errors.Wrap(err, "nlopt creation error")
	}
	defer opt.Destroy()

	x0 := p.gather()
	scratch := make([]float64, p.NumResiduals())
	if err := p.evalInto(x0, scratch); err != nil {
		return Summary{}, errors.Wrap(err, "evaluating initial residuals")
	}
	initialCost := 0.5 * floats.Dot(scratch, scratch)
	summary := Summary{InitialCost: initialCost, FinalCost: initialCost}

	costAt := func(x []float64) (float64, error) {
		if err := p.evalInto(x, scratch); err != nil {
			return 0, err
		}
		return 0.5 * floats.Dot(scratch, scratch), nil
	}

	evals := 0
	var evalErr error
	xBump := make([]float64, len(x0))
	objective := func(x, gradient []float64) float64 {
		evals++
		if ctx.Err() != nil {
			utils.UncheckedError(opt.ForceStop())
			return math.Inf(1)
		}
		cost, err := costAt(x)
		if err != nil {
			evalErr = err
			utils.UncheckedError(opt.ForceStop())
			return math.Inf(1)
		}
		if len(gradient) > 0 {
			copy(xBump, x)
			for i := range gradient {
				orig := xBump[i]
				h := opts.GradientStep * math.Max(1, math.Abs(orig))
				xBump[i] = orig + h
				bumped, err := costAt(xBump)
				xBump[i] = orig
				if err != nil {
					evalErr = err
					utils.UncheckedError(opt.ForceStop())
					return math.Inf(1)
				}
				gradient[i] = (bumped - cost) / h
			}
		}
		return cost
	}

	err = multierr.Combine(
		opt.SetMinObjective(objective),
		opt.SetFtolRel(opts.FuncTolerance),
		opt.SetMaxEval(opts.MaxIterations),
	)
	if err != nil {
		return summary, errors.Wrap(err, "configuring nlopt")
	}

	best, minCost, optErr := opt.Optimize(x0)
	summary.Iterations = evals
	switch {
	case evalErr != nil:
		return summary, evalErr
	case ctx.Err() != nil:
		summary.Message = "cancelled"
		return summary, ctx.Err()
	case optErr != nil:
		summary.Message = optErr.Error()
		return summary, errors.Wrapf(ErrDidNotConverge, "nlopt: %s", optErr)
	}

	p.scatter(best)
	summary.FinalCost = minCost
	summary.Converged = true
	summary.Message = "nlopt reported success"
	if opts.LogProgress {
		logger.Debugf("nlopt finished after %d evaluations cost %.6e", evals, minCost)
	}
	return summary, nil
}
