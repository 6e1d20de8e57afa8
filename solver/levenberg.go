package solver

import (
	"context"
	"math"
	"runtime"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	maxLambda = 1e12
	minLambda = 1e-15
	// diagFloor keeps the Marquardt damping term away from zero on
	// columns with no influence.
	diagFloor = 1e-6
)

// solveLeastSquares runs damped Gauss-Newton iteration on the normal
// equations: at each step it solves (JᵀJ + λ diag(JᵀJ)) δ = -Jᵀr with a
// numeric forward-difference Jacobian and applies x ← x + δ when the step
// reduces the cost. FamilyGaussNewton pins λ at zero and fails instead of
// damping when a step does not improve.
func solveLeastSquares(ctx context.Context, p *Problem, opts Options, logger golog.Logger) (Summary, error) {
	n := p.NumParameters()
	m := p.NumResiduals()

	x := p.gather()
	defer func() { p.scatter(x) }()

	r := make([]float64, m)
	if err := p.evalInto(x, r); err != nil {
		return Summary{}, errors.Wrap(err, "evaluating initial residuals")
	}
	cost := 0.5 * floats.Dot(r, r)
	summary := Summary{InitialCost: cost, FinalCost: cost}

	lambda := opts.InitialLambda
	gaussNewton := opts.Family == FamilyGaussNewton
	if gaussNewton {
		lambda = 0
	}

	rVec := mat.NewVecDense(m, r)
	jac := mat.NewDense(m, n, nil)
	jtj := mat.NewDense(n, n, nil)
	normal := mat.NewSymDense(n, nil)
	grad := mat.NewVecDense(n, nil)
	step := mat.NewVecDense(n, nil)
	xNew := make([]float64, n)
	rNew := make([]float64, m)

	for iter := 1; iter <= opts.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			summary.Message = "cancelled"
			return summary, err
		}
		summary.Iterations = iter

		if err := p.numericJacobian(x, r, jac, opts.GradientStep); err != nil {
			return summary, err
		}
		jtj.Mul(jac.T(), jac)
		grad.MulVec(jac.T(), rVec)

		if floats.Norm(grad.RawVector().Data, math.Inf(1)) <= opts.GradientTolerance {
			summary.Converged = true
			summary.Message = "gradient below tolerance"
			return summary, nil
		}

		accepted := false
		for !accepted {
			for i := 0; i < n; i++ {
				for j := i; j < n; j++ {
					v := jtj.At(i, j)
					if i == j {
						v += lambda * math.Max(jtj.At(i, i), diagFloor)
					}
					normal.SetSym(i, j, v)
				}
			}

			var chol mat.Cholesky
			solved := chol.Factorize(normal)
			if solved {
				solved = chol.SolveVecTo(step, grad) == nil
			}
			if !solved {
				if gaussNewton {
					summary.Message = "normal equations are singular"
					return summary, errors.Wrap(ErrDidNotConverge, summary.Message)
				}
				lambda *= 10
				if lambda > maxLambda {
					summary.Message = "damping limit reached on singular normal equations"
					return summary, errors.Wrap(ErrDidNotConverge, summary.Message)
				}
				continue
			}

			for j := 0; j < n; j++ {
				xNew[j] = x[j] - step.AtVec(j)
			}
			evalErr := p.evalInto(xNew, rNew)
			if evalErr == nil {
				newCost := 0.5 * floats.Dot(rNew, rNew)
				if newCost <= cost {
					relDrop := 0.0
					if cost > 0 {
						relDrop = (cost - newCost) / cost
					}
					copy(x, xNew)
					copy(r, rNew)
					cost = newCost
					summary.FinalCost = cost
					accepted = true
					if !gaussNewton {
						lambda = math.Max(lambda/10, minLambda)
					}
					if opts.LogProgress {
						logger.Debugf("iteration %d cost %.6e lambda %.3e", iter, cost, lambda)
					}
					if relDrop <= opts.FuncTolerance {
						summary.Converged = true
						summary.Message = "relative cost change below tolerance"
						return summary, nil
					}
					continue
				}
			}

			if gaussNewton {
				summary.Message = "step did not reduce cost"
				if evalErr != nil {
					summary.Message = evalErr.Error()
				}
				return summary, errors.Wrap(ErrDidNotConverge, summary.Message)
			}
			lambda *= 10
			if lambda > maxLambda {
				summary.Message = "damping limit reached"
				return summary, errors.Wrap(ErrDidNotConverge, summary.Message)
			}
		}
	}

	summary.Message = "iteration limit reached"
	return summary, errors.Wrap(ErrDidNotConverge, summary.Message)
}

// numericJacobian fills jac with forward differences of the residual
// vector around x, given r0 = r(x). Columns are split across workers;
// residual evaluation must be pure for this to be safe.
func (p *Problem) numericJacobian(x, r0 []float64, jac *mat.Dense, step float64) error {
	workers := runtime.GOMAXPROCS(0)
	if workers > p.n {
		workers = p.n
	}
	var group errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		group.Go(func() error {
			xw := make([]float64, len(x))
			copy(xw, x)
			rw := make([]float64, p.m)
			for j := w; j < p.n; j += workers {
				orig := xw[j]
				h := step * math.Max(1, math.Abs(orig))
				xw[j] = orig + h
				if err := p.evalInto(xw, rw); err != nil {
					return errors.Wrapf(err, "evaluating jacobian column %d", j)
				}
				xw[j] = orig
				for i := 0; i < p.m; i++ {
					jac.Set(i, j, (rw[i]-r0[i])/h)
				}
			}
			return nil
		})
	}
	return group.Wait()
}
