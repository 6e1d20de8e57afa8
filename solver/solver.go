// Package solver minimizes sparse nonlinear least-squares problems built
// from residuals over shared parameter blocks. Solving mutates the bound
// blocks in place, so every handle issued by the registry sees the solved
// values. The native families implement damped Gauss-Newton iteration with
// numeric Jacobians; the nlopt families drive the same residuals through
// gradient-based NLopt algorithms.
package solver

import (
	"context"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/UbiCALab/industrial-calibration/calib"
)

// ErrDidNotConverge is the base error for solves that stop before meeting
// the convergence criteria. The parameter blocks hold the best values
// found so far.
var ErrDidNotConverge = errors.New("solver did not converge")

// A Residual is one cost term of a least-squares problem.
type Residual interface {
	// Blocks returns the parameter blocks the residual varies over, in
	// the order Eval expects its params.
	Blocks() []*calib.ParameterBlock

	// Dim returns the number of scalars Eval writes.
	Dim() int

	// Eval computes the residual at the candidate values in params, which
	// match Blocks element for element, writing Dim scalars to dst. It
	// must be a pure function of params so evaluations can run in
	// parallel.
	Eval(params [][]float64, dst []float64) error
}

// Family names an optimization algorithm.
type Family string

// Supported solver families. The native families need no cgo; the nlopt
// families require the nlopt library and are unavailable on windows or
// no_cgo builds.
const (
	FamilyLevenbergMarquardt Family = "levenberg_marquardt"
	FamilyGaussNewton        Family = "gauss_newton"
	FamilyNLoptSLSQP         Family = "nlopt_slsqp"
	FamilyNLoptLBFGS         Family = "nlopt_lbfgs"
)

// CheckValid returns an error if the family is unknown.
func (f Family) CheckValid() error {
	switch f {
	case FamilyLevenbergMarquardt, FamilyGaussNewton, FamilyNLoptSLSQP, FamilyNLoptLBFGS:
		return nil
	default:
		return errors.Errorf("unknown solver family %q", f)
	}
}

func (f Family) nlopt() bool {
	return f == FamilyNLoptSLSQP || f == FamilyNLoptLBFGS
}

// Options configures a solve. Zero fields take their DefaultOptions
// values.
type Options struct {
	Family Family
	// MaxIterations caps native solver iterations, or objective
	// evaluations for the nlopt families.
	MaxIterations int
	// FuncTolerance stops the solve when the relative cost drop of an
	// accepted step falls below it.
	FuncTolerance float64
	// GradientTolerance stops the solve when the largest gradient entry
	// falls below it.
	GradientTolerance float64
	// GradientStep scales the forward-difference step used for numeric
	// derivatives.
	GradientStep float64
	// InitialLambda seeds the Levenberg-Marquardt damping factor.
	InitialLambda float64
	// LogProgress logs per-iteration cost at debug level.
	LogProgress bool
}

// DefaultOptions returns the solver configuration used when the caller
// does not override one.
func DefaultOptions() Options {
	return Options{
		Family:            FamilyLevenbergMarquardt,
		MaxIterations:     100,
		FuncTolerance:     1e-10,
		GradientTolerance: 1e-12,
		GradientStep:      1e-7,
		InitialLambda:     1e-4,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Family == "" {
		o.Family = def.Family
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = def.MaxIterations
	}
	if o.FuncTolerance <= 0 {
		o.FuncTolerance = def.FuncTolerance
	}
	if o.GradientTolerance <= 0 {
		o.GradientTolerance = def.GradientTolerance
	}
	if o.GradientStep <= 0 {
		o.GradientStep = def.GradientStep
	}
	if o.InitialLambda <= 0 {
		o.InitialLambda = def.InitialLambda
	}
	return o
}

// A Summary reports how a solve went.
type Summary struct {
	Converged   bool
	Iterations  int
	InitialCost float64
	FinalCost   float64
	// Residuals and Parameters are the problem's residual scalar count
	// and free parameter scalar count.
	Residuals  int
	Parameters int
	Message    string
}

type boundResidual struct {
	res     Residual
	blocks  []*calib.ParameterBlock
	offsets []int
	// out is the residual's offset into the stacked residual vector.
	out int
}

// A Problem is a set of residuals over shared parameter blocks. Residuals
// naming the same block optimize the same scalars.
type Problem struct {
	residuals []boundResidual
	blocks    []*calib.ParameterBlock
	blockIdx  map[*calib.ParameterBlock]int
	blockOff  []int
	// n free parameter scalars, m residual scalars
	n, m int
}

// NewProblem returns an empty problem.
func NewProblem() *Problem {
	return &Problem{blockIdx: map[*calib.ParameterBlock]int{}}
}

// AddResidual adds one cost term, registering any of its parameter blocks
// not yet part of the problem.
func (p *Problem) AddResidual(r Residual) error {
	if r == nil {
		return errors.New("nil residual")
	}
	if r.Dim() <= 0 {
		return errors.Errorf("residual dimension must be positive, got %d", r.Dim())
	}
	blocks := r.Blocks()
	if len(blocks) == 0 {
		return errors.New("residual varies over no parameter blocks")
	}
	br := boundResidual{res: r, blocks: blocks, out: p.m}
	for _, pb := range blocks {
		if pb == nil {
			return errors.New("residual references a nil parameter block")
		}
		idx, ok := p.blockIdx[pb]
		if !ok {
			idx = len(p.blocks)
			p.blockIdx[pb] = idx
			p.blocks = append(p.blocks, pb)
			p.blockOff = append(p.blockOff, p.n)
			p.n += pb.Len()
		}
		br.offsets = append(br.offsets, p.blockOff[idx])
	}
	p.residuals = append(p.residuals, br)
	p.m += r.Dim()
	return nil
}

// NumResiduals returns the number of residual scalars.
func (p *Problem) NumResiduals() int { return p.m }

// NumParameters returns the number of free parameter scalars.
func (p *Problem) NumParameters() int { return p.n }

// NumBlocks returns the number of distinct parameter blocks.
func (p *Problem) NumBlocks() int { return len(p.blocks) }

// gather flattens the blocks' current values into one parameter vector.
func (p *Problem) gather() []float64 {
	x := make([]float64, p.n)
	for i, pb := range p.blocks {
		copy(x[p.blockOff[i]:p.blockOff[i]+pb.Len()], pb.Values())
	}
	return x
}

// scatter writes a parameter vector back into the blocks.
func (p *Problem) scatter(x []float64) {
	for i, pb := range p.blocks {
		off := p.blockOff[i]
		utils.UncheckedError(pb.Set(x[off : off+pb.Len()]))
	}
}

// evalInto stacks every residual's value at x into dst. Safe to call
// concurrently with distinct x and dst.
func (p *Problem) evalInto(x, dst []float64) error {
	for i := range p.residuals {
		br := &p.residuals[i]
		params := make([][]float64, len(br.blocks))
		for k, pb := range br.blocks {
			off := br.offsets[k]
			params[k] = x[off : off+pb.Len()]
		}
		if err := br.res.Eval(params, dst[br.out:br.out+br.res.Dim()]); err != nil {
			return err
		}
	}
	return nil
}

// Solve minimizes the problem's summed squared residuals, writing solved
// values back into the bound parameter blocks. On ErrDidNotConverge the
// blocks hold the best values found and the summary is still filled in.
func Solve(ctx context.Context, p *Problem, opts Options, logger golog.Logger) (Summary, error) {
	if p == nil || p.NumResiduals() == 0 {
		return Summary{}, errors.New("problem has no residuals")
	}
	if p.NumParameters() == 0 {
		return Summary{}, errors.New("problem has no free parameters")
	}
	opts = opts.withDefaults()
	if err := opts.Family.CheckValid(); err != nil {
		return Summary{}, err
	}
	var summary Summary
	var err error
	if opts.Family.nlopt() {
		summary, err = solveNLopt(ctx, p, opts, logger)
	} else {
		summary, err = solveLeastSquares(ctx, p, opts, logger)
	}
	summary.Residuals = p.NumResiduals()
	summary.Parameters = p.NumParameters()
	return summary, err
}
