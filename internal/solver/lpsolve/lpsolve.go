// Package lpsolve is the MILP backend built on lp_solve through golp. The
// model is buffered in Go and handed to lp_solve in one shot by Solve, so a
// Model can be solved more than once.
package lpsolve

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/draffensperger/golp"
	"github.com/grussorusso/serverledge-estimator/internal/solver"
)

const Name = "lpsolve"

// infinity is lp_solve's default bound for "no bound".
const infinity = 1e30

// presolved is lp_solve's PRESOLVED result, which golp does not name.
const presolved golp.SolutionType = 9

func init() {
	solver.Register(Name, New)
}

type column struct {
	lb, ub  float64
	integer bool
	name    string
}

type row struct {
	lb, ub float64
	terms  []solver.Term
}

// Model implements solver.Model. Params.RelativeGap and Params.NodeLimit are
// not forwarded: golp exposes neither, and lp_solve's own gaps are tighter
// than the estimators need.
type Model struct {
	cols  []column
	rows  []row
	obj   []float64
	sense solver.Sense

	// Verbosity is lp_solve's log level.
	Verbosity golp.VerboseLevel
	// IntTolerance is the distance from an integer under which a value is snapped.
	IntTolerance float64

	status    solver.Status
	values    []float64
	objective float64
}

func New() solver.Model {
	return &Model{Verbosity: golp.NEUTRAL, IntTolerance: 1e-6}
}

func (m *Model) addCol(lb, ub float64, integer bool, name string) solver.Var {
	m.cols = append(m.cols, column{lb: lb, ub: ub, integer: integer, name: name})
	m.obj = append(m.obj, 0)
	return solver.Var(len(m.cols) - 1)
}

func (m *Model) AddBoolVar(name string) solver.Var {
	return m.addCol(0, 1, true, name)
}

func (m *Model) AddIntVar(lb, ub float64, name string) solver.Var {
	return m.addCol(math.Ceil(lb), math.Floor(ub), true, name)
}

func (m *Model) AddNumVar(lb, ub float64, name string) solver.Var {
	return m.addCol(lb, ub, false, name)
}

// AddConstraint merges repeated variables, so callers may emit a term twice.
func (m *Model) AddConstraint(lb, ub float64, terms ...solver.Term) {
	merged := make([]solver.Term, 0, len(terms))
	pos := make(map[solver.Var]int, len(terms))
	for _, t := range terms {
		if k, ok := pos[t.Var]; ok {
			merged[k].Coef += t.Coef
			continue
		}
		pos[t.Var] = len(merged)
		merged = append(merged, t)
	}
	m.rows = append(m.rows, row{lb: lb, ub: ub, terms: merged})
}

func (m *Model) SetObjective(sense solver.Sense, terms ...solver.Term) {
	m.sense = sense
	for j := range m.obj {
		m.obj[j] = 0
	}
	for _, t := range terms {
		m.obj[t.Var] += t.Coef
	}
}

func clamp(v float64) float64 {
	return math.Max(-infinity, math.Min(infinity, v))
}

// build translates the buffered model. Ranged rows become a pair of
// one-sided rows; a row without terms is checked here and never sent.
func (m *Model) build() (*golp.LP, bool, error) {
	lp := golp.NewLP(0, len(m.cols))
	lp.SetVerboseLevel(m.Verbosity)
	for _, r := range m.rows {
		entries := make([]golp.Entry, 0, len(r.terms))
		for _, t := range r.terms {
			if t.Coef != 0 {
				entries = append(entries, golp.Entry{Col: int(t.Var), Val: t.Coef})
			}
		}
		if len(entries) == 0 {
			if r.lb > 0 || r.ub < 0 {
				return nil, false, nil
			}
			continue
		}
		lower, upper := !math.IsInf(r.lb, -1), !math.IsInf(r.ub, 1)
		var err error
		switch {
		case lower && upper && r.lb == r.ub:
			err = lp.AddConstraintSparse(entries, golp.EQ, r.lb)
		default:
			if lower {
				err = lp.AddConstraintSparse(entries, golp.GE, r.lb)
			}
			if err == nil && upper {
				err = lp.AddConstraintSparse(entries, golp.LE, r.ub)
			}
		}
		if err != nil {
			return nil, false, fmt.Errorf("%w: lp_solve: %v", solver.ErrSolverContract, err)
		}
	}
	lp.SetObjFn(m.obj)
	if m.sense == solver.Maximize {
		lp.SetMaximize()
	}
	for j, c := range m.cols {
		lp.SetColName(j, c.name)
		lp.SetBounds(j, clamp(c.lb), clamp(c.ub))
		if c.integer {
			lp.SetInt(j, true)
		}
	}
	return lp, true, nil
}

// Solve hands the model to lp_solve. The context deadline becomes lp_solve's
// timeout; cancellation returns at once and lets the detached solve finish
// on its own.
func (m *Model) Solve(ctx context.Context, _ solver.Params) (solver.Status, error) {
	m.status, m.values, m.objective = solver.NotSolved, nil, 0
	if err := ctx.Err(); err != nil {
		return m.status, err
	}
	for _, c := range m.cols {
		if c.lb > c.ub {
			m.status = solver.Infeasible
			return m.status, nil
		}
	}
	if len(m.cols) == 0 {
		m.status = solver.Optimal
		for _, r := range m.rows {
			if r.lb > 0 || r.ub < 0 {
				m.status = solver.Infeasible
			}
		}
		return m.status, nil
	}
	lp, ok, err := m.build()
	if err != nil {
		m.status = solver.Abnormal
		return m.status, err
	}
	if !ok {
		m.status = solver.Infeasible
		return m.status, nil
	}
	if deadline, ok := ctx.Deadline(); ok {
		secs := int(math.Ceil(time.Until(deadline).Seconds()))
		if secs < 1 {
			secs = 1
		}
		lp.SetTimeout(secs)
	}

	done := make(chan golp.SolutionType, 1)
	go func() {
		done <- lp.Solve()
	}()
	var res golp.SolutionType
	select {
	case <-ctx.Done():
		return m.status, ctx.Err()
	case res = <-done:
	}

	switch res {
	case golp.OPTIMAL, presolved:
		m.status = solver.Optimal
	case golp.SUBOPTIMAL:
		if err := ctx.Err(); err != nil {
			return m.status, err
		}
		m.status = solver.Feasible
	case golp.INFEASIBLE:
		m.status = solver.Infeasible
		return m.status, nil
	case golp.UNBOUNDED:
		m.status = solver.Unbounded
		return m.status, nil
	case golp.TIMEOUT, golp.USERABORT:
		if err := ctx.Err(); err != nil {
			return m.status, err
		}
		return m.status, context.DeadlineExceeded
	default:
		m.status = solver.Abnormal
		return m.status, fmt.Errorf("%w: lp_solve returned %s", solver.ErrSolverContract, res)
	}
	m.values = m.snap(lp.Variables())
	m.objective = 0
	for j, v := range m.values {
		m.objective += m.obj[j] * v
	}
	return m.status, nil
}

func (m *Model) snap(x []float64) []float64 {
	out := make([]float64, len(m.cols))
	for j := range out {
		if j >= len(x) {
			break
		}
		v := x[j]
		if c := m.cols[j]; c.integer && math.Abs(v-math.Round(v)) <= m.IntTolerance {
			v = math.Round(v)
		}
		out[j] = v
	}
	return out
}

func (m *Model) Value(v solver.Var) float64 {
	if m.values == nil {
		return 0
	}
	return m.values[v]
}

func (m *Model) ObjectiveValue() float64 { return m.objective }

func (m *Model) Status() solver.Status { return m.status }

func (m *Model) NumVars() int { return len(m.cols) }

func (m *Model) NumConstraints() int { return len(m.rows) }
