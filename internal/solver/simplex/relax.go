package simplex

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/grussorusso/serverledge-estimator/internal/solver"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

const (
	feasTol        = 1e-7
	perturbation   = 1e-9
	artificialCost = 1e6
)

var errCrash = errors.New("artificial basis left an artificial column in the optimum")

// relaxation is the outcome of one LP solve under node bounds.
type relaxation struct {
	status solver.Status
	cost   float64 // minimization cost
	x      []float64
}

// relax solves the LP relaxation with variable bounds lo/hi. Variables are
// shifted to y = x - lo >= 0; every finite side of a row and every finite
// upper bound becomes a <= row with its own slack, which keeps A = [G I]
// at full row rank for gonum's standard form.
func (m *Model) relax(ctx context.Context, c, lo, hi []float64) (relaxation, error) {
	n := len(m.vars)
	x := make([]float64, n)
	copy(x, lo)

	for j := 0; j < n; j++ {
		if lo[j] > hi[j]+feasTol {
			return relaxation{status: solver.Infeasible}, nil
		}
	}

	// columns still free at this node
	col := make([]int, n)
	free := make([]int, 0, n)
	for j := 0; j < n; j++ {
		if hi[j]-lo[j] > feasTol {
			col[j] = len(free)
			free = append(free, j)
		} else {
			col[j] = -1
		}
	}

	type denseRow struct {
		coef []float64
		rhs  float64
	}
	var rows []denseRow
	used := make([]bool, len(free))

	for _, r := range m.rows {
		shift := 0.0
		active := false
		for _, t := range r.terms {
			shift += t.Coef * lo[t.Var]
			if col[t.Var] >= 0 && t.Coef != 0 {
				active = true
			}
		}
		if !active {
			if shift < r.lb-feasTol || shift > r.ub+feasTol {
				return relaxation{status: solver.Infeasible}, nil
			}
			continue
		}
		if !math.IsInf(r.ub, 1) {
			dr := denseRow{coef: make([]float64, len(free)), rhs: r.ub - shift}
			for _, t := range r.terms {
				if k := col[t.Var]; k >= 0 {
					dr.coef[k] += t.Coef
					used[k] = used[k] || t.Coef != 0
				}
			}
			rows = append(rows, dr)
		}
		if !math.IsInf(r.lb, -1) {
			dr := denseRow{coef: make([]float64, len(free)), rhs: shift - r.lb}
			for _, t := range r.terms {
				if k := col[t.Var]; k >= 0 {
					dr.coef[k] -= t.Coef
					used[k] = used[k] || t.Coef != 0
				}
			}
			rows = append(rows, dr)
		}
	}
	for k, j := range free {
		if !math.IsInf(hi[j], 1) {
			dr := denseRow{coef: make([]float64, len(free)), rhs: hi[j] - lo[j]}
			dr.coef[k] = 1
			used[k] = true
			rows = append(rows, dr)
		}
	}
	for k, j := range free {
		if !used[k] && c[j] < 0 {
			return relaxation{status: solver.Unbounded}, nil
		}
	}

	base := 0.0
	for j := 0; j < n; j++ {
		base += c[j] * lo[j]
	}
	if len(rows) == 0 {
		return relaxation{status: solver.Optimal, cost: base, x: x}, nil
	}

	// drop columns that appear nowhere; they stay at their lower bound
	keep := make([]int, 0, len(free))
	for k := range free {
		if used[k] {
			keep = append(keep, k)
		}
	}
	nc := len(keep)
	if nc == 0 {
		for _, dr := range rows {
			if dr.rhs < -feasTol {
				return relaxation{status: solver.Infeasible}, nil
			}
		}
		return relaxation{status: solver.Optimal, cost: base, x: x}, nil
	}
	mr := len(rows)
	A := mat.NewDense(mr, nc+mr, nil)
	b := make([]float64, mr)
	cost := make([]float64, nc+mr)
	for p, k := range keep {
		cost[p] = c[free[k]]
	}
	for i, dr := range rows {
		for p, k := range keep {
			if v := dr.coef[k]; v != 0 {
				A.Set(i, p, v)
			}
		}
		A.Set(i, nc+i, 1)
		b[i] = dr.rhs
	}

	opt, y, err := crash(ctx, cost, A, b, m.Tolerance)
	if err != nil && ctx.Err() == nil {
		// gonum's own phase one, then once more with the rows loosened by a
		// hair: degenerate bases occasionally defeat its pivoting rule
		opt, y, err = simplex(ctx, cost, A, b, m.Tolerance, nil)
		if err != nil && ctx.Err() == nil && !errors.Is(err, lp.ErrInfeasible) && !errors.Is(err, lp.ErrUnbounded) {
			for i := range b {
				b[i] += perturbation * float64(1+i%7)
			}
			opt, y, err = simplex(ctx, cost, A, b, m.Tolerance, nil)
		}
	}
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return relaxation{status: solver.NotSolved}, ctx.Err()
		case errors.Is(err, lp.ErrInfeasible):
			return relaxation{status: solver.Infeasible}, nil
		case errors.Is(err, lp.ErrUnbounded):
			return relaxation{status: solver.Unbounded}, nil
		default:
			return relaxation{status: solver.Abnormal}, fmt.Errorf("%w: simplex: %v", solver.ErrSolverContract, err)
		}
	}
	for p, k := range keep {
		x[free[k]] = lo[free[k]] + y[p]
	}
	return relaxation{status: solver.Optimal, cost: base + opt, x: x}, nil
}

// crash starts the simplex from an identity basis. Rows with a negative
// right hand side are negated and get an artificial column priced at
// artificialCost; the others keep their slack. An optimum that leaves an
// artificial above feasTol is reported as errCrash.
func crash(ctx context.Context, cost []float64, A *mat.Dense, b []float64, tol float64) (float64, []float64, error) {
	mr, n := A.Dims()
	var neg []int
	for i, v := range b {
		if v < 0 {
			neg = append(neg, i)
		}
	}
	if len(neg) == 0 {
		basis := make([]int, mr)
		for i := range basis {
			basis[i] = n - mr + i
		}
		return simplex(ctx, cost, A, b, tol, basis)
	}

	price := 1.0
	for _, v := range cost {
		price = math.Max(price, math.Abs(v))
	}
	price *= artificialCost

	ext := mat.NewDense(mr, n+len(neg), nil)
	for i := 0; i < mr; i++ {
		for j := 0; j < n; j++ {
			ext.Set(i, j, A.At(i, j))
		}
	}
	rhs := append([]float64(nil), b...)
	ec := make([]float64, n+len(neg))
	copy(ec, cost)
	basis := make([]int, mr)
	for i := range basis {
		basis[i] = n - mr + i
	}
	for k, i := range neg {
		for j := 0; j < n; j++ {
			if v := ext.At(i, j); v != 0 {
				ext.Set(i, j, -v)
			}
		}
		rhs[i] = -rhs[i]
		ext.Set(i, n+k, 1)
		ec[n+k] = price
		basis[i] = n + k
	}

	_, y, err := simplex(ctx, ec, ext, rhs, tol, basis)
	if err != nil {
		return 0, nil, err
	}
	for k := range neg {
		if y[n+k] > feasTol {
			return 0, nil, errCrash
		}
	}
	opt := 0.0
	for j := 0; j < n; j++ {
		opt += cost[j] * y[j]
	}
	return opt, y[:n], nil
}

// simplex runs gonum's solver on its own goroutine so that ctx can abandon it.
func simplex(ctx context.Context, c []float64, A mat.Matrix, b []float64, tol float64, basis []int) (float64, []float64, error) {
	type result struct {
		opt float64
		x   []float64
		err error
	}
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("%v", r)}
			}
		}()
		opt, x, err := lp.Simplex(c, A, b, tol, basis)
		done <- result{opt: opt, x: x, err: err}
	}()
	select {
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	case r := <-done:
		return r.opt, r.x, r.err
	}
}
