// Package simplex is a pure Go MILP backend: LP relaxations are solved with
// gonum's simplex and integrality is recovered by best-first branch and bound.
package simplex

import (
	"fmt"
	"math"

	"github.com/grussorusso/serverledge-estimator/internal/solver"
)

const Name = "simplex"

func init() {
	solver.Register(Name, New)
}

type variable struct {
	lb, ub  float64
	integer bool
	name    string
}

type row struct {
	lb, ub float64
	terms  []solver.Term
}

// Model implements solver.Model.
type Model struct {
	vars  []variable
	rows  []row
	obj   []float64
	sense solver.Sense

	// Tolerance is passed to the simplex as the reduced cost threshold.
	Tolerance float64
	// IntTolerance is the distance from an integer under which a value counts as integral.
	IntTolerance float64

	status    solver.Status
	values    []float64
	objective float64
	nodes     int
}

func New() solver.Model {
	return &Model{Tolerance: 1e-9, IntTolerance: 1e-8}
}

func (m *Model) addVar(lb, ub float64, integer bool, name string) solver.Var {
	if math.IsInf(lb, -1) || math.IsNaN(lb) {
		panic(fmt.Sprintf("simplex: variable %q needs a finite lower bound", name))
	}
	m.vars = append(m.vars, variable{lb: lb, ub: ub, integer: integer, name: name})
	m.obj = append(m.obj, 0)
	return solver.Var(len(m.vars) - 1)
}

func (m *Model) AddBoolVar(name string) solver.Var {
	return m.addVar(0, 1, true, name)
}

func (m *Model) AddIntVar(lb, ub float64, name string) solver.Var {
	return m.addVar(math.Ceil(lb), math.Floor(ub), true, name)
}

func (m *Model) AddNumVar(lb, ub float64, name string) solver.Var {
	return m.addVar(lb, ub, false, name)
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

func (m *Model) Value(v solver.Var) float64 {
	if m.values == nil {
		return 0
	}
	return m.values[v]
}

func (m *Model) ObjectiveValue() float64 { return m.objective }

func (m *Model) Status() solver.Status { return m.status }

func (m *Model) NumVars() int { return len(m.vars) }

func (m *Model) NumConstraints() int { return len(m.rows) }

// Nodes returns the branch and bound nodes explored by the last Solve.
func (m *Model) Nodes() int { return m.nodes }

// minCost returns the objective as a minimization cost vector.
func (m *Model) minCost() []float64 {
	c := make([]float64, len(m.obj))
	for j, v := range m.obj {
		if m.sense == solver.Maximize {
			c[j] = -v
		} else {
			c[j] = v
		}
	}
	return c
}
