// Package solver is the narrow modelling interface the estimators use to
// talk to a MILP backend. Backends register themselves by name.
package solver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

// ErrSolverContract is returned when a solve does not end in the status the
// caller's formulation guarantees (always Optimal for the estimators).
var ErrSolverContract = errors.New("solver contract violation")

// Inf is the bound used for unbounded constraint sides.
var Inf = math.Inf(1)

type Var int

// Term is coef*var inside a linear expression.
type Term struct {
	Var  Var
	Coef float64
}

type Sense int

const (
	Minimize Sense = iota
	Maximize
)

type Status int

const (
	NotSolved Status = iota
	Optimal
	Feasible
	Infeasible
	Unbounded
	Abnormal
)

func (s Status) String() string {
	switch s {
	case NotSolved:
		return "NOT_SOLVED"
	case Optimal:
		return "OPTIMAL"
	case Feasible:
		return "FEASIBLE"
	case Infeasible:
		return "INFEASIBLE"
	case Unbounded:
		return "UNBOUNDED"
	default:
		return "ABNORMAL"
	}
}

// Params tunes a single solve.
type Params struct {
	// RelativeGap stops branch and bound once (incumbent-bound)/|incumbent| drops below it.
	RelativeGap float64
	// NodeLimit caps explored nodes; 0 means unlimited.
	NodeLimit int
}

func DefaultParams() Params {
	return Params{RelativeGap: 1e-7}
}

// Model is a mixed integer linear program under construction.
type Model interface {
	AddBoolVar(name string) Var
	AddIntVar(lb, ub float64, name string) Var
	AddNumVar(lb, ub float64, name string) Var
	// AddConstraint adds lb <= sum(terms) <= ub; use -Inf/Inf for a free side.
	AddConstraint(lb, ub float64, terms ...Term)
	SetObjective(sense Sense, terms ...Term)
	Solve(ctx context.Context, p Params) (Status, error)
	Value(v Var) float64
	ObjectiveValue() float64
	Status() Status
	NumVars() int
	NumConstraints() int
}

// Factory creates an empty model.
type Factory func() Model

var (
	registry   = make(map[string]Factory)
	registryMu sync.RWMutex
)

// Register makes a backend available under name.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// Lookup returns the factory registered under name.
func Lookup(name string) (Factory, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown solver backend %q", name)
	}
	return f, nil
}

// Backends lists the registered backend names.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RequireOptimal turns any non-optimal outcome into an ErrSolverContract
// error. Errors returned by the backend (cancellation included) are kept.
func RequireOptimal(what string, status Status, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if status != Optimal {
		return fmt.Errorf("%w: %s ended with status %s", ErrSolverContract, what, status)
	}
	return nil
}
