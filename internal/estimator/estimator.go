// Package estimator exposes the latency bounds of a workload: the LP/MILP
// relaxation, the decomposition bound and the path cover bound.
package estimator

import (
	"context"
	"fmt"

	"github.com/grussorusso/serverledge-estimator/internal/workload"
)

type Kind int

const (
	LowerBound Kind = iota
	UpperBound
)

func (k Kind) String() string {
	if k == UpperBound {
		return "upper_bound"
	}
	return "lower_bound"
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "lower_bound":
		*k = LowerBound
	case "upper_bound":
		*k = UpperBound
	default:
		return fmt.Errorf("unknown estimation kind %q", b)
	}
	return nil
}

// Estimation is a bound on the total latency, in trace time units.
type Estimation struct {
	Kind  Kind    `json:"kind"`
	Value float64 `json:"value"`
	// Ticks is the integer bound before dividing by the round multiplier.
	Ticks uint64 `json:"ticks"`
}

type Estimator interface {
	Name() string
	Estimate(ctx context.Context, in *workload.Instance) (Estimation, error)
}

func scaled(kind Kind, ticks uint64, roundMul float64) Estimation {
	if roundMul <= 0 {
		roundMul = 1
	}
	return Estimation{Kind: kind, Value: float64(ticks) / roundMul, Ticks: ticks}
}
