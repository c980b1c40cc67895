package estimator

import (
	"github.com/grussorusso/serverledge-estimator/internal/benders"
	"github.com/grussorusso/serverledge-estimator/internal/solver"
	"github.com/grussorusso/serverledge-estimator/internal/workload"
)

// Errors returned by the estimators; test them with errors.Is.
var (
	ErrInvalidInput   = workload.ErrInvalidInput
	ErrSolverContract = solver.ErrSolverContract
	ErrNumerical      = benders.ErrNumerical
)
