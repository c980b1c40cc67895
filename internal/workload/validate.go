package workload

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Validate checks the invocation trace and the application table. It
// reports every violation at once, wrapped in ErrInvalidInput.
func (in *Instance) Validate() error {
	var result *multierror.Error
	n := len(in.Arrival)
	if len(in.Duration) != n {
		result = multierror.Append(result, fmt.Errorf("%d durations for %d arrivals", len(in.Duration), n))
	}
	if len(in.App) != n {
		result = multierror.Append(result, fmt.Errorf("%d app ids for %d arrivals", len(in.App), n))
	}
	for i, a := range in.App {
		if a >= uint64(len(in.AppColdStart)) {
			result = multierror.Append(result, fmt.Errorf("invocation %d references unknown app %d", i, a))
		}
	}
	return wrapInvalid(result)
}

// ValidateFleet additionally checks resource dimensions and that every
// application fits on at least one host by itself.
func (in *Instance) ValidateFleet() error {
	if err := in.Validate(); err != nil {
		return err
	}
	var result *multierror.Error
	if len(in.HostResources) == 0 {
		result = multierror.Append(result, fmt.Errorf("no hosts"))
	}
	if len(in.AppResources) != len(in.AppColdStart) {
		result = multierror.Append(result, fmt.Errorf("%d resource vectors for %d apps", len(in.AppResources), len(in.AppColdStart)))
	}
	r := in.Dims()
	for h, caps := range in.HostResources {
		if len(caps) != r {
			result = multierror.Append(result, fmt.Errorf("host %d has %d resources, expected %d", h, len(caps), r))
		}
	}
	for a, dem := range in.AppResources {
		if len(dem) != r {
			result = multierror.Append(result, fmt.Errorf("app %d has %d resources, expected %d", a, len(dem), r))
			continue
		}
		if !in.fitsSomewhere(dem) {
			result = multierror.Append(result, fmt.Errorf("app %d does not fit on any host", a))
		}
	}
	return wrapInvalid(result)
}

func (in *Instance) fitsSomewhere(dem []uint64) bool {
	for _, caps := range in.HostResources {
		if len(caps) != len(dem) {
			continue
		}
		ok := true
		for k := range dem {
			if dem[k] > caps[k] {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func wrapInvalid(result *multierror.Error) error {
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}
