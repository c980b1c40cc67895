package localsearch

import (
	"context"
	"math/rand"
	"time"

	"github.com/grussorusso/serverledge-estimator/internal/logging"
	"github.com/grussorusso/serverledge-estimator/internal/workload"
	"github.com/sirupsen/logrus"
)

const DefaultIterations = 2000

type Options struct {
	// Iterations is the number of neighbours evaluated after the greedy start.
	Iterations int
	Seed       int64
}

func DefaultOptions() Options {
	return Options{Iterations: DefaultIterations, Seed: 1}
}

// Result is the best schedule found and how it was reached.
type Result struct {
	Schedule *Schedule
	Initial  uint64
	Accepted int
	Improved int
	Elapsed  time.Duration
}

// Search starts from the greedy schedule and hill climbs over the decoder's
// decisions. Neighbours that do not worsen the latency are accepted.
func Search(ctx context.Context, in *workload.Instance, opts Options) (*Result, error) {
	if err := in.ValidateFleet(); err != nil {
		return nil, err
	}
	begin := time.Now()
	rng := rand.New(rand.NewSource(opts.Seed))
	cur := initialPlan(in)
	curSched := decode(in, cur)
	res := &Result{Schedule: curSched, Initial: curSched.Latency}

	if in.Len() > 0 {
		for it := 0; it < opts.Iterations; it++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			next := cur.clone()
			move(rng, next, len(in.HostResources))
			s := decode(in, next)
			if s.Latency > curSched.Latency {
				continue
			}
			res.Accepted++
			cur, curSched = next, s
			if s.Latency < res.Schedule.Latency {
				res.Schedule = s
				res.Improved++
			}
		}
	}
	res.Elapsed = time.Since(begin)
	logging.GetLogger().WithFields(logrus.Fields{
		"initial":  res.Initial,
		"best":     res.Schedule.Latency,
		"accepted": res.Accepted,
		"elapsed":  res.Elapsed,
	}).Debug("local search finished")
	return res, nil
}

// move applies one random change to p. Swaps in the order stay within three
// positions; host -1 unpins.
func move(rng *rand.Rand, p plan, hosts int) {
	n := len(p.order)
	switch rng.Intn(3) {
	case 0:
		if n < 2 {
			return
		}
		x := rng.Intn(n)
		y := x + rng.Intn(7) - 3
		if y < 0 || y >= n || y == x {
			y = (x + 1) % n
		}
		p.order[x], p.order[y] = p.order[y], p.order[x]
	case 1:
		i := rng.Intn(n)
		p.cold[i] = !p.cold[i]
	default:
		i := rng.Intn(n)
		p.host[i] = rng.Intn(hosts+1) - 1
	}
}
