package config

// Etcd server hostname; results are kept in memory when empty
const ETCD_ADDRESS = "etcd.address"

// TTL (in seconds) of estimation results published to the store
const STORE_TTL = "store.ttl"

// Keepalive window override, in trace time units (seconds before rounding)
const KEEPALIVE = "estimator.keepalive"

// Multiplier applied to trace times before rounding them to integer ticks
const ROUND_MUL = "estimator.round_mul"

// Maximum number of master iterations of the decomposition
const BENDERS_ITERATIONS = "benders.iterations"

// Number of live cuts kept by the decomposition (oldest evicted first)
const BENDERS_MAX_CUTS = "benders.max_cuts"

// MILP backend name (see solver.Register)
const SOLVER_BACKEND = "solver.backend"

// Relative optimality gap for MILP solves
const SOLVER_MIP_GAP = "solver.mip_gap"

// Maximum branch-and-bound nodes per MILP solve (0 = unlimited)
const SOLVER_NODE_LIMIT = "solver.node_limit"

// Search workers of the cumulative feasibility check
const CP_WORKERS = "cp.workers"

// Use integer start times in the LP lower bound (true/false)
const LP_INTEGER_STARTS = "lp.integer_starts"

// HTTP API port
const API_PORT = "api.port"

// Enables prometheus metrics (true/false)
const METRICS_ENABLED = "metrics.enabled"

// Port of the metrics endpoint
const METRICS_PORT = "metrics.port"

// Number of estimations kept in the in-process cache
const CACHE_SIZE = "cache.size"

// Expiration (in seconds) of cached estimations
const CACHE_ITEM_EXPIRATION = "cache.expiration"

// Cleanup interval (in seconds) of the estimation cache
const CACHE_CLEANUP = "cache.cleanup"

// Log level (debug, info, warn, error)
const LOG_LEVEL = "log.level"

// Exports estimation spans to standard output (true/false)
const TRACING_ENABLED = "tracing.enabled"

// Neighbours evaluated by the local search upper bound
const LOCALSEARCH_ITERATIONS = "localsearch.iterations"

// Random seed of the local search
const LOCALSEARCH_SEED = "localsearch.seed"
