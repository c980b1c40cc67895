package api

import "github.com/grussorusso/serverledge-estimator/internal/estimator"

// Response is the outcome of one estimation, returned directly for
// synchronous requests and published to the store for asynchronous ones.
type Response struct {
	Success    bool                  `json:"success"`
	Method     string                `json:"method"`
	Estimation *estimator.Estimation `json:"estimation,omitempty"`
	Iterations int                   `json:"iterations,omitempty"`
	Cached     bool                  `json:"cached"`
	Error      string                `json:"error,omitempty"`
}

type AsyncResponse struct {
	ReqId string `json:"reqId"`
}

type StatusInformation struct {
	Estimations   int      `json:"estimations"`
	Failures      int      `json:"failures"`
	AvgElapsedMs  float64  `json:"avgElapsedMs"`
	AvgIterations float64  `json:"avgIterations"`
	CacheItems    int      `json:"cacheItems"`
	CacheHits     int64    `json:"cacheHits"`
	CacheMisses   int64    `json:"cacheMisses"`
	Methods       []string `json:"methods"`
	Backends      []string `json:"backends"`
}
