package logging

import (
	"sync"
	"time"
)

const Capacity = 100

// Record summarizes one completed estimation.
type Record struct {
	Method     string
	Bound      uint64
	Iterations int
	Elapsed    time.Duration
	Failed     bool
}

// Log keeps the last Capacity estimation records in a ring buffer.
type Log struct {
	ringPointer  int
	reportBuffer [Capacity]*Record //ring buffer
	total        int
	mtx          sync.RWMutex
}

type LogStatus struct {
	Estimations   int
	Failures      int
	AvgElapsedMs  float64
	AvgIterations float64
}

func (l *Log) Update(r Record) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	//insert new record in the ring
	l.reportBuffer[l.ringPointer] = &r
	l.ringPointer = (l.ringPointer + 1) % Capacity
	l.total++
}

// GetLogStatus aggregates the records currently held in the ring.
func (l *Log) GetLogStatus() LogStatus {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	var elapsed, iterations float64
	var counter, failures int

	for _, r := range l.reportBuffer {
		if r == nil {
			continue
		}
		if r.Failed {
			failures++
		}
		elapsed += float64(r.Elapsed.Milliseconds())
		iterations += float64(r.Iterations)
		counter++
	}

	status := LogStatus{Estimations: l.total, Failures: failures}
	if counter > 0 {
		status.AvgElapsedMs = elapsed / float64(counter)
		status.AvgIterations = iterations / float64(counter)
	}
	return status
}

// Recent returns the records in insertion order, oldest first.
func (l *Log) Recent() []Record {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	out := make([]Record, 0, Capacity)
	for k := 0; k < Capacity; k++ {
		r := l.reportBuffer[(l.ringPointer+k)%Capacity]
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}
