package benders

import "github.com/grussorusso/serverledge-estimator/internal/master"

// cutQueue is a circular FIFO of cuts that doubles its buffer when full.
type cutQueue struct {
	data     []master.Cut
	capacity int
	head     int
	tail     int
	size     int
}

func newCutQueue(n int) *cutQueue {
	if n < 1 {
		n = 1
	}
	return &cutQueue{
		data:     make([]master.Cut, n),
		capacity: n,
	}
}

func (q *cutQueue) isEmpty() bool {
	return q.size == 0
}

func (q *cutQueue) isFull() bool {
	return q.size == q.capacity
}

func (q *cutQueue) grow() {
	data := make([]master.Cut, 2*q.capacity)
	for k := 0; k < q.size; k++ {
		data[k] = q.data[(q.head+k)%q.capacity]
	}
	q.data = data
	q.head = 0
	q.tail = q.size
	q.capacity = len(data)
}

// enqueue pushes a cut to the back
func (q *cutQueue) enqueue(c master.Cut) {
	if q.isFull() {
		q.grow()
	}
	q.data[q.tail] = c
	q.tail = (q.tail + 1) % q.capacity
	q.size++
}

// dequeue removes the oldest cut
func (q *cutQueue) dequeue() master.Cut {
	if q.isEmpty() {
		return nil
	}
	c := q.data[q.head]
	q.data[q.head] = nil
	q.head = (q.head + 1) % q.capacity
	q.size--
	return c
}

func (q *cutQueue) len() int {
	return q.size
}

// slice returns the cuts oldest first.
func (q *cutQueue) slice() []master.Cut {
	out := make([]master.Cut, q.size)
	for k := range out {
		out[k] = q.data[(q.head+k)%q.capacity]
	}
	return out
}
