package vibrator

import (
	"container/heap"
	"sync"
)

// stepQueue orders steps by start time. Steps without a start time run
// after every timed step.
type stepQueue []step

func (q stepQueue) Len() int { return len(q) }

func (q stepQueue) Less(i, j int) bool {
	a, b := q[i].startTime(), q[j].startTime()
	switch {
	case a.IsZero():
		return false
	case b.IsZero():
		return true
	default:
		return a.Before(b)
	}
}

func (q stepQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *stepQueue) Push(x any)   { *q = append(*q, x.(step)) }

func (q *stepQueue) Pop() any {
	old := *q
	n := len(old)
	s := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return s
}

func (q *stepQueue) push(s step) { heap.Push(q, s) }
func (q *stepQueue) pop() step   { return heap.Pop(q).(step) }

func (q stepQueue) peek() step {
	if len(q) == 0 {
		return nil
	}
	return q[0]
}

// take removes the first queued step that accepts a completion callback
// from actuatorID.
func (q *stepQueue) take(actuatorID int) step {
	for i, s := range *q {
		if s.acceptCallback(actuatorID) {
			return heap.Remove(q, i).(step)
		}
	}
	return nil
}

func (q *stepQueue) drain() []step {
	out := []step(*q)
	*q = nil
	return out
}

type completion struct {
	actuatorID int
	stepID     uint64
}

// inbox collects signals sent to the conductor from other goroutines. The
// worker drains it between steps; notify wakes a sleeping worker.
type inbox struct {
	mu          sync.Mutex
	cancel      Status
	immediate   bool
	completions []completion
	synced      bool
	notify      chan struct{}
}

func newInbox() *inbox {
	return &inbox{notify: make(chan struct{}, 1)}
}

func (b *inbox) wake() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

type signals struct {
	cancel      Status
	immediate   bool
	completions []completion
	synced      bool
}

func (b *inbox) drain() signals {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := signals{cancel: b.cancel, immediate: b.immediate, completions: b.completions, synced: b.synced}
	b.completions = nil
	b.synced = false
	return s
}
