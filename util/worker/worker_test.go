package worker

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/atomic"
)

type recorder struct {
	started bool
	seen    []int
}

func (r *recorder) Start() {
	r.started = true
}

func (r *recorder) Handle(t Task) {
	r.seen = append(r.seen, t.(int))
}

func TestWorkerRunsTasksInOrder(t *testing.T) {
	var wg sync.WaitGroup
	w := NewWorker("test", 4, &wg)
	r := &recorder{}
	w.Start(r)
	for i := 0; i < 20; i++ {
		assert.True(t, w.Submit(i))
	}
	w.Stop()
	wg.Wait()

	assert.True(t, r.started)
	assert.Len(t, r.seen, 20)
	for i, v := range r.seen {
		assert.Equal(t, i, v)
	}
}

func TestSubmitAfterStop(t *testing.T) {
	var wg sync.WaitGroup
	w := NewWorker("test", 0, &wg)
	w.Start(&recorder{})
	w.Stop()
	w.Stop()
	wg.Wait()
	assert.False(t, w.Submit(1))
	assert.Equal(t, "test", w.Name())
}

type counter struct {
	n atomic.Int64
}

func (c *counter) Handle(t Task) {
	c.n.Inc()
}

func TestStopRacingSubmit(t *testing.T) {
	for round := 0; round < 50; round++ {
		var wg sync.WaitGroup
		w := NewWorker("test", 2, &wg)
		c := &counter{}
		w.Start(c)

		var accepted atomic.Int64
		var submitters sync.WaitGroup
		for i := 0; i < 8; i++ {
			submitters.Add(1)
			go func() {
				defer submitters.Done()
				for j := 0; j < 20; j++ {
					if w.Submit(j) {
						accepted.Inc()
					}
				}
			}()
		}
		w.Stop()
		submitters.Wait()
		wg.Wait()
		assert.Equal(t, accepted.Load(), c.n.Load(), "round %d", round)
	}
}
