// Package concurrency provides a fixed-size pool of reusable goroutines.
// Workers are started lazily as tasks arrive, up to the configured limit,
// and stay around to pick up subsequent tasks.
package concurrency

// Task is a unit of work scheduled on the pool.
type Task func()

// GoRoutinePool runs tasks on a bounded set of worker goroutines.
type GoRoutinePool struct {
	work chan Task
	// Limits the number of live workers.
	sem  chan struct{}
	stop chan struct{}
}

// NewGoRoutinePool creates a pool running at most numWorkers goroutines.
func NewGoRoutinePool(numWorkers int) *GoRoutinePool {
	return &GoRoutinePool{
		work: make(chan Task),
		sem:  make(chan struct{}, numWorkers),
		stop: make(chan struct{}, numWorkers),
	}
}

// Schedule hands the task to an idle worker, starting a new one when all
// existing workers are busy and the limit is not yet reached.
func (p *GoRoutinePool) Schedule(task Task) {
	select {
	case p.work <- task:
	case p.sem <- struct{}{}:
		go p.worker(task)
	}
}

// Stop terminates every worker after its current task.
func (p *GoRoutinePool) Stop() {
	for i := 0; i < cap(p.sem); i++ {
		p.stop <- struct{}{}
	}
}

func (p *GoRoutinePool) worker(task Task) {
	defer func() { <-p.sem }()
	for {
		task()
		select {
		case task = <-p.work:
		case <-p.stop:
			return
		}
	}
}
