package loadgen

// Job produces one result.
type Job[T any] func() T

// Result pairs a job's output with the id it was submitted under.
type Result[T any] struct {
	JobID  string
	Output T
}

// Pool runs jobs on a fixed set of workers. Every submitted job delivers
// exactly one Result; Close after the last Submit, then drain Results.
type Pool[T any] struct {
	jobs    chan jobWrapper[T]
	results chan Result[T]
}

type jobWrapper[T any] struct {
	id string
	fn Job[T]
}

// NewPool starts workerCount workers over a buffer of bufferSize jobs.
func NewPool[T any](workerCount, bufferSize int) *Pool[T] {
	p := &Pool[T]{
		jobs:    make(chan jobWrapper[T], bufferSize),
		results: make(chan Result[T], bufferSize),
	}
	for i := 0; i < workerCount; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool[T]) worker() {
	for job := range p.jobs {
		p.results <- Result[T]{JobID: job.id, Output: job.fn()}
	}
}

// Submit queues one job. Blocks when the buffer is full.
func (p *Pool[T]) Submit(id string, fn Job[T]) {
	p.jobs <- jobWrapper[T]{id: id, fn: fn}
}

// Close stops accepting jobs. Workers finish what was submitted.
func (p *Pool[T]) Close() {
	close(p.jobs)
}

// Results yields one entry per submitted job.
func (p *Pool[T]) Results() <-chan Result[T] {
	return p.results
}
