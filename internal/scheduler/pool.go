package scheduler

import "sync"

type TaskFunc func()

// Pool runs submitted tasks on a fixed number of goroutines.
type Pool struct {
	maxWorkers int
	taskQueue  chan TaskFunc
	wg         sync.WaitGroup
}

func NewPool(maxWorkers int) *Pool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	p := &Pool{
		maxWorkers: maxWorkers,
		taskQueue:  make(chan TaskFunc, maxWorkers*2),
	}
	p.start()
	return p
}

func (p *Pool) start() {
	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for task := range p.taskQueue {
				task()
			}
		}()
	}
}

// Submit queues task, blocking while the queue is full.
func (p *Pool) Submit(task TaskFunc) {
	p.taskQueue <- task
}

// Close stops accepting tasks and waits for the queued ones to finish.
func (p *Pool) Close() {
	close(p.taskQueue)
	p.wg.Wait()
}
