// Package workpool is the transaction substrate that parallelizes mosaic
// refinement: a fixed set of worker threads, each draining a FIFO queue of
// transactions, with cooperative cancellation through per-thread terminator
// flags that long-running transactions poll.
package workpool

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrTerminated is returned by Thread.TerminateOnRequest when cancellation
// was requested; the transaction unwinds and is reported as Aborted.
var ErrTerminated = errors.New("workpool: terminated on request")

// State is the lifecycle of a transaction:
// Pending -> Started -> {Done, Skipped, Aborted}.
type State int32

const (
	Pending State = iota
	Started
	Done
	Skipped
	Aborted
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Started:
		return "started"
	case Done:
		return "done"
	case Skipped:
		return "skipped"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Transaction is a unit of work. Execute runs on exactly one worker; a
// non-nil error (or a panic) moves the transaction to Aborted without
// stopping sibling transactions.
type Transaction interface {
	Execute(th *Thread) error
}

// Notify observes transaction state changes. It may be called from any
// worker goroutine; detail carries the abort reason when non-empty.
type Notify func(tx Transaction, s State, detail string)

// Thread is one worker of a pool. Transactions pushed to a thread run in
// FIFO order; no ordering holds between different threads.
type Thread struct {
	id   int
	pool *Pool

	mu    sync.Mutex
	queue []Transaction

	terminate atomic.Bool
}

// ID returns the thread's index within its pool.
func (th *Thread) ID() int { return th.id }

// PushBack appends a transaction to this thread's queue.
func (th *Thread) PushBack(tx Transaction) {
	th.mu.Lock()
	th.queue = append(th.queue, tx)
	th.mu.Unlock()
}

// TerminateRequested reports whether cancellation has been requested.
func (th *Thread) TerminateRequested() bool { return th.terminate.Load() }

// TerminateOnRequest is the cancellation checkpoint polled inside hot
// loops; it returns ErrTerminated when the thread was asked to stop.
func (th *Thread) TerminateOnRequest() error {
	if th.terminate.Load() {
		return ErrTerminated
	}
	return nil
}

func (th *Thread) pop() (Transaction, bool) {
	th.mu.Lock()
	defer th.mu.Unlock()
	if len(th.queue) == 0 {
		return nil, false
	}
	tx := th.queue[0]
	th.queue[0] = nil
	th.queue = th.queue[1:]
	return tx, true
}

// run drains the queue. Remaining transactions after a terminate request
// are reported as Skipped.
func (th *Thread) run() {
	for {
		tx, ok := th.pop()
		if !ok {
			return
		}
		if th.terminate.Load() {
			th.pool.notifyState(tx, Skipped, "")
			continue
		}
		th.execute(tx)
	}
}

func (th *Thread) execute(tx Transaction) {
	defer func() {
		if r := recover(); r != nil {
			th.pool.notifyState(tx, Aborted, fmt.Sprint(r))
		}
	}()

	th.pool.notifyState(tx, Started, "")
	if err := tx.Execute(th); err != nil {
		th.pool.notifyState(tx, Aborted, err.Error())
		return
	}
	th.pool.notifyState(tx, Done, "")
}

// Pool owns a fixed set of worker threads and a shared queue of pending
// transactions. The zero distribution policy is PreDistributeWork: the
// shared queue is split round-robin across the threads before Start;
// workers never steal from each other.
type Pool struct {
	threads []*Thread
	notify  Notify

	mu     sync.Mutex
	shared []Transaction
	next   int

	wg     sync.WaitGroup
	counts [Aborted + 1]atomic.Int64
}

// NewPool creates a pool with n worker threads (at least one). notify may
// be nil.
func NewPool(n int, notify Notify) *Pool {
	if n < 1 {
		n = 1
	}
	p := &Pool{notify: notify}
	p.threads = make([]*Thread, n)
	for i := range p.threads {
		p.threads[i] = &Thread{id: i, pool: p}
	}
	return p
}

// NumThreads returns the worker count.
func (p *Pool) NumThreads() int { return len(p.threads) }

// Count returns how many transactions have reached the given state since
// the pool was created.
func (p *Pool) Count(s State) int64 { return p.counts[s].Load() }

func (p *Pool) notifyState(tx Transaction, s State, detail string) {
	p.counts[s].Add(1)
	if p.notify != nil {
		p.notify(tx, s, detail)
	}
}

// PushBack appends transactions to the pool's shared queue.
func (p *Pool) PushBack(txs ...Transaction) {
	p.mu.Lock()
	p.shared = append(p.shared, txs...)
	p.mu.Unlock()
	for _, tx := range txs {
		p.notifyState(tx, Pending, "")
	}
}

// PreDistributeWork splits the shared queue round-robin across the worker
// threads. The round-robin cursor persists across calls so repeated
// schedules stay balanced.
func (p *Pool) PreDistributeWork() {
	p.mu.Lock()
	shared := p.shared
	p.shared = nil
	p.mu.Unlock()

	for _, tx := range shared {
		p.threads[p.next%len(p.threads)].PushBack(tx)
		p.next++
	}
}

// Start releases the workers. Any transactions still in the shared queue
// are distributed first.
func (p *Pool) Start() {
	p.PreDistributeWork()
	for _, th := range p.threads {
		th.terminate.Store(false)
		p.wg.Add(1)
		go func(th *Thread) {
			defer p.wg.Done()
			th.run()
		}(th)
	}
}

// Wait blocks the caller until every thread's queue has drained.
func (p *Pool) Wait() { p.wg.Wait() }

// Terminate raises the terminator flag on every thread. Running
// transactions abort at their next checkpoint; queued ones are skipped.
func (p *Pool) Terminate() {
	for _, th := range p.threads {
		th.terminate.Store(true)
	}
}
