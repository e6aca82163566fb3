// Package eventloop implements the EventLoop (spec §4.11): channel-
// based coordination between workflow creation and evaluation, plus
// the blocking/async client wait primitives used by internal/api's
// block_execute and async_execute. It is grounded on tegmine-core's
// channels.rs (a single creation consumer, a bounded evaluation pool,
// and waiter registries keyed by workflow id) with the worker pool
// itself built on github.com/sourcegraph/conc, the DOMAIN STACK's
// named home for this concern.
package eventloop

import (
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/sarlalian/conductorial/internal/apierr"
	"github.com/sarlalian/conductorial/pkg/model"
)

// DefaultEvaluationWorkers is the evaluation pool's default size.
const DefaultEvaluationWorkers = 20

// evalQueueCapacity approximates spec §4.11's "unbounded" evaluation
// channel: a large buffer absorbs bursts, and Submit never blocks even
// past that, falling back to a short-lived delivery goroutine.
const evalQueueCapacity = 4096

// CreateFunc constructs and persists a new WorkflowInstance for req,
// returning its id. Supplied by internal/api.Engine, which owns
// definition lookup and input-template merging.
type CreateFunc func(req *model.StartRequest) (string, error)

// EvaluateFunc runs one decide/apply pass to completion for a workflow
// id, advancing it as far as it can go without external input.
type EvaluateFunc func(workflowID string) error

// StatusFunc fetches the current WorkflowInstance for a workflow id.
type StatusFunc func(workflowID string) (*model.WorkflowInstance, error)

type creationJob struct {
	req   *model.StartRequest
	reply chan creationResult
}

type creationResult struct {
	id  string
	err error
}

type waiterList struct {
	mu    sync.Mutex
	chans []chan *model.WorkflowInstance
}

// EventLoop is the engine's single creation consumer plus bounded
// evaluation worker pool.
type EventLoop struct {
	create   CreateFunc
	evaluate EvaluateFunc
	status   StatusFunc

	creationCh chan creationJob
	evalCh     chan string

	pool *pool.Pool

	blocking sync.Map // workflow id -> *waiterList, for block_execute
	async    sync.Map // workflow id -> *waiterList, for async_execute

	stopOnce sync.Once
	done     chan struct{}
}

// New builds an EventLoop with workers evaluation goroutines (falls
// back to DefaultEvaluationWorkers when workers <= 0). Start must be
// called before Submit.
func New(create CreateFunc, evaluate EvaluateFunc, status StatusFunc, workers int) *EventLoop {
	if workers <= 0 {
		workers = DefaultEvaluationWorkers
	}
	return &EventLoop{
		create:     create,
		evaluate:   evaluate,
		status:     status,
		creationCh: make(chan creationJob, 64),
		evalCh:     make(chan string, evalQueueCapacity),
		pool:       pool.New().WithMaxGoroutines(workers),
		done:       make(chan struct{}),
	}
}

// Start launches the creation consumer and the evaluation dispatcher.
// Both exit once Close is called.
func (l *EventLoop) Start() {
	go l.runCreation()
	go l.runEvaluation()
}

// Close stops accepting new work and waits for in-flight evaluations
// to finish.
func (l *EventLoop) Close() {
	l.stopOnce.Do(func() {
		close(l.done)
		close(l.creationCh)
		close(l.evalCh)
	})
	l.pool.Wait()
}

func (l *EventLoop) runCreation() {
	for job := range l.creationCh {
		id, err := l.create(job.req)
		if err == nil {
			l.enqueueEval(id)
		}
		job.reply <- creationResult{id: id, err: err}
	}
}

func (l *EventLoop) runEvaluation() {
	for id := range l.evalCh {
		id := id
		l.pool.Go(func() {
			l.evaluateAndNotify(id)
		})
	}
}

func (l *EventLoop) evaluateAndNotify(id string) {
	_ = l.evaluate(id)
	w, err := l.status(id)
	if err != nil || !w.Status.IsTerminal() {
		return
	}
	notify(&l.blocking, id, w)
	notify(&l.async, id, w)
}

// enqueueEval schedules id for evaluation without ever blocking the
// caller, per spec §5's "channels are unbounded here; sends do not
// block" — a full buffer is handled by a short-lived delivery
// goroutine rather than back-pressuring Submit.
func (l *EventLoop) enqueueEval(id string) {
	select {
	case l.evalCh <- id:
	default:
		go func() { l.evalCh <- id }()
	}
}

// Submit runs a StartRequest through the creation consumer and returns
// the new workflow id once it has been persisted — evaluation happens
// asynchronously afterward.
func (l *EventLoop) Submit(req *model.StartRequest) (string, error) {
	reply := make(chan creationResult, 1)
	l.creationCh <- creationJob{req: req, reply: reply}
	res := <-reply
	return res.id, res.err
}

// Reevaluate re-enters workflowID into the evaluation pool, the path
// a worker's update_task uses to resume a workflow waiting on it.
func (l *EventLoop) Reevaluate(workflowID string) {
	l.enqueueEval(workflowID)
}

// BlockExecute submits req and blocks the caller until the workflow
// reaches a terminal status or timeout elapses — spec §6's
// block_execute, the only synchronous public entry point.
func (l *EventLoop) BlockExecute(req *model.StartRequest, timeout time.Duration) (*model.WorkflowInstance, error) {
	id, err := l.Submit(req)
	if err != nil {
		return nil, err
	}
	return l.Wait(id, timeout)
}

// Wait blocks until workflowID reaches a terminal status or timeout
// elapses, for a workflow already submitted.
func (l *EventLoop) Wait(workflowID string, timeout time.Duration) (*model.WorkflowInstance, error) {
	ch := make(chan *model.WorkflowInstance, 1)
	register(&l.blocking, workflowID, ch)

	if w, err := l.status(workflowID); err == nil && w.Status.IsTerminal() {
		return w, nil
	}

	select {
	case w := <-ch:
		return w, nil
	case <-time.After(timeout):
		return nil, apierr.NewTransient("block_execute timed out waiting on "+workflowID, nil)
	}
}

// AsyncExecute submits req and returns a future channel that receives
// the workflow once it reaches a terminal status — spec §6's
// async_execute.
func (l *EventLoop) AsyncExecute(req *model.StartRequest) (string, <-chan *model.WorkflowInstance, error) {
	id, err := l.Submit(req)
	if err != nil {
		return "", nil, err
	}
	return id, l.future(id), nil
}

// future returns a channel delivering workflowID's terminal state,
// firing immediately if it is already terminal.
func (l *EventLoop) future(workflowID string) <-chan *model.WorkflowInstance {
	ch := make(chan *model.WorkflowInstance, 1)
	register(&l.async, workflowID, ch)
	if w, err := l.status(workflowID); err == nil && w.Status.IsTerminal() {
		notify(&l.async, workflowID, w)
	}
	return ch
}

func register(reg *sync.Map, id string, ch chan *model.WorkflowInstance) {
	v, _ := reg.LoadOrStore(id, &waiterList{})
	wl := v.(*waiterList)
	wl.mu.Lock()
	wl.chans = append(wl.chans, ch)
	wl.mu.Unlock()
}

func notify(reg *sync.Map, id string, w *model.WorkflowInstance) {
	v, ok := reg.LoadAndDelete(id)
	if !ok {
		return
	}
	wl := v.(*waiterList)
	wl.mu.Lock()
	defer wl.mu.Unlock()
	for _, ch := range wl.chans {
		ch <- w
		close(ch)
	}
}
