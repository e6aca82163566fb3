// Package queue implements the engine's named PriorityQueue facility
// (spec §4.5): per-queue delayed-priority message queues keyed by a
// score combining ready-time and priority.
package queue

import (
	"container/heap"
	"sync"
	"time"
)

// DeciderQueue is the reserved queue name holding workflow ids pending
// re-evaluation.
const DeciderQueue = "_deciderQueue"

type item struct {
	id       string
	score    int64
	priority int
	index    int
}

type itemHeap []*item

func (h itemHeap) Len() int            { return len(h) }
func (h itemHeap) Less(i, j int) bool  { return h[i].score < h[j].score }
func (h itemHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *itemHeap) Push(x interface{}) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}
func (h *itemHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

// score computes (now_ms + delay_sec*1000)*100 + priority, per spec
// §4.5: lower score pops first, priority 0 is highest (pops before 99).
func score(now time.Time, delaySec int, priority int) int64 {
	nowMs := now.UnixMilli()
	return (nowMs+int64(delaySec)*1000)*100 + int64(priority)
}

// Queues is the process-wide named-queue registry.
type Queues struct {
	mu   sync.Mutex
	byID map[string]map[string]*item // queueName -> id -> item
	heap map[string]*itemHeap
}

func New() *Queues {
	return &Queues{
		byID: make(map[string]map[string]*item),
		heap: make(map[string]*itemHeap),
	}
}

func (q *Queues) ensureLocked(queueName string) *itemHeap {
	h, ok := q.heap[queueName]
	if !ok {
		h = &itemHeap{}
		heap.Init(h)
		q.heap[queueName] = h
		q.byID[queueName] = map[string]*item{}
	}
	return h
}

// Push enqueues id onto queueName, ready after delaySec seconds, with
// the given priority (0 highest, 99 lowest).
func (q *Queues) Push(queueName, id string, priority, delaySec int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	h := q.ensureLocked(queueName)
	if existing, ok := q.byID[queueName][id]; ok {
		q.removeLocked(queueName, existing)
	}
	it := &item{id: id, score: score(time.Now(), delaySec, priority), priority: priority}
	heap.Push(h, it)
	q.byID[queueName][id] = it
}

func (q *Queues) removeLocked(queueName string, it *item) {
	h := q.heap[queueName]
	if it.index >= 0 && it.index < h.Len() && (*h)[it.index] == it {
		heap.Remove(h, it.index)
	}
	delete(q.byID[queueName], it.id)
}

// Remove drops id from queueName if present.
func (q *Queues) Remove(queueName, id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if it, ok := q.byID[queueName][id]; ok {
		q.removeLocked(queueName, it)
	}
}

// Postpone is remove-then-push with a new priority/delay — not atomic,
// which spec §5 explicitly tolerates since consumers re-validate tasks
// against the StateStore on pop.
func (q *Queues) Postpone(queueName, id string, priority, delaySec int) {
	q.Remove(queueName, id)
	q.Push(queueName, id, priority, delaySec)
}

// Pop returns up to count ids from queueName whose score is due,
// polling every 10ms until timeout elapses or count ids are collected.
func (q *Queues) Pop(queueName string, count int, timeout time.Duration) []string {
	deadline := time.Now().Add(timeout)
	var out []string
	for {
		out = append(out, q.popReady(queueName, count-len(out))...)
		if len(out) >= count || time.Now().After(deadline) {
			return out
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (q *Queues) popReady(queueName string, count int) []string {
	if count <= 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	h, ok := q.heap[queueName]
	if !ok {
		return nil
	}
	now := (time.Now().UnixMilli()) * 100
	var out []string
	for h.Len() > 0 && len(out) < count {
		top := (*h)[0]
		if top.score > now {
			break
		}
		heap.Pop(h)
		delete(q.byID[queueName], top.id)
		out = append(out, top.id)
	}
	return out
}

// Ack is a no-op: queues are at-least-once delivery, with stale ids
// filtered by the consumer re-checking the StateStore.
func (q *Queues) Ack(string, string) {}

// Len reports the current size of queueName, for tests and metrics.
func (q *Queues) Len(queueName string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if h, ok := q.heap[queueName]; ok {
		return h.Len()
	}
	return 0
}
