package pqueue

import "container/heap"

func WithOrderAsc() Option {
	return func(c *config) {
		c.order = orderAsc
	}
}

func WithOrderDesc() Option {
	return func(c *config) {
		c.order = orderDesc
	}
}

// WithCap bounds the queue to the size best items.
func WithCap(size uint) Option {
	return func(c *config) {
		c.cap = int(size)
	}
}

type Option func(*config)

type order uint8

const (
	orderAsc order = iota
	orderDesc
)

type config struct {
	order order
	cap   int
}

type Item[T any] struct {
	Value    T
	Priority float64
}

func New[T any](opts ...Option) *Queue[T] {
	cfg := config{order: orderAsc, cap: -1}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Queue[T]{cfg: cfg, h: &itemHeap[T]{desc: cfg.order == orderDesc}}
}

// Queue keeps the best items pushed into it: the lowest priorities in
// ascending order, the highest in descending order. With a cap, the worst
// item is evicted once the queue is full.
type Queue[T any] struct {
	cfg config
	h   *itemHeap[T]
}

func (q *Queue[T]) Push(val T, priority float64) {
	it := Item[T]{Value: val, Priority: priority}
	if q.cfg.cap < 0 || q.h.Len() < q.cfg.cap {
		heap.Push(q.h, it)
		return
	}
	if q.cfg.cap == 0 || !q.h.better(priority, q.h.items[0].Priority) {
		return
	}
	q.h.items[0] = it
	heap.Fix(q.h, 0)
}

// PopAll drains the queue, best item first.
func (q *Queue[T]) PopAll() []Item[T] {
	out := make([]Item[T], q.h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(q.h).(Item[T])
	}
	return out
}

// Worst returns the item that would be evicted next.
func (q *Queue[T]) Worst() (Item[T], bool) {
	if q.h.Len() == 0 {
		return Item[T]{}, false
	}
	return q.h.items[0], true
}

func (q *Queue[T]) Cap() int { return q.cfg.cap }

func (q *Queue[T]) Len() int { return q.h.Len() }

// itemHeap has the worst item at its root.
type itemHeap[T any] struct {
	items []Item[T]
	desc  bool
}

func (h *itemHeap[T]) better(a, b float64) bool {
	if h.desc {
		return a > b
	}
	return a < b
}

func (h *itemHeap[T]) Len() int { return len(h.items) }

func (h *itemHeap[T]) Less(i, j int) bool {
	return h.better(h.items[j].Priority, h.items[i].Priority)
}

func (h *itemHeap[T]) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *itemHeap[T]) Push(x any) { h.items = append(h.items, x.(Item[T])) }

func (h *itemHeap[T]) Pop() any {
	n := len(h.items) - 1
	it := h.items[n]
	h.items = h.items[:n]
	return it
}
