package spanz

// evictingQueue is a fixed-capacity FIFO ring. Once full, each add
// overwrites the oldest element. Not safe for concurrent use.
type evictingQueue[T any] struct {
	buf    []T
	next   int // write cursor into buf
	total  int // number of adds since creation
	length int
}

func newEvictingQueue[T any](capacity int) *evictingQueue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &evictingQueue[T]{buf: make([]T, capacity)}
}

func (q *evictingQueue[T]) add(v T) {
	q.buf[q.next] = v
	q.next = (q.next + 1) % len(q.buf)
	q.total++
	if q.length < len(q.buf) {
		q.length++
	}
}

func (q *evictingQueue[T]) len() int {
	return q.length
}

func (q *evictingQueue[T]) dropped() int {
	return q.total - q.length
}

// items returns the retained elements, oldest first.
func (q *evictingQueue[T]) items() []T {
	out := make([]T, 0, q.length)
	start := q.next - q.length
	if start < 0 {
		start += len(q.buf)
	}
	for i := 0; i < q.length; i++ {
		out = append(out, q.buf[(start+i)%len(q.buf)])
	}
	return out
}

// each calls fn on retained elements oldest first until fn returns false.
func (q *evictingQueue[T]) each(fn func(T) bool) {
	start := q.next - q.length
	if start < 0 {
		start += len(q.buf)
	}
	for i := 0; i < q.length; i++ {
		if !fn(q.buf[(start+i)%len(q.buf)]) {
			return
		}
	}
}
