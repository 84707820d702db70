package launch

// Ring is a fixed-capacity FIFO that evicts its oldest element when full.
// It is not safe for concurrent use.
type Ring[T any] struct {
	buf     []T
	start   int
	size    int
	evicted uint64
}

// NewRing creates a ring holding at most capacity elements.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v, evicting the oldest element when the ring is full.
func (r *Ring[T]) Push(v T) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = v
		r.size++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
	r.evicted++
}

// Len returns the number of retained elements.
func (r *Ring[T]) Len() int {
	return r.size
}

// Cap returns the ring's capacity.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// Evicted returns how many elements have been pushed out.
func (r *Ring[T]) Evicted() uint64 {
	return r.evicted
}

// Items returns the retained elements, oldest first.
func (r *Ring[T]) Items() []T {
	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}
