package capture

// ring is a fixed-capacity circular buffer that evicts its oldest
// element on overflow. It is not safe for concurrent use.
type ring[T any] struct {
	items []T
	head  int // next write position
	count int
}

func newRing[T any](capacity int) *ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &ring[T]{items: make([]T, capacity)}
}

func (r *ring[T]) push(v T) {
	r.items[r.head] = v
	r.head = (r.head + 1) % len(r.items)
	if r.count < len(r.items) {
		r.count++
	}
}

func (r *ring[T]) len() int { return r.count }

func (r *ring[T]) capacity() int { return len(r.items) }

// latest returns the most recently pushed element.
func (r *ring[T]) latest() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	return r.items[(r.head-1+len(r.items))%len(r.items)], true
}

// oldest returns the element that will be evicted next.
func (r *ring[T]) oldest() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	return r.items[(r.head-r.count+len(r.items))%len(r.items)], true
}

// snapshot returns the elements oldest first.
func (r *ring[T]) snapshot() []T {
	out := make([]T, 0, r.count)
	start := (r.head - r.count + len(r.items)) % len(r.items)
	for i := 0; i < r.count; i++ {
		out = append(out, r.items[(start+i)%len(r.items)])
	}
	return out
}
