package inspector

// ring keeps the most recent records of a stream.
type ring struct {
	buf   []Record
	next  int
	count int
}

func newRing(size int) *ring {
	return &ring{buf: make([]Record, size)}
}

func (r *ring) push(rec Record) {
	if len(r.buf) == 0 {
		return
	}
	r.buf[r.next] = rec
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

func (r *ring) last(n int) []Record {
	if n <= 0 || n > r.count {
		n = r.count
	}
	out := make([]Record, n)
	start := (r.next - n + len(r.buf)) % max(len(r.buf), 1)
	for i := 0; i < n; i++ {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out
}
