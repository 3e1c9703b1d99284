package reactor

import "sync"

// ingressChunkSize is the number of runnables per ingress chunk node,
// adapted from eventloop/ingress.go's ChunkedIngress (cache-friendly
// batches instead of a node-per-task linked list).
const ingressChunkSize = 128

type ingressChunk struct {
	tasks   [ingressChunkSize]func()
	next    *ingressChunk
	readPos int
	pos     int
}

// chunkedIngress is a singly-linked chain of fixed-size task chunks, the
// queue a Reactor drains each tick (spec.md §4.5 step 1, "drain the
// foreign-submitted runnable queue"). Not safe for concurrent use on its
// own — ingress guards it with a mutex, since Execute/Spawn are called
// from arbitrary goroutines while only the reactor goroutine drains it.
type chunkedIngress struct {
	head, tail *ingressChunk
	length     int
}

func (q *chunkedIngress) push(task func()) {
	if q.tail == nil {
		q.tail = &ingressChunk{}
		q.head = q.tail
	}
	if q.tail.pos == len(q.tail.tasks) {
		next := &ingressChunk{}
		q.tail.next = next
		q.tail = next
	}
	q.tail.tasks[q.tail.pos] = task
	q.tail.pos++
	q.length++
}

func (q *chunkedIngress) pop() (func(), bool) {
	if q.head == nil {
		return nil, false
	}
	if q.head.readPos >= q.head.pos {
		if q.head.next == nil {
			return nil, false
		}
		q.head = q.head.next
	}
	t := q.head.tasks[q.head.readPos]
	q.head.tasks[q.head.readPos] = nil
	q.head.readPos++
	q.length--
	return t, true
}

func (q *chunkedIngress) empty() bool { return q.length == 0 }

// ingress is the thread-safe submission point for runnables originating
// off the reactor goroutine: Execute/Spawn calls from other goroutines,
// and Waker.Unpark calls firing from timers, I/O callbacks, or another
// goroutine entirely.
type ingress struct {
	mu     sync.Mutex
	queue  chunkedIngress
	notify func()
}

func newIngress(notify func()) *ingress {
	return &ingress{notify: notify}
}

// push enqueues fn for the reactor goroutine to run, waking it if it is
// blocked in PollIO.
func (g *ingress) push(fn func()) {
	g.mu.Lock()
	g.queue.push(fn)
	g.mu.Unlock()
	if g.notify != nil {
		g.notify()
	}
}

// drain appends every currently-queued runnable to out in submission
// order and returns it; the reactor goroutine then runs them.
func (g *ingress) drain(out []func()) []func() {
	g.mu.Lock()
	for {
		fn, ok := g.queue.pop()
		if !ok {
			break
		}
		out = append(out, fn)
	}
	g.mu.Unlock()
	return out
}
