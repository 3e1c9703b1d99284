package future

// Try is the uniform success/failure view of a settled Future's result,
// as seen by a Then continuation (spec.md §4.3: "then(f)... f receives
// Try<T> so it observes success and error uniformly").
type Try[T any] struct {
	value T
	err   error
}

// TryOk builds a successful Try.
func TryOk[T any](v T) Try[T] { return Try[T]{value: v} }

// TryErr builds a failed Try.
func TryErr[T any](err error) Try[T] { return Try[T]{err: err} }

// Value returns the value and whether the Try is a success.
func (t Try[T]) Value() (T, bool) { return t.value, t.err == nil }

// Err returns the failure, if any.
func (t Try[T]) Err() error { return t.err }

// chainStage tracks which side of a two-stage chain is currently live.
type chainStage uint8

const (
	stageFirst chainStage = iota
	stageSecond
	stageDone
)

// andThenFuture implements AndThen as an explicit two-state machine,
// following spec.md §9's guidance to hand-roll coroutine-style chaining
// as a First/Second enum (grounded on Future-inl.h's AndThenFuture).
type andThenFuture[T, U any] struct {
	stage    chainStage
	upstream Future[T]
	f        func(T) Future[U]
	down     Future[U]
}

// AndThen polls fut; on Ready(v) calls f(v) to obtain a continuation
// future and polls that to completion. On upstream error, f is skipped
// and the error propagates (spec.md §4.3).
func AndThen[T, U any](fut Future[T], f func(T) Future[U]) Future[U] {
	return &andThenFuture[T, U]{upstream: fut, f: f}
}

func (c *andThenFuture[T, U]) Poll(w *Waker) Poll[U] {
	switch c.stage {
	case stageFirst:
		p := c.upstream.Poll(w)
		if p.IsNotReady() {
			return NotReady[U]()
		}
		c.upstream = nil
		if err, ok := p.Error(); ok {
			c.stage = stageDone
			return Err[U](err)
		}
		v, _ := p.Value()
		c.down = c.f(v)
		c.f = nil
		c.stage = stageSecond
		fallthrough
	case stageSecond:
		p := c.down.Poll(w)
		if p.IsNotReady() {
			return NotReady[U]()
		}
		c.down = nil
		c.stage = stageDone
		return p
	default:
		return Err[U](ErrInvalidPoll)
	}
}

// thenFuture implements Then: f receives a Try[T] regardless of
// upstream outcome, and always produces the continuation future.
type thenFuture[T, U any] struct {
	stage    chainStage
	upstream Future[T]
	f        func(Try[T]) Future[U]
	down     Future[U]
}

// Then is like AndThen, but f observes success and error uniformly via
// Try[T] (spec.md §4.3).
func Then[T, U any](fut Future[T], f func(Try[T]) Future[U]) Future[U] {
	return &thenFuture[T, U]{upstream: fut, f: f}
}

func (c *thenFuture[T, U]) Poll(w *Waker) Poll[U] {
	switch c.stage {
	case stageFirst:
		p := c.upstream.Poll(w)
		if p.IsNotReady() {
			return NotReady[U]()
		}
		c.upstream = nil
		var t Try[T]
		if err, ok := p.Error(); ok {
			t = TryErr[T](err)
		} else {
			v, _ := p.Value()
			t = TryOk(v)
		}
		c.down = c.f(t)
		c.f = nil
		c.stage = stageSecond
		fallthrough
	case stageSecond:
		p := c.down.Poll(w)
		if p.IsNotReady() {
			return NotReady[U]()
		}
		c.down = nil
		c.stage = stageDone
		return p
	default:
		return Err[U](ErrInvalidPoll)
	}
}

// orElseFuture implements OrElse: f is only invoked on upstream error.
type orElseFuture[T any] struct {
	stage    chainStage
	upstream Future[T]
	f        func(error) Future[T]
	down     Future[T]
}

// OrElse calls f only when fut fails, to recover with a new Future;
// successes pass through untouched (spec.md §4.3).
func OrElse[T any](fut Future[T], f func(error) Future[T]) Future[T] {
	return &orElseFuture[T]{upstream: fut, f: f}
}

func (c *orElseFuture[T]) Poll(w *Waker) Poll[T] {
	switch c.stage {
	case stageFirst:
		p := c.upstream.Poll(w)
		if p.IsNotReady() {
			return NotReady[T]()
		}
		c.upstream = nil
		err, failed := p.Error()
		if !failed {
			c.stage = stageDone
			return p
		}
		c.down = c.f(err)
		c.f = nil
		c.stage = stageSecond
		fallthrough
	case stageSecond:
		p := c.down.Poll(w)
		if p.IsNotReady() {
			return NotReady[T]()
		}
		c.down = nil
		c.stage = stageDone
		return p
	default:
		return Err[T](ErrInvalidPoll)
	}
}

// mapFuture implements Map: a synchronous transform of the ready value.
type mapFuture[T, U any] struct {
	upstream Future[T]
	f        func(T) U
	done     bool
}

// Map synchronously transforms fut's success value. Per spec.md §4.3 any
// panic raised by f would, in the source's exception-based model, become
// an Err poll result; in this Go port that conversion instead happens
// once, at the top-level reactor.FutureSpawnRun boundary (spec.md §9),
// so Map itself does not recover — see DESIGN.md OQ-1.
func Map[T, U any](fut Future[T], f func(T) U) Future[U] {
	return &mapFuture[T, U]{upstream: fut, f: f}
}

func (c *mapFuture[T, U]) Poll(w *Waker) Poll[U] {
	if c.done {
		return Err[U](ErrInvalidPoll)
	}
	p := c.upstream.Poll(w)
	if p.IsNotReady() {
		return NotReady[U]()
	}
	c.done = true
	if err, ok := p.Error(); ok {
		return Err[U](err)
	}
	v, _ := p.Value()
	return Ready(c.f(v))
}

// joinResult is the pair of settled values Join resolves to, in
// construction order.
type joinResult[A, B any] struct {
	A A
	B B
}

// Join combines two futures into one yielding both results once both
// sides are ready (spec.md §4.3 join, §8 join invariant).
func Join[A, B any](a Future[A], b Future[B]) Future[joinResult[A, B]] {
	return &joinFuture2[A, B]{a: a, b: b}
}

type joinFuture2[A, B any] struct {
	a     Future[A]
	b     Future[B]
	av    A
	bv    B
	aDone bool
	bDone bool
	done  bool
}

func (j *joinFuture2[A, B]) Poll(w *Waker) Poll[joinResult[A, B]] {
	if j.done {
		return Err[joinResult[A, B]](ErrInvalidPoll)
	}
	if !j.aDone {
		p := j.a.Poll(w)
		if err, ok := p.Error(); ok {
			j.done = true
			return Err[joinResult[A, B]](err)
		}
		if v, ok := p.Value(); ok {
			j.av = v
			j.aDone = true
			j.a = nil
		}
	}
	if !j.bDone {
		p := j.b.Poll(w)
		if err, ok := p.Error(); ok {
			j.done = true
			return Err[joinResult[A, B]](err)
		}
		if v, ok := p.Value(); ok {
			j.bv = v
			j.bDone = true
			j.b = nil
		}
	}
	if j.aDone && j.bDone {
		j.done = true
		return Ready(joinResult[A, B]{A: j.av, B: j.bv})
	}
	return NotReady[joinResult[A, B]]()
}

// whenAllFuture implements WhenAll (N-ary join) over a homogeneous slice
// of Future[T], grounded on detail/WhenAllFuture.h.
type whenAllFuture[T any] struct {
	futures []Future[T]
	results []T
	done    []bool
	settled bool
}

// WhenAll polls every future each call, in index order, becoming ready
// with all N results (in construction order) once every one has
// completed, short-circuiting on the first error encountered while
// scanning in index order (spec.md §4.3).
func WhenAll[T any](futures []Future[T]) Future[[]T] {
	return &whenAllFuture[T]{
		futures: futures,
		results: make([]T, len(futures)),
		done:    make([]bool, len(futures)),
	}
}

func (w *whenAllFuture[T]) Poll(wk *Waker) Poll[[]T] {
	if w.settled {
		return Err[[]T](ErrInvalidPoll)
	}
	remaining := false
	for i, f := range w.futures {
		if w.done[i] || f == nil {
			continue
		}
		p := f.Poll(wk)
		if err, ok := p.Error(); ok {
			w.settled = true
			return Err[[]T](err)
		}
		if v, ok := p.Value(); ok {
			w.results[i] = v
			w.done[i] = true
			w.futures[i] = nil
			continue
		}
		remaining = true
	}
	if remaining {
		return NotReady[[]T]()
	}
	w.settled = true
	return Ready(w.results)
}

// Either is the outcome of a select/when_any race: which index fired and
// its settled Try.
type Either[T any] struct {
	Index int
	Try   Try[T]
}

// SelectSlice polls each future in index order on every call; the first
// one to settle (value or error) wins, and is returned along with the
// unsettled remainder (spec.md §4.3's dynamic select). Lowest index wins
// ties within a single poll pass.
func SelectSlice[T any](futures []Future[T]) Future[SelectResult[T]] {
	return &selectFuture[T]{futures: append([]Future[T](nil), futures...)}
}

// SelectResult is what SelectSlice resolves to: the winner and the
// remaining (still-live) futures, order-preserved minus the winner.
type SelectResult[T any] struct {
	Winner    Either[T]
	Remaining []Future[T]
}

type selectFuture[T any] struct {
	futures []Future[T]
	done    bool
}

func (s *selectFuture[T]) Poll(w *Waker) Poll[SelectResult[T]] {
	if s.done {
		return Err[SelectResult[T]](ErrInvalidPoll)
	}
	if len(s.futures) == 0 {
		s.done = true
		return Err[SelectResult[T]](ErrEmptyFutureSet)
	}
	for i, f := range s.futures {
		p := f.Poll(w)
		if p.IsNotReady() {
			continue
		}
		s.done = true
		var t Try[T]
		if err, ok := p.Error(); ok {
			t = TryErr[T](err)
		} else {
			v, _ := p.Value()
			t = TryOk(v)
		}
		remaining := make([]Future[T], 0, len(s.futures)-1)
		remaining = append(remaining, s.futures[:i]...)
		remaining = append(remaining, s.futures[i+1:]...)
		return Ready(SelectResult[T]{Winner: Either[T]{Index: i, Try: t}, Remaining: remaining})
	}
	return NotReady[SelectResult[T]]()
}

// WhenAny polls every future each call (index order) and resolves with
// the Try of whichever settles first, discarding the rest (spec.md §4.3).
func WhenAny[T any](futures []Future[T]) Future[Either[T]] {
	return Map(SelectSlice(futures), func(r SelectResult[T]) Either[T] { return r.Winner })
}

// LoopState is either Break(v) (end the loop with v) or Continue(c)
// (iterate again with new state c), the outcome of a loop_fn body.
type LoopState[B, C any] struct {
	breakVal B
	contVal  C
	isBreak  bool
}

// Break builds a LoopState ending the loop with value v.
func Break[B, C any](v B) LoopState[B, C] { return LoopState[B, C]{breakVal: v, isBreak: true} }

// Continue builds a LoopState continuing the loop with new state c.
func Continue[B, C any](c C) LoopState[B, C] { return LoopState[B, C]{contVal: c} }

// loopFnFuture implements LoopFn: body(state) yields a Future of
// LoopState; Continue replaces state and loops, Break yields the final
// value. No per-iteration allocation beyond the current body future
// (spec.md §4.3).
type loopFnFuture[C, B any] struct {
	state C
	body  func(C) Future[LoopState[B, C]]
	cur   Future[LoopState[B, C]]
	done  bool
}

// LoopFn repeatedly invokes body with the current state, updating state
// on Continue and yielding on Break (spec.md §4.3; seed scenario §8.6).
func LoopFn[C, B any](seed C, body func(C) Future[LoopState[B, C]]) Future[B] {
	return &loopFnFuture[C, B]{state: seed, body: body}
}

func (l *loopFnFuture[C, B]) Poll(w *Waker) Poll[B] {
	if l.done {
		return Err[B](ErrInvalidPoll)
	}
	for {
		if l.cur == nil {
			l.cur = l.body(l.state)
		}
		p := l.cur.Poll(w)
		if p.IsNotReady() {
			return NotReady[B]()
		}
		l.cur = nil
		if err, ok := p.Error(); ok {
			l.done = true
			return Err[B](err)
		}
		v, _ := p.Value()
		if v.isBreak {
			l.done = true
			return Ready(v.breakVal)
		}
		l.state = v.contVal
	}
}

// MapStream transforms each item of a stream. Per spec.md §9's stream
// combinator error policy (preserved, see DESIGN.md OQ-4): once the
// upstream yields an Err, the upstream reference is cleared so a second
// Poll surfaces ErrInvalidPoll rather than silently re-invoking it.
func MapStream[T, U any](s Stream[T], f func(T) U) Stream[U] {
	return &mapStream[T, U]{upstream: s, f: f}
}

type mapStream[T, U any] struct {
	upstream Stream[T]
	f        func(T) U
}

func (m *mapStream[T, U]) Poll(w *Waker) Poll[Option[U]] {
	if m.upstream == nil {
		return Err[Option[U]](ErrInvalidPoll)
	}
	p := m.upstream.Poll(w)
	if p.IsNotReady() {
		return NotReady[Option[U]]()
	}
	if err, ok := p.Error(); ok {
		m.upstream = nil
		return Err[Option[U]](err)
	}
	opt, _ := p.Value()
	v, ok := opt.Get()
	if !ok {
		m.upstream = nil
		return Ready(None[U]())
	}
	return Ready(Some(m.f(v)))
}
