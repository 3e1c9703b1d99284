package future

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImmediateOk(t *testing.T) {
	w := NewTestWaker()
	f := ImmediateOk(42)
	p := f.Poll(w)
	require.True(t, p.IsReady())
	v, ok := p.Value()
	assert.True(t, ok)
	assert.Equal(t, 42, v)

	p = f.Poll(w)
	assert.True(t, p.IsErr())
	err, ok := p.Error()
	assert.True(t, ok)
	assert.ErrorIs(t, err, ErrInvalidPoll)
}

func TestImmediateErr(t *testing.T) {
	w := NewTestWaker()
	boom := errors.New("boom")
	f := ImmediateErr[int](boom)
	p := f.Poll(w)
	require.True(t, p.IsErr())
	err, _ := p.Error()
	assert.ErrorIs(t, err, boom)
}

func TestEmptyNeverCompletes(t *testing.T) {
	w := NewTestWaker()
	var f Empty[string]
	for i := 0; i < 3; i++ {
		p := f.Poll(w)
		assert.True(t, p.IsNotReady())
	}
}

func TestLazyDefersConstruction(t *testing.T) {
	w := NewTestWaker()
	built := false
	f := NewLazy(func() Future[int] {
		built = true
		return ImmediateOk(7)
	})
	assert.False(t, built)
	p := f.Poll(w)
	assert.True(t, built)
	v, _ := p.Value()
	assert.Equal(t, 7, v)
}

func TestResultFuture(t *testing.T) {
	w := NewTestWaker()
	f := NewResultFuture(5, error(nil))
	p := f.Poll(w)
	v, ok := p.Value()
	assert.True(t, ok)
	assert.Equal(t, 5, v)

	boom := errors.New("boom")
	f2 := NewResultFuture(0, boom)
	p2 := f2.Poll(w)
	err, ok := p2.Error()
	assert.True(t, ok)
	assert.ErrorIs(t, err, boom)
}

// countingFuture becomes Ready only after readyAfter polls.
type countingFuture struct {
	n         int
	readyAfter int
	val       int
	err       error
}

func (c *countingFuture) Poll(w *Waker) Poll[int] {
	c.n++
	if c.n < c.readyAfter {
		return NotReady[int]()
	}
	if c.err != nil {
		return Err[int](c.err)
	}
	return Ready(c.val)
}

func TestAndThen(t *testing.T) {
	w := NewTestWaker()
	upstream := &countingFuture{readyAfter: 2, val: 10}
	called := false
	f := AndThen[int, string](upstream, func(v int) Future[string] {
		called = true
		return ImmediateOk("got-10")
	})

	p := f.Poll(w)
	assert.True(t, p.IsNotReady())
	assert.False(t, called)

	p = f.Poll(w)
	require.True(t, p.IsReady())
	assert.True(t, called)
	v, _ := p.Value()
	assert.Equal(t, "got-10", v)
}

func TestAndThenSkipsOnUpstreamError(t *testing.T) {
	w := NewTestWaker()
	boom := errors.New("boom")
	upstream := &countingFuture{readyAfter: 1, err: boom}
	called := false
	f := AndThen[int, string](upstream, func(v int) Future[string] {
		called = true
		return ImmediateOk("never")
	})
	p := f.Poll(w)
	require.True(t, p.IsErr())
	assert.False(t, called)
	err, _ := p.Error()
	assert.ErrorIs(t, err, boom)
}

func TestThenObservesTryUniformly(t *testing.T) {
	w := NewTestWaker()
	boom := errors.New("boom")
	upstream := ImmediateErr[int](boom)
	f := Then(upstream, func(t Try[int]) Future[string] {
		if v, ok := t.Value(); ok {
			return ImmediateOk("ok:" + string(rune(v)))
		}
		return ImmediateOk("recovered:" + t.Err().Error())
	})
	p := f.Poll(w)
	require.True(t, p.IsReady())
	v, _ := p.Value()
	assert.Equal(t, "recovered:boom", v)
}

func TestOrElseRecoversFromError(t *testing.T) {
	w := NewTestWaker()
	boom := errors.New("boom")
	f := OrElse[int](ImmediateErr[int](boom), func(err error) Future[int] {
		assert.ErrorIs(t, err, boom)
		return ImmediateOk(99)
	})
	p := f.Poll(w)
	require.True(t, p.IsReady())
	v, _ := p.Value()
	assert.Equal(t, 99, v)
}

func TestOrElsePassesThroughSuccess(t *testing.T) {
	w := NewTestWaker()
	called := false
	f := OrElse[int](ImmediateOk(3), func(err error) Future[int] {
		called = true
		return ImmediateOk(-1)
	})
	p := f.Poll(w)
	v, _ := p.Value()
	assert.Equal(t, 3, v)
	assert.False(t, called)
}

func TestMap(t *testing.T) {
	w := NewTestWaker()
	f := Map(ImmediateOk(4), func(v int) int { return v * 2 })
	p := f.Poll(w)
	v, _ := p.Value()
	assert.Equal(t, 8, v)

	p = f.Poll(w)
	assert.True(t, p.IsErr())
}

func TestJoin(t *testing.T) {
	w := NewTestWaker()
	a := &countingFuture{readyAfter: 2, val: 1}
	b := &countingFuture{readyAfter: 1, val: 2}
	f := Join[int, int](a, b)

	p := f.Poll(w)
	assert.True(t, p.IsNotReady())

	p = f.Poll(w)
	require.True(t, p.IsReady())
	v, _ := p.Value()
	assert.Equal(t, 1, v.A)
	assert.Equal(t, 2, v.B)
}

func TestWhenAll(t *testing.T) {
	w := NewTestWaker()
	futs := []Future[int]{
		ImmediateOk(1),
		&countingFuture{readyAfter: 2, val: 2},
		ImmediateOk(3),
	}
	f := WhenAll(futs)
	p := f.Poll(w)
	assert.True(t, p.IsNotReady())
	p = f.Poll(w)
	require.True(t, p.IsReady())
	vs, _ := p.Value()
	assert.Equal(t, []int{1, 2, 3}, vs)
}

func TestWhenAllShortCircuitsOnError(t *testing.T) {
	w := NewTestWaker()
	boom := errors.New("boom")
	futs := []Future[int]{ImmediateOk(1), ImmediateErr[int](boom)}
	f := WhenAll(futs)
	p := f.Poll(w)
	require.True(t, p.IsErr())
	err, _ := p.Error()
	assert.ErrorIs(t, err, boom)
}

func TestSelectSliceLowestIndexWins(t *testing.T) {
	w := NewTestWaker()
	futs := []Future[int]{
		ImmediateOk(10),
		ImmediateOk(20),
	}
	f := SelectSlice(futs)
	p := f.Poll(w)
	require.True(t, p.IsReady())
	r, _ := p.Value()
	assert.Equal(t, 0, r.Winner.Index)
	v, ok := r.Winner.Try.Value()
	assert.True(t, ok)
	assert.Equal(t, 10, v)
	require.Len(t, r.Remaining, 1)
}

func TestSelectSliceEmptySet(t *testing.T) {
	w := NewTestWaker()
	f := SelectSlice[int](nil)
	p := f.Poll(w)
	require.True(t, p.IsErr())
	err, _ := p.Error()
	assert.ErrorIs(t, err, ErrEmptyFutureSet)
}

func TestWhenAny(t *testing.T) {
	w := NewTestWaker()
	futs := []Future[int]{&Empty[int]{}, ImmediateOk(5)}
	f := WhenAny(futs)
	p := f.Poll(w)
	require.True(t, p.IsReady())
	v, _ := p.Value()
	val, ok := v.Try.Value()
	assert.True(t, ok)
	assert.Equal(t, 5, val)
	assert.Equal(t, 1, v.Index)
}

func TestLoopFn(t *testing.T) {
	w := NewTestWaker()
	f := LoopFn(0, func(c int) Future[LoopState[string, int]] {
		if c >= 3 {
			return ImmediateOk(Break[string, int]("done"))
		}
		return ImmediateOk(Continue[string, int](c + 1))
	})
	p := f.Poll(w)
	require.True(t, p.IsReady())
	v, _ := p.Value()
	assert.Equal(t, "done", v)
}

func TestLoopFnPropagatesError(t *testing.T) {
	w := NewTestWaker()
	boom := errors.New("boom")
	f := LoopFn(0, func(c int) Future[LoopState[string, int]] {
		return ImmediateErr[LoopState[string, int]](boom)
	})
	p := f.Poll(w)
	require.True(t, p.IsErr())
	err, _ := p.Error()
	assert.ErrorIs(t, err, boom)
}

// seqStream yields items 0..n-1 then None.
type seqStream struct {
	n, i int
}

func (s *seqStream) Poll(w *Waker) Poll[Option[int]] {
	if s.i >= s.n {
		return Ready(None[int]())
	}
	v := s.i
	s.i++
	return Ready(Some(v))
}

func TestMapStream(t *testing.T) {
	w := NewTestWaker()
	s := MapStream[int, int](&seqStream{n: 3}, func(v int) int { return v * 10 })
	var got []int
	for {
		p := s.Poll(w)
		require.True(t, p.IsReady())
		opt, _ := p.Value()
		v, ok := opt.Get()
		if !ok {
			break
		}
		got = append(got, v)
	}
	assert.Equal(t, []int{0, 10, 20}, got)
}

func TestOptionSomeNone(t *testing.T) {
	some := Some(3)
	assert.True(t, some.IsSome())
	v, ok := some.Get()
	assert.True(t, ok)
	assert.Equal(t, 3, v)

	none := None[int]()
	assert.False(t, none.IsSome())
	_, ok = none.Get()
	assert.False(t, ok)
}

func TestMapPoll(t *testing.T) {
	p := MapPoll(Ready(2), func(v int) int { return v + 1 })
	v, ok := p.Value()
	assert.True(t, ok)
	assert.Equal(t, 3, v)

	p2 := MapPoll(NotReady[int](), func(v int) int { return v + 1 })
	assert.True(t, p2.IsNotReady())

	boom := errors.New("boom")
	p3 := MapPoll(Err[int](boom), func(v int) int { return v + 1 })
	assert.True(t, p3.IsErr())
}

func TestPollStringer(t *testing.T) {
	assert.Equal(t, "Ready(5)", Ready(5).String())
	assert.Equal(t, "NotReady", NotReady[int]().String())
	assert.Contains(t, Err[int](errors.New("x")).String(), "Err(")
}

func TestErrPanicsOnNil(t *testing.T) {
	assert.Panics(t, func() { Err[int](nil) })
}

func TestTaskUnpark(t *testing.T) {
	calls := 0
	task := NewTask(NewTaskID(), UnparkFunc(func() { calls++ }))
	task.Unpark()
	task.Unpark()
	assert.Equal(t, 2, calls)

	var zero Task
	zero.Unpark() // no-op, must not panic
}

func TestWakerNilTaskIsNoop(t *testing.T) {
	var w *Waker
	task := w.Task()
	assert.NotPanics(t, func() { task.Unpark() })
}
