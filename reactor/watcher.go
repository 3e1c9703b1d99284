package reactor

// Watcher is anything the reactor must tear down when it stops: an
// IoObject with pending tokens, a Timer/TimerKeeper with an armed
// deadline, or a SignalSource with a registered signal (spec.md §4.5
// step 4 / §5: "Stopping the executor cancels every registered watcher
// with ExecutorShutdown").
type Watcher interface {
	// OnCancel tears the watcher down for the given reason. Must be
	// idempotent and must eventually cause the watcher to unregister
	// itself from the reactor.
	OnCancel(reason CancelReason)
}

// registerWatcher adds w to the reactor's watcher set and returns an id
// for later unregisterWatcherID calls. Safe to call from any goroutine.
func (r *Reactor) registerWatcher(w Watcher) uint64 {
	r.watchMu.Lock()
	r.watchID++
	id := r.watchID
	r.watchers[id] = w
	r.watchMu.Unlock()
	return id
}

// unregisterWatcherID removes a previously registered watcher.
func (r *Reactor) unregisterWatcherID(id uint64) {
	r.watchMu.Lock()
	delete(r.watchers, id)
	r.watchMu.Unlock()
}

// watcherCount reports how many watchers are currently registered.
func (r *Reactor) watcherCount() int {
	r.watchMu.Lock()
	defer r.watchMu.Unlock()
	return len(r.watchers)
}

// cancelAllWatchers calls OnCancel(reason) on every registered watcher
// until the set drains (watchers remove themselves from within
// OnCancel, per spec.md §4.5 step 4).
func (r *Reactor) cancelAllWatchers(reason CancelReason) {
	for {
		r.watchMu.Lock()
		if len(r.watchers) == 0 {
			r.watchMu.Unlock()
			return
		}
		batch := make([]Watcher, 0, len(r.watchers))
		for _, w := range r.watchers {
			batch = append(batch, w)
		}
		r.watchMu.Unlock()
		for _, w := range batch {
			w.OnCancel(reason)
		}
	}
}
