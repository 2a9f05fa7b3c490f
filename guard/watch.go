package guard

import (
	"sync"

	goSession "github.com/MrEthical07/goSession"
)

// Source is what a guard reads session state from.
//
//	Implemented by *goSession.Manager.
type Source interface {
	State() goSession.State
	Subscribe(fn func(goSession.State)) (cancel func())
}

// Watcher keeps a guard's decision current as the session changes. Changes
// is signalled (coalesced) whenever the decision may have changed.
type Watcher struct {
	guard  Guard
	src    Source
	cancel func()

	mu       sync.RWMutex
	decision Decision
	changes  chan struct{}
}

// Watch subscribes g to src. Call Stop to unsubscribe.
func Watch(src Source, g Guard) *Watcher {
	w := &Watcher{
		guard:   g,
		src:     src,
		changes: make(chan struct{}, 1),
	}
	w.cancel = src.Subscribe(w.update)
	w.update(goSession.State{})
	return w
}

// update re-reads the source under the lock; the last update to run sees
// the newest state.
func (w *Watcher) update(goSession.State) {
	w.mu.Lock()
	w.decision = w.guard.Evaluate(w.src.State())
	w.mu.Unlock()

	select {
	case w.changes <- struct{}{}:
	default:
	}
}

// Decision returns the latest decision.
func (w *Watcher) Decision() Decision {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.decision
}

// Changes is signalled after each re-evaluation. Several updates may
// collapse into one signal; read Decision after receiving.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Stop unsubscribes from the source.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
}
