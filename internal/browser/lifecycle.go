package browser

import "sync"

// Page lifecycle event names reported by Chrome.
const (
	lifecycleInit             = "init"
	lifecycleDOMContentLoaded = "DOMContentLoaded"
	lifecycleNetworkIdle      = "networkIdle"
)

type lifecycleEvent struct {
	Name     string
	LoaderID string
}

// lifecycleFeed fans lifecycle events out to navigations waiting on them.
// Slow subscribers lose events rather than stall the listener.
type lifecycleFeed struct {
	mu   sync.Mutex
	subs map[chan lifecycleEvent]struct{}
}

func newLifecycleFeed() *lifecycleFeed {
	return &lifecycleFeed{subs: make(map[chan lifecycleEvent]struct{})}
}

func (f *lifecycleFeed) subscribe() (<-chan lifecycleEvent, func()) {
	ch := make(chan lifecycleEvent, 64)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()
	return ch, func() {
		f.mu.Lock()
		delete(f.subs, ch)
		f.mu.Unlock()
	}
}

func (f *lifecycleFeed) publish(ev lifecycleEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
