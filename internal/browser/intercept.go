package browser

import (
	"errors"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"go.uber.org/zap"
)

var errNoFetcher = errors.New("no response body fetcher")

// interceptor pairs responseReceived with loadingFinished events and fetches
// matching bodies in their own goroutines so the chromedp event loop never
// waits on a CDP round trip.
type interceptor struct {
	mu      sync.Mutex
	pending map[network.RequestID]string
	match   func(string) bool
	onMatch func(string, []byte)
	fetch   func(network.RequestID) ([]byte, error)
	logger  *zap.Logger
	wg      sync.WaitGroup
}

func newInterceptor(logger *zap.Logger, fetch func(network.RequestID) ([]byte, error)) *interceptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &interceptor{
		pending: make(map[network.RequestID]string),
		fetch:   fetch,
		logger:  logger,
	}
}

func (i *interceptor) set(match func(string) bool, onMatch func(string, []byte)) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.match = match
	i.onMatch = onMatch
}

func (i *interceptor) handle(ev any) {
	switch e := ev.(type) {
	case *network.EventResponseReceived:
		if e.Response == nil {
			return
		}
		i.mu.Lock()
		if i.match != nil && i.match(e.Response.URL) {
			i.pending[e.RequestID] = e.Response.URL
		}
		i.mu.Unlock()
	case *network.EventLoadingFailed:
		i.mu.Lock()
		delete(i.pending, e.RequestID)
		i.mu.Unlock()
	case *network.EventLoadingFinished:
		i.mu.Lock()
		url, ok := i.pending[e.RequestID]
		delete(i.pending, e.RequestID)
		onMatch := i.onMatch
		i.mu.Unlock()
		if !ok || onMatch == nil {
			return
		}
		i.wg.Add(1)
		go func(id network.RequestID) {
			defer i.wg.Done()
			body, err := i.fetch(id)
			if err != nil {
				i.logger.Debug("response body unavailable", zap.String("url", url), zap.Error(err))
				return
			}
			onMatch(url, body)
		}(e.RequestID)
	}
}

// wait blocks until in-flight body fetches finish or timeout elapses.
func (i *interceptor) wait(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		i.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
	}
}
