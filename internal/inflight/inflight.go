// Package inflight counts running invocations so shutdown can wait for them.
package inflight

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/ericbottard/streaming-function-invoker/invoker"
)

// Counter tracks in-flight invocations that should block draining.
type Counter struct {
	mu     sync.Mutex
	count  int64
	zeroCh chan struct{}
}

// Inc increments the in-flight counter.
func (c *Counter) Inc() {
	c.mu.Lock()
	c.init()
	if c.count == 0 {
		c.zeroCh = make(chan struct{})
	}
	c.count++
	c.mu.Unlock()
}

// Dec decrements the in-flight counter.
func (c *Counter) Dec() {
	c.mu.Lock()
	c.init()
	if c.count > 0 {
		c.count--
		if c.count == 0 {
			close(c.zeroCh)
		}
	}
	c.mu.Unlock()
}

// init lazily creates a closed zero channel; callers hold mu.
func (c *Counter) init() {
	if c.zeroCh == nil {
		c.zeroCh = make(chan struct{})
		if c.count == 0 {
			close(c.zeroCh)
		}
	}
}

// Load returns the current in-flight count.
func (c *Counter) Load() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// WaitForZero blocks until the count is zero or the context is done.
func (c *Counter) WaitForZero(ctx context.Context) bool {
	c.mu.Lock()
	c.init()
	ch := c.zeroCh
	c.mu.Unlock()
	select {
	case <-ch:
		return true
	case <-ctx.Done():
		return false
	}
}

// Drain waits for the count to reach zero. A negative timeout waits
// indefinitely and zero does not wait at all.
func (c *Counter) Drain(timeout time.Duration) bool {
	switch {
	case timeout == 0:
		return c.Load() == 0
	case timeout < 0:
		return c.WaitForZero(context.Background())
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.WaitForZero(ctx)
}

// Middleware increments the counter for the duration of a request.
func (c *Counter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c.Inc()
			defer c.Dec()
			next.ServeHTTP(w, r)
		})
	}
}

// Observer wraps next so that every served invocation is counted.
func (c *Counter) Observer(next invoker.Observer) invoker.Observer {
	return &observer{Observer: next, c: c}
}

type observer struct {
	invoker.Observer
	c *Counter
}

func (o *observer) InvocationStarted(function string) {
	o.c.Inc()
	o.Observer.InvocationStarted(function)
}

func (o *observer) InvocationFinished(function string, err error, elapsed time.Duration) {
	o.Observer.InvocationFinished(function, err, elapsed)
	o.c.Dec()
}
