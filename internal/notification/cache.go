package notification

import "sync"

type cacheState int

const (
	stateCaching cacheState = iota
	stateFlushed
)

func (s cacheState) String() string {
	if s == stateCaching {
		return "caching"
	}
	return "flushed"
}

// deferredCache buffers fired notifications until enough handler kinds are
// installed. Caching -> Flushed happens exactly once.
//
// While the backlog drains, new offers keep queueing behind it so firing
// order is preserved and a handler that fires from inside dispatch does not
// re-enter the drain loop.
type deferredCache struct {
	mu       sync.Mutex
	state    cacheState
	draining bool
	queue    []*Data
}

// offer queues d and returns true unless the cache has been flushed and
// fully drained.
func (c *deferredCache) offer(d *Data) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateFlushed && !c.draining {
		return false
	}
	c.queue = append(c.queue, d)
	return true
}

// beginFlush moves to Flushed. Only the first caller gets true and owns the
// drain.
func (c *deferredCache) beginFlush() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateCaching {
		return false
	}
	c.state = stateFlushed
	c.draining = true
	return true
}

// next pops the oldest queued item. When the queue is empty the drain ends
// and the queue is released.
func (c *deferredCache) next() (*Data, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		c.draining = false
		c.queue = nil
		return nil, false
	}
	d := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	return d, true
}

func (c *deferredCache) snapshot() (cacheState, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, len(c.queue)
}
