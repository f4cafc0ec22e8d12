package device

import "sync"

// Channel names used by the pipeline.
const (
	ChannelLoad    = "load"
	ChannelCompute = "compute"
	ChannelStore   = "store"
)

// Channel is an ordered asynchronous execution queue. Enqueued operations
// execute in issue order on a dedicated goroutine; across channels no
// ordering is guaranteed except what Synchronize enforces.
type Channel struct {
	name string
	ops  chan func() error

	mu        sync.Mutex
	done      *sync.Cond
	enqueued  int
	completed int
	err       error
	closed    bool
}

// OpenChannel starts a named channel.
func OpenChannel(name string) *Channel {
	c := &Channel{name: name, ops: make(chan func() error, 16)}
	c.done = sync.NewCond(&c.mu)
	go c.run()
	return c
}

func (c *Channel) run() {
	for op := range c.ops {
		c.mu.Lock()
		failed := c.err != nil
		c.mu.Unlock()

		var err error
		if !failed {
			err = op()
		}

		c.mu.Lock()
		c.completed++
		if err != nil && c.err == nil {
			c.err = err
		}
		c.done.Broadcast()
		c.mu.Unlock()
	}
}

// Name returns the channel name.
func (c *Channel) Name() string { return c.name }

// Enqueue submits op for asynchronous execution. Operations enqueued after
// a failure are skipped.
func (c *Channel) Enqueue(op func() error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		panic("device: enqueue on closed channel")
	}
	c.enqueued++
	c.mu.Unlock()
	c.ops <- op
}

// Synchronize blocks until every previously enqueued operation has executed
// and returns the channel's first failure, if any.
func (c *Channel) Synchronize() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.completed < c.enqueued {
		c.done.Wait()
	}
	return c.err
}

// Close drains the channel and stops its goroutine. The channel must not be
// used afterwards.
func (c *Channel) Close() error {
	err := c.Synchronize()
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.ops)
	}
	c.mu.Unlock()
	return err
}
