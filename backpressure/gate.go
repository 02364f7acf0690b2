// Package backpressure defers a high rate output while a frame set is being published so that
// a consumer never sees it interleaved with the messages of one capture instant.
package backpressure

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/rsnode/transport"
)

// DefaultCapacity is the default number of messages held while paused.
const DefaultCapacity = 1000

// ErrBacklogFull is returned by Publish when the paused queue is at capacity. It signals that
// frame set processing is persistently starving the gated stream.
var ErrBacklogFull = errors.New("pending message queue is full; frame set processing cannot keep up")

type pending struct {
	msg   interface{}
	stamp time.Time
}

// Gate wraps one topic of a Publisher. While paused, Publish queues in FIFO order; Resume
// flushes the queue before any later message can flow.
type Gate struct {
	pub      transport.Publisher
	topic    transport.Topic
	capacity int

	mu      sync.Mutex
	enabled bool
	// outstanding Pause calls; frame callbacks may overlap
	depth int
	queue []pending
}

// New returns an enabled, flowing gate.
func New(pub transport.Publisher, topic transport.Topic, capacity int) *Gate {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Gate{pub: pub, topic: topic, capacity: capacity, enabled: true}
}

// SetEnabled controls whether Pause has any effect. A gate whose topic has no competing frame
// set publisher is disabled.
func (g *Gate) SetEnabled(enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.enabled = enabled
}

// Publish delivers msg immediately when flowing, or queues it when paused.
func (g *Gate) Publish(msg interface{}, stamp time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.enabled && g.depth > 0 {
		if len(g.queue) >= g.capacity {
			return errors.Wrapf(ErrBacklogFull, "topic %q holds %d messages", g.topic, len(g.queue))
		}
		g.queue = append(g.queue, pending{msg, stamp})
		return nil
	}
	return g.pub.Publish(g.topic, msg, stamp)
}

// Pause starts queueing. Pauses nest: the gate flows again only once every Pause has been
// matched by a Resume. It is a no-op on a disabled gate.
func (g *Gate) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.enabled {
		return
	}
	g.depth++
}

// Resume releases one Pause. When none remain, queued messages are flushed in submission order
// and the gate returns to flowing.
func (g *Gate) Resume() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.depth > 0 {
		g.depth--
	}
	if g.depth > 0 {
		return nil
	}
	return g.flush()
}

func (g *Gate) flush() error {
	var errs error
	for _, p := range g.queue {
		errs = multierr.Combine(errs, g.pub.Publish(g.topic, p.msg, p.stamp))
	}
	g.queue = g.queue[:0]
	return errs
}

// Paused reports whether the gate is queueing.
func (g *Gate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.depth > 0
}

// Pending is the number of queued messages.
func (g *Gate) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queue)
}

// SubscriberCount is the number of consumers of the gated topic.
func (g *Gate) SubscriberCount() int {
	return g.pub.SubscriberCount(g.topic)
}

// Close drops any outstanding pauses and flushes anything still queued.
func (g *Gate) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.depth = 0
	return g.flush()
}
