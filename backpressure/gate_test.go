package backpressure

import (
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/rsnode/transport"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []interface{}
	subs int
	err  error
}

func (r *recordingPublisher) Publish(topic transport.Topic, msg interface{}, stamp time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingPublisher) SubscriberCount(topic transport.Topic) int {
	return r.subs
}

func (r *recordingPublisher) delivered() []interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]interface{}(nil), r.msgs...)
}

func TestFlowing(t *testing.T) {
	pub := &recordingPublisher{subs: 2}
	g := New(pub, transport.TopicImu, 3)
	test.That(t, g.Publish(1, time.Time{}), test.ShouldBeNil)
	test.That(t, pub.delivered(), test.ShouldResemble, []interface{}{1})
	test.That(t, g.SubscriberCount(), test.ShouldEqual, 2)
}

func TestPausedQueueFlushesInOrder(t *testing.T) {
	pub := &recordingPublisher{}
	const capacity = 4
	g := New(pub, transport.TopicImu, capacity)

	g.Pause()
	test.That(t, g.Paused(), test.ShouldBeTrue)
	for i := 0; i < capacity; i++ {
		test.That(t, g.Publish(i, time.Time{}), test.ShouldBeNil)
	}
	test.That(t, pub.delivered(), test.ShouldBeEmpty)
	test.That(t, g.Pending(), test.ShouldEqual, capacity)

	err := g.Publish(capacity, time.Time{})
	test.That(t, errors.Is(err, ErrBacklogFull), test.ShouldBeTrue)

	test.That(t, g.Resume(), test.ShouldBeNil)
	test.That(t, g.Publish("after", time.Time{}), test.ShouldBeNil)
	test.That(t, pub.delivered(), test.ShouldResemble, []interface{}{0, 1, 2, 3, "after"})
	test.That(t, g.Pending(), test.ShouldEqual, 0)
	test.That(t, g.Paused(), test.ShouldBeFalse)
}

func TestDisabledGateNeverPauses(t *testing.T) {
	pub := &recordingPublisher{}
	g := New(pub, transport.TopicImu, 1)
	g.SetEnabled(false)
	g.Pause()
	test.That(t, g.Paused(), test.ShouldBeFalse)
	test.That(t, g.Publish("a", time.Time{}), test.ShouldBeNil)
	test.That(t, g.Publish("b", time.Time{}), test.ShouldBeNil)
	test.That(t, pub.delivered(), test.ShouldResemble, []interface{}{"a", "b"})
}

func TestResumeReportsPublishErrors(t *testing.T) {
	pub := &recordingPublisher{}
	g := New(pub, transport.TopicImu, 0)
	g.Pause()
	test.That(t, g.Publish("a", time.Time{}), test.ShouldBeNil)
	pub.err = errors.New("transport down")

	err := g.Resume()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "transport down")
	// the queue is cleared and the gate flows again
	test.That(t, g.Pending(), test.ShouldEqual, 0)
	test.That(t, g.Paused(), test.ShouldBeFalse)
}

func TestCloseFlushes(t *testing.T) {
	pub := &recordingPublisher{}
	g := New(pub, transport.TopicImu, 10)
	g.Pause()
	test.That(t, g.Publish("queued", time.Time{}), test.ShouldBeNil)
	test.That(t, g.Close(), test.ShouldBeNil)
	test.That(t, pub.delivered(), test.ShouldResemble, []interface{}{"queued"})
}

func TestOverlappingPausesNest(t *testing.T) {
	pub := &recordingPublisher{}
	g := New(pub, transport.TopicImu, 10)

	// a frame set and a lone frame in flight at once
	g.Pause()
	g.Pause()
	test.That(t, g.Publish("a", time.Time{}), test.ShouldBeNil)

	test.That(t, g.Resume(), test.ShouldBeNil)
	test.That(t, g.Paused(), test.ShouldBeTrue)
	test.That(t, g.Publish("b", time.Time{}), test.ShouldBeNil)
	test.That(t, pub.delivered(), test.ShouldBeEmpty)

	test.That(t, g.Resume(), test.ShouldBeNil)
	test.That(t, g.Paused(), test.ShouldBeFalse)
	test.That(t, pub.delivered(), test.ShouldResemble, []interface{}{"a", "b"})

	// unmatched resumes do not go below flowing
	test.That(t, g.Resume(), test.ShouldBeNil)
	g.Pause()
	test.That(t, g.Paused(), test.ShouldBeTrue)
	test.That(t, g.Close(), test.ShouldBeNil)
	test.That(t, g.Paused(), test.ShouldBeFalse)
}
