package inmem

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/rsnode/transport"
)

func TestPublishFanOut(t *testing.T) {
	bus := New()
	defer bus.Close()

	first := make(chan Message, 1)
	second := make(chan Message, 1)
	_, err := bus.Subscribe(transport.TopicImu, first)
	test.That(t, err, test.ShouldBeNil)
	id, err := bus.Subscribe(transport.TopicImu, second)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, bus.SubscriberCount(transport.TopicImu), test.ShouldEqual, 2)
	test.That(t, bus.SubscriberCount(transport.TopicOdom), test.ShouldEqual, 0)

	stamp := time.Unix(10, 0)
	test.That(t, bus.Publish(transport.TopicImu, "a", stamp), test.ShouldBeNil)
	test.That(t, (<-first).Value, test.ShouldEqual, "a")
	got := <-second
	test.That(t, got.Stamp, test.ShouldEqual, stamp)

	// full channels drop instead of blocking
	test.That(t, bus.Publish(transport.TopicImu, "b", stamp), test.ShouldBeNil)
	test.That(t, bus.Publish(transport.TopicImu, "c", stamp), test.ShouldBeNil)
	stats := bus.Stats()
	test.That(t, stats.Published, test.ShouldEqual, uint64(3))
	test.That(t, stats.Sent, test.ShouldEqual, uint64(4))
	test.That(t, stats.Dropped, test.ShouldEqual, uint64(2))

	test.That(t, bus.Unsubscribe(transport.TopicImu, id), test.ShouldBeNil)
	test.That(t, bus.SubscriberCount(transport.TopicImu), test.ShouldEqual, 1)
	test.That(t, bus.Unsubscribe(transport.TopicImu, id), test.ShouldNotBeNil)
}

func TestLatchedDeliveredToLateSubscribers(t *testing.T) {
	bus := New()
	defer bus.Close()

	test.That(t, bus.PublishLatched(transport.TopicTFStatic, 42, time.Time{}), test.ShouldBeNil)
	ch := make(chan Message, 1)
	_, err := bus.Subscribe(transport.TopicTFStatic, ch)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, (<-ch).Value, test.ShouldEqual, 42)
}

func TestClosedBus(t *testing.T) {
	bus := New()
	test.That(t, bus.Close(), test.ShouldBeNil)
	err := bus.Publish(transport.TopicTF, nil, time.Time{})
	test.That(t, errors.Is(err, ErrBusClosed), test.ShouldBeTrue)
	_, err = bus.Subscribe(transport.TopicTF, make(chan Message))
	test.That(t, errors.Is(err, ErrBusClosed), test.ShouldBeTrue)
}
