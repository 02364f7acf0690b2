package main

import (
	"testing"
	"time"

	"go.viam.com/test"

	"go.viam.com/rsnode/transport"
)

func TestConsumerSummary(t *testing.T) {
	c := newConsumer(transport.TopicImu)
	count, mean, p95 := c.summary()
	test.That(t, count, test.ShouldEqual, 0)
	test.That(t, mean, test.ShouldEqual, 0.0)
	test.That(t, p95, test.ShouldEqual, 0.0)

	start := time.Unix(10, 0)
	for _, offset := range []time.Duration{0, 10, 20, 30, 70} {
		c.record(start.Add(offset * time.Millisecond))
	}
	count, mean, _ = c.summary()
	test.That(t, count, test.ShouldEqual, 5)
	test.That(t, mean, test.ShouldAlmostEqual, 17.5)

	rendered := renderSummary([]*consumer{c})
	test.That(t, rendered, test.ShouldContainSubstring, "imu")
	test.That(t, rendered, test.ShouldContainSubstring, "17.50")
}
