package timebase

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"

	"go.viam.com/rsnode/device"
	"go.viam.com/rsnode/logging"
)

func TestToHostTimeIsLinear(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(time.Unix(1700000000, 0))
	tb := New(clk, logging.NewTestLogger(t))

	_, ok := tb.Anchor()
	test.That(t, ok, test.ShouldBeFalse)
	anchor := tb.EnsureAnchored(1000.25, device.HardwareClock)
	test.That(t, anchor.Host, test.ShouldEqual, clk.Now())
	test.That(t, tb.Anchored(), test.ShouldBeTrue)

	// the host clock moving does not affect conversions
	clk.Add(time.Hour)

	test.That(t, tb.ToHostTime(1000.25), test.ShouldEqual, anchor.Host)
	d1, d2 := 1003.5, 1010.000125
	delta := tb.ToHostTime(d2).Sub(tb.ToHostTime(d1))
	test.That(t, delta, test.ShouldEqual, 6500125*time.Nanosecond)
	test.That(t, tb.Elapsed(1001.25), test.ShouldEqual, time.Millisecond)

	// before the anchor the mapping runs backwards
	test.That(t, tb.ToHostTime(999.25), test.ShouldEqual, anchor.Host.Add(-time.Millisecond))
}

func TestEnsureAnchoredIsIdempotent(t *testing.T) {
	clk := clock.NewMock()
	tb := New(clk, logging.NewTestLogger(t))

	const streams = 16
	var wg sync.WaitGroup
	anchors := make([]Anchor, streams)
	for i := 0; i < streams; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			anchors[i] = tb.EnsureAnchored(float64(i*10), device.HardwareClock)
		}(i)
	}
	wg.Wait()

	winner, ok := tb.Anchor()
	test.That(t, ok, test.ShouldBeTrue)
	for _, a := range anchors {
		test.That(t, a, test.ShouldResemble, winner)
	}

	clk.Add(time.Second)
	test.That(t, tb.EnsureAnchored(5000, device.HardwareClock), test.ShouldResemble, winner)
}

func TestSystemTimeDomainWarnsOnce(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	tb := New(clock.NewMock(), logger)

	tb.EnsureAnchored(1, device.SystemTime)
	tb.EnsureAnchored(2, device.SystemTime)
	test.That(t, logs.FilterMessageSnippet("not hardware clock based").Len(), test.ShouldEqual, 1)

	logger, logs = logging.NewObservedTestLogger(t)
	tb = New(clock.NewMock(), logger)
	tb.EnsureAnchored(1, device.GlobalTime)
	test.That(t, logs.FilterMessageSnippet("not hardware clock based").Len(), test.ShouldEqual, 0)
}
