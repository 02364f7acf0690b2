package framegraph

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-co-op/gocron/v2"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/rsnode/logging"
	"go.viam.com/rsnode/msgs"
	"go.viam.com/rsnode/transport"
)

// Broadcaster publishes the edges of a Builder, either once as latched state or periodically.
type Broadcaster struct {
	builder *Builder
	pub     transport.Publisher
	clock   clock.Clock
	rate    float64
	logger  logging.Logger

	scheduler gocron.Scheduler
}

// NewBroadcaster returns a broadcaster publishing at rate Hz. A non-positive rate publishes the
// edges once on the static topic.
func NewBroadcaster(builder *Builder, pub transport.Publisher, clk clock.Clock, rate float64, logger logging.Logger) *Broadcaster {
	return &Broadcaster{builder: builder, pub: pub, clock: clk, rate: rate, logger: logger}
}

// Start publishes the static edge set, or schedules its periodic re-publication.
func (b *Broadcaster) Start() error {
	if b.rate <= 0 {
		now := b.clock.Now()
		msg := &msgs.TransformList{Transforms: b.builder.Stamped(now)}
		if latcher, ok := b.pub.(transport.Latcher); ok {
			return latcher.PublishLatched(transport.TopicTFStatic, msg, now)
		}
		return b.pub.Publish(transport.TopicTFStatic, msg, now)
	}

	if b.scheduler != nil {
		return errors.New("broadcaster already started")
	}
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	period := time.Duration(float64(time.Second) / b.rate)
	_, err = scheduler.NewJob(
		gocron.DurationJob(period),
		gocron.NewTask(b.publish),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return multierr.Combine(err, scheduler.Shutdown())
	}
	b.logger.Infow("publishing dynamic camera transforms", "rate_hz", b.rate)
	scheduler.Start()
	b.scheduler = scheduler
	return nil
}

func (b *Broadcaster) publish() {
	now := b.clock.Now()
	msg := &msgs.TransformList{Transforms: b.builder.Stamped(now)}
	if err := b.pub.Publish(transport.TopicTF, msg, now); err != nil {
		b.logger.Warnw("failed to publish transforms", "error", err)
	}
}

// Close stops periodic publication.
func (b *Broadcaster) Close() error {
	if b.scheduler == nil {
		return nil
	}
	err := b.scheduler.Shutdown()
	b.scheduler = nil
	return err
}
