// Package main runs a node against the synthetic device and reports what it publishes.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"gopkg.in/natefinch/lumberjack.v2"

	"go.viam.com/rsnode/device"
	"go.viam.com/rsnode/device/fake"
	"go.viam.com/rsnode/logging"
	"go.viam.com/rsnode/node"
	"go.viam.com/rsnode/transport"
	"go.viam.com/rsnode/transport/inmem"
)

const (
	flagConfig    = "config"
	flagDebug     = "debug"
	flagLogFile   = "log-file"
	flagTrace     = "trace-frames"
	flagSubscribe = "subscribe"
	flagStats     = "stats-interval"
	flagWidth     = "width"
	flagHeight    = "height"
	flagFPS       = "fps"
)

func main() {
	app := &cli.App{
		Name:  "rsnode",
		Usage: "publish the streams of a depth camera",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`; runtime parameters are reloaded when it changes",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
			&cli.StringFlag{
				Name:  flagLogFile,
				Usage: "also write logs to `FILE`, rotated by size",
			},
			&cli.BoolFlag{
				Name:  flagTrace,
				Usage: "log per frame set processing details without enabling debug logging elsewhere",
			},
			&cli.StringSliceFlag{
				Name:  flagSubscribe,
				Usage: "topics to consume",
				Value: cli.NewStringSlice(string(transport.ImageTopic(device.DepthStream)), string(transport.TopicImu)),
			},
			&cli.DurationFlag{
				Name:  flagStats,
				Usage: "how often to log delivery counters",
				Value: 5 * time.Second,
			},
			&cli.IntFlag{Name: flagWidth, Value: fake.DefaultOptions().Width},
			&cli.IntFlag{Name: flagHeight, Value: fake.DefaultOptions().Height},
			&cli.IntFlag{Name: flagFPS, Value: fake.DefaultOptions().FPS},
		},
		Action: run,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := app.RunContext(ctx, os.Args)
	stop()
	if err != nil {
		logging.Global().Error(err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logger := logging.NewLogger("rsnode")
	if c.Bool(flagDebug) {
		logger = logging.NewDebugLogger("rsnode")
	}
	if path := c.String(flagLogFile); path != "" {
		rotating := &lumberjack.Logger{Filename: path, MaxSize: 64, MaxBackups: 2, Compress: true}
		defer utils.UncheckedErrorFunc(rotating.Close)
		logger.AddAppender(logging.NewWriterAppender(rotating))
	}
	logging.ReplaceGlobal(logger)

	conf := node.DefaultConfig()
	if path := c.String(flagConfig); path != "" {
		loaded, err := node.LoadConfigFile(path)
		if err != nil {
			return err
		}
		conf = *loaded
	}

	opts := fake.DefaultOptions()
	opts.Width, opts.Height, opts.FPS = c.Int(flagWidth), c.Int(flagHeight), c.Int(flagFPS)
	dev := fake.NewDevice(opts, logger.Sublogger("device"))
	bus := inmem.New()

	n, err := node.New(c.Context, dev, bus, clock.New(), conf, logger.Sublogger("node"))
	if err != nil {
		return errors.Wrap(err, "starting node")
	}

	var watcher *node.ParameterWatcher
	if path := c.String(flagConfig); path != "" {
		if watcher, err = node.NewParameterWatcher(path, n, logger.Sublogger("config")); err != nil {
			return multierr.Combine(err, n.Close())
		}
	}

	workers := utils.NewBackgroundStoppableWorkers()
	var consumers []*consumer
	for _, name := range c.StringSlice(flagSubscribe) {
		cons := newConsumer(transport.Topic(name))
		if _, err := bus.Subscribe(cons.topic, cons.ch); err != nil {
			workers.Stop()
			return multierr.Combine(err, n.Close())
		}
		consumers = append(consumers, cons)
		workers.Add(cons.drain)
	}
	workers.Add(func(ctx context.Context) {
		for utils.SelectContextOrWait(ctx, c.Duration(flagStats)) {
			delivered := bus.Stats()
			logger.Infow("delivery", "published", delivered.Published, "sent", delivered.Sent, "dropped", delivered.Dropped,
				"device_resets", dev.Resets())
		}
	})

	callback := n.Dispatch
	if c.Bool(flagTrace) {
		callback = func(ctx context.Context, sample device.Sample) error {
			return n.Dispatch(logging.EnableDebugMode(ctx, "frames"), sample)
		}
	}
	dev.Start(callback)
	logger.Infow("node running", "camera", conf.CameraName, "base", n.Base().Identity().String())
	<-c.Context.Done()
	logger.Info("shutting down")

	errs := dev.Close()
	workers.Stop()
	fmt.Fprintln(c.App.Writer, renderSummary(consumers))
	if watcher != nil {
		errs = multierr.Append(errs, watcher.Close())
	}
	return multierr.Combine(errs, n.Close(), bus.Close())
}

// consumer counts what one subscribed topic receives.
type consumer struct {
	topic transport.Topic
	ch    chan inmem.Message

	mu        sync.Mutex
	count     int
	last      time.Time
	intervals []float64
}

func newConsumer(topic transport.Topic) *consumer {
	return &consumer{topic: topic, ch: make(chan inmem.Message, 16)}
}

func (c *consumer) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-c.ch:
			c.record(m.Stamp)
		}
	}
}

func (c *consumer) record(stamp time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
	if !c.last.IsZero() {
		c.intervals = append(c.intervals, float64(stamp.Sub(c.last))/float64(time.Millisecond))
	}
	c.last = stamp
}

// summary returns the message count and the mean and 95th percentile stamp interval in ms.
func (c *consumer) summary() (int, float64, float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.intervals) == 0 {
		return c.count, 0, 0
	}
	mean, err := stats.Mean(c.intervals)
	if err != nil {
		return c.count, 0, 0
	}
	p95, err := stats.Percentile(c.intervals, 95)
	if err != nil {
		return c.count, mean, 0
	}
	return c.count, mean, p95
}

func renderSummary(consumers []*consumer) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Topic", "Messages", "Mean interval (ms)", "P95 interval (ms)"})
	for _, c := range consumers {
		count, mean, p95 := c.summary()
		t.AppendRow(table.Row{string(c.topic), count, fmt.Sprintf("%.2f", mean), fmt.Sprintf("%.2f", p95)})
	}
	return t.Render()
}
