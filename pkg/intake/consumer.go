package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	kafka "github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/cuemby/fleetdrain/pkg/config"
	"github.com/cuemby/fleetdrain/pkg/drain"
	"github.com/cuemby/fleetdrain/pkg/log"
	"github.com/cuemby/fleetdrain/pkg/metrics"
	"github.com/cuemby/fleetdrain/pkg/types"
)

// MessageReader is the subset of *kafka.Reader used by the consumer
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Processor handles one instance record; *drain.Controller satisfies it
type Processor interface {
	Reconcile(ctx context.Context, rec types.InstanceRecord) drain.Result
}

// Options bound how fast records are handed to the processor
type Options struct {
	Workers       int
	RatePerSecond float64
	RecordTimeout time.Duration
}

// OptionsFromConfig converts the intake configuration section
func OptionsFromConfig(cfg config.IntakeConfig) Options {
	return Options{
		Workers:       cfg.Workers,
		RatePerSecond: cfg.RatePerSecond,
		RecordTimeout: cfg.RecordTimeout,
	}
}

// Stats counts record outcomes of one batch
type Stats struct {
	Records  int
	OK       int
	Ignored  int
	Aborted  int
	Rejected int
}

func (s *Stats) add(res drain.Result) {
	switch res.Outcome() {
	case "ignored":
		s.Ignored++
	case "aborted":
		s.Aborted++
	default:
		s.OK++
	}
}

// NewKafkaReader creates a consumer-group reader for the intake topic
func NewKafkaReader(cfg config.KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		MaxBytes:    10 * 1024 * 1024,
		StartOffset: kafka.FirstOffset,
	})
}

// Consumer reads instance batches and feeds their records to a Processor.
// A message is committed only after every record in it was processed, so
// a crash redelivers the whole batch.
type Consumer struct {
	reader  MessageReader
	proc    Processor
	opts    Options
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewConsumer creates a consumer. reader may be nil when only ProcessBatch is used.
func NewConsumer(reader MessageReader, proc Processor, opts Options) *Consumer {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	return &Consumer{
		reader:  reader,
		proc:    proc,
		opts:    opts,
		limiter: rate.NewLimiter(limit, opts.Workers),
		logger:  log.WithComponent("intake"),
	}
}

// Run consumes messages until ctx is cancelled or the reader is closed
func (c *Consumer) Run(ctx context.Context) error {
	if c.reader == nil {
		return fmt.Errorf("intake: no message reader")
	}
	c.logger.Info().Int("workers", c.opts.Workers).Msg("Consuming instance batches")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("intake: fetch message: %w", err)
		}

		if err := c.HandleMessage(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// HandleMessage processes one message and commits it. A message whose payload
// cannot be parsed is committed and dropped; it would never succeed.
func (c *Consumer) HandleMessage(ctx context.Context, msg kafka.Message) error {
	logger := c.logger.With().
		Str("group", string(msg.Key)).
		Int("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Logger()

	records, rejected, err := Decode(msg.Value)
	if err != nil {
		logger.Error().Err(err).Msg("Dropping undecodable message")
		metrics.IntakeMessagesTotal.WithLabelValues("undecodable").Inc()
		c.commit(ctx, logger, msg)
		return nil
	}
	for _, rerr := range rejected {
		logger.Warn().Err(rerr).Msg("Skipping invalid instance record")
	}

	stats, err := c.ProcessBatch(ctx, records)
	stats.Rejected = len(rejected)
	metrics.IntakeRecordsTotal.WithLabelValues("invalid").Add(float64(stats.Rejected))
	if err != nil {
		metrics.IntakeMessagesTotal.WithLabelValues("cancelled").Inc()
		logger.Warn().Err(err).Msg("Batch interrupted, leaving message uncommitted")
		return err
	}

	metrics.IntakeMessagesTotal.WithLabelValues("processed").Inc()
	logger.Info().
		Int("records", stats.Records).
		Int("ok", stats.OK).
		Int("ignored", stats.Ignored).
		Int("aborted", stats.Aborted).
		Int("rejected", stats.Rejected).
		Msg("Processed instance batch")
	c.commit(ctx, logger, msg)
	return nil
}

// commit acknowledges msg. A failed commit is logged and the loop keeps
// going; the message is delivered again, which the controller tolerates.
func (c *Consumer) commit(ctx context.Context, logger zerolog.Logger, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		metrics.IntakeMessagesTotal.WithLabelValues("uncommitted").Inc()
		logger.Error().Err(err).Msg("Failed to commit message, it will be redelivered")
	}
}

// ProcessBatch runs every record through the processor with bounded
// parallelism. It returns early only when ctx is cancelled; the per-record
// outcome never fails the batch.
func (c *Consumer) ProcessBatch(ctx context.Context, records []types.InstanceRecord) (Stats, error) {
	var (
		mu    sync.Mutex
		stats = Stats{Records: len(records)}
		g     errgroup.Group
	)
	g.SetLimit(c.opts.Workers)

	for _, rec := range records {
		if err := c.limiter.Wait(ctx); err != nil {
			break
		}
		g.Go(func() error {
			rctx := ctx
			if c.opts.RecordTimeout > 0 {
				var cancel context.CancelFunc
				rctx, cancel = context.WithTimeout(ctx, c.opts.RecordTimeout)
				defer cancel()
			}
			res := c.proc.Reconcile(rctx, rec)
			metrics.IntakeRecordsTotal.WithLabelValues(res.Outcome()).Inc()

			mu.Lock()
			stats.add(res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return stats, err
	}
	return stats, nil
}

// Close closes the underlying reader
func (c *Consumer) Close() error {
	if c.reader == nil {
		return nil
	}
	return c.reader.Close()
}
