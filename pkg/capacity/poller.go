package capacity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/gamelift"
	"github.com/rs/zerolog"
	kafka "github.com/segmentio/kafka-go"

	"github.com/cuemby/fleetdrain/pkg/config"
	"github.com/cuemby/fleetdrain/pkg/intake"
	"github.com/cuemby/fleetdrain/pkg/log"
	"github.com/cuemby/fleetdrain/pkg/metrics"
	"github.com/cuemby/fleetdrain/pkg/types"
)

// InstanceLister is the part of the GameLift client used by the poller
type InstanceLister interface {
	gamelift.DescribeGameServerInstancesAPIClient
}

// InstanceDescriber resolves instance addresses
type InstanceDescriber interface {
	DescribeInstances(ctx context.Context, in *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
}

// MessageWriter is the subset of *kafka.Writer used by the poller
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter creates a writer for the intake topic. Messages are keyed by
// group so every batch of a group lands on the same partition in order.
func NewKafkaWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
}

// Poller publishes the FleetIQ status of every instance in the configured
// game server groups, one batch per GameLift page
type Poller struct {
	gamelift InstanceLister
	ec2      InstanceDescriber
	writer   MessageWriter
	groups   []string
	interval time.Duration
	logger   zerolog.Logger
}

// NewPoller creates a poller
func NewPoller(gl InstanceLister, ec InstanceDescriber, writer MessageWriter, cfg config.CapacityConfig) *Poller {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = time.Minute
	}
	return &Poller{
		gamelift: gl,
		ec2:      ec,
		writer:   writer,
		groups:   cfg.Groups,
		interval: interval,
		logger:   log.WithComponent("capacity"),
	}
}

// Run polls immediately and then on every interval until ctx is cancelled.
// Errors of one round are logged; the next round tries again.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info().Strs("groups", p.groups).Dur("interval", p.interval).Msg("Starting capacity poller")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if _, err := p.Once(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Error().Err(err).Msg("Capacity poll failed")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Once publishes every group once and returns the number of batches sent.
// A failing group does not stop the others.
func (p *Poller) Once(ctx context.Context) (int, error) {
	var (
		sent int
		errs []error
	)
	for _, group := range p.groups {
		n, err := p.publishGroup(ctx, group)
		sent += n
		if err != nil {
			errs = append(errs, fmt.Errorf("group %s: %w", group, err))
		}
	}
	return sent, errors.Join(errs...)
}

func (p *Poller) publishGroup(ctx context.Context, group string) (int, error) {
	logger := p.logger.With().Str("group", group).Logger()
	pages := gamelift.NewDescribeGameServerInstancesPaginator(p.gamelift, &gamelift.DescribeGameServerInstancesInput{
		GameServerGroupName: aws.String(group),
	})

	sent := 0
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return sent, fmt.Errorf("describe game server instances: %w", err)
		}

		records, err := p.records(ctx, group, page)
		if err != nil {
			return sent, err
		}
		if len(records) == 0 {
			continue
		}

		payload, err := intake.Encode(records)
		if err != nil {
			return sent, fmt.Errorf("encode batch: %w", err)
		}
		if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(group), Value: payload}); err != nil {
			return sent, fmt.Errorf("publish batch: %w", err)
		}
		sent++
		metrics.PublishedBatchesTotal.WithLabelValues(group).Inc()
		logger.Debug().Int("instances", len(records)).Msg("Published instance batch")
	}
	return sent, nil
}

// records turns one GameLift page into instance records. Instances without a
// private DNS name are not nodes yet and are left out.
func (p *Poller) records(ctx context.Context, group string, page *gamelift.DescribeGameServerInstancesOutput) ([]types.InstanceRecord, error) {
	ids := make([]string, 0, len(page.GameServerInstances))
	for _, inst := range page.GameServerInstances {
		if id := aws.ToString(inst.InstanceId); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	names, err := p.dnsNames(ctx, ids)
	if err != nil {
		return nil, err
	}

	records := make([]types.InstanceRecord, 0, len(ids))
	for _, inst := range page.GameServerInstances {
		id := aws.ToString(inst.InstanceId)
		name := names[id]
		if name == "" {
			p.logger.Debug().Str("instance_id", id).Msg("Instance has no private DNS name yet")
			continue
		}
		records = append(records, types.InstanceRecord{
			InstanceID:     id,
			GroupName:      group,
			PrivateDNSName: name,
			Status:         types.InstanceStatus(inst.InstanceStatus),
		})
	}
	return records, nil
}

func (p *Poller) dnsNames(ctx context.Context, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	in := &ec2.DescribeInstancesInput{InstanceIds: ids}
	for {
		out, err := p.ec2.DescribeInstances(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("describe instances: %w", err)
		}
		for _, r := range out.Reservations {
			for _, inst := range r.Instances {
				names[aws.ToString(inst.InstanceId)] = aws.ToString(inst.PrivateDnsName)
			}
		}
		if aws.ToString(out.NextToken) == "" {
			return names, nil
		}
		in.NextToken = out.NextToken
	}
}

// Close closes the writer
func (p *Poller) Close() error {
	return p.writer.Close()
}
