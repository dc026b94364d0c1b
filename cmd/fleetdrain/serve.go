package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/gamelift"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cuemby/fleetdrain/pkg/api"
	"github.com/cuemby/fleetdrain/pkg/capacity"
	"github.com/cuemby/fleetdrain/pkg/fleet"
	"github.com/cuemby/fleetdrain/pkg/intake"
	"github.com/cuemby/fleetdrain/pkg/log"
	"github.com/cuemby/fleetdrain/pkg/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Consume instance status batches and drain nodes",
	Long: `Consume instance status batches from Kafka and run every record through
the drain controller. Health, readiness and metrics are served on http.addr.

With --with-poller the capacity poller runs in the same process and
publishes the FleetIQ status of the configured groups to the intake topic.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		withPoller, _ := cmd.Flags().GetBool("with-poller")
		if err := cfg.ValidateKafka(); err != nil {
			return err
		}
		if withPoller {
			if err := cfg.ValidateCapacity(); err != nil {
				return err
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		metrics.SetVersion(Version)
		logger := log.WithComponent("serve")

		st, err := buildStack(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		metrics.RegisterComponent("ledger", true, cfg.Ledger.Backend)
		metrics.RegisterComponent("kubernetes", true, "")
		metrics.RegisterComponent("intake", true, cfg.Kafka.Topic)

		collector := metrics.NewCollector(15 * time.Second)
		collector.Add("ledger", st.ledger.Ping)
		collector.Add("kubernetes", st.gateway.Ping)
		collector.Add("intake", func(ctx context.Context) error {
			return intake.PingBrokers(ctx, cfg.Kafka.Brokers)
		})
		collector.Start()
		defer collector.Stop()

		consumer := intake.NewConsumer(intake.NewKafkaReader(cfg.Kafka), st.controller, intake.OptionsFromConfig(cfg.Intake))
		defer consumer.Close()

		hs := api.NewHealthServer()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			if err := hs.Start(cfg.HTTP.Addr); err != nil {
				return fmt.Errorf("health server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return hs.Shutdown(shutdownCtx)
		})
		g.Go(func() error {
			err := consumer.Run(gctx)
			if err != nil {
				metrics.UpdateComponent("intake", false, err.Error())
			}
			return err
		})

		if withPoller {
			awsCfg, err := fleet.LoadAWSConfig(ctx, cfg.AWS.Region)
			if err != nil {
				return err
			}
			writer := capacity.NewKafkaWriter(cfg.Kafka)
			poller := capacity.NewPoller(gamelift.NewFromConfig(awsCfg), ec2.NewFromConfig(awsCfg), writer, cfg.Capacity)
			defer poller.Close()
			g.Go(func() error { return poller.Run(gctx) })
		}

		logger.Info().
			Str("topic", cfg.Kafka.Topic).
			Str("ledger", cfg.Ledger.Backend).
			Str("http", cfg.HTTP.Addr).
			Bool("poller", withPoller).
			Msg("fleetdrain is running")

		if err := g.Wait(); err != nil {
			return err
		}
		logger.Info().Msg("Shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().Bool("with-poller", false, "Also run the capacity poller in this process")
}
