package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/gamelift"
	"github.com/spf13/cobra"

	"github.com/cuemby/fleetdrain/pkg/capacity"
	"github.com/cuemby/fleetdrain/pkg/fleet"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish FleetIQ instance status to the intake topic",
	Long: `Page through DescribeGameServerInstances for every group in capacity.groups
and publish one batch per page to the intake topic. Without --once the
groups are polled every capacity.pollInterval until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		once, _ := cmd.Flags().GetBool("once")
		if err := cfg.ValidateCapacity(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		awsCfg, err := fleet.LoadAWSConfig(ctx, cfg.AWS.Region)
		if err != nil {
			return err
		}
		poller := capacity.NewPoller(gamelift.NewFromConfig(awsCfg), ec2.NewFromConfig(awsCfg), capacity.NewKafkaWriter(cfg.Kafka), cfg.Capacity)
		defer poller.Close()

		if !once {
			return poller.Run(ctx)
		}

		sent, err := poller.Once(ctx)
		fmt.Fprintf(cmd.OutOrStdout(), "published %d batches to %s\n", sent, cfg.Kafka.Topic)
		return err
	},
}

func init() {
	publishCmd.Flags().Bool("once", false, "Publish every group once and exit")
}
