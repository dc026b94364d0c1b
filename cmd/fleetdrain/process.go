package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/fleetdrain/pkg/intake"
	"github.com/cuemby/fleetdrain/pkg/types"
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run one batch of instance records through the drain controller",
	Long: `Run a batch of instance records through the drain controller once, without
Kafka. The batch has the same format as an intake message: a JSON array of
{InstanceId, GameServerGroupName, PrivateDnsName, InstanceStatus} objects.

Use -f - to read the batch from stdin.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")

		records, rejected, err := readBatch(file, cmd.InOrStdin())
		if err != nil {
			return err
		}
		for _, rerr := range rejected {
			fmt.Fprintf(cmd.ErrOrStderr(), "skipping: %v\n", rerr)
		}

		ctx := context.Background()
		st, err := buildStack(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		consumer := intake.NewConsumer(nil, st.controller, intake.OptionsFromConfig(cfg.Intake))
		stats, err := consumer.ProcessBatch(ctx, records)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "records: %d  ok: %d  ignored: %d  aborted: %d  rejected: %d\n",
			stats.Records, stats.OK, stats.Ignored, stats.Aborted, len(rejected))
		if stats.Aborted > 0 {
			return fmt.Errorf("%d records aborted", stats.Aborted)
		}
		return nil
	},
}

// readBatch reads and decodes a batch from path, or from stdin when path is "-"
func readBatch(path string, stdin io.Reader) ([]types.InstanceRecord, []error, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read batch: %w", err)
	}
	return intake.Decode(data)
}

func init() {
	processCmd.Flags().StringP("file", "f", "", "Batch file (JSON array of instance records)")
	_ = processCmd.MarkFlagRequired("file")
}
