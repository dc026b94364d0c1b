package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/fleetdrain/pkg/drain"
	"github.com/cuemby/fleetdrain/pkg/ledger"
	"github.com/cuemby/fleetdrain/pkg/log"
	"github.com/cuemby/fleetdrain/pkg/types"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the drain ledger",
}

var ledgerGetCmd = &cobra.Command{
	Use:   "get INSTANCE_ID",
	Short: "Show the drain progress of an instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		ctx := context.Background()

		l, err := ledger.Open(ctx, cfg.Ledger)
		if err != nil {
			return fmt.Errorf("failed to open ledger: %w", err)
		}
		defer l.Close()

		logger := log.WithInstanceID(id)

		if name, _ := cmd.Flags().GetString("flag"); name != "" {
			flag := types.Flag(name)
			if !flag.Valid() {
				return fmt.Errorf("unknown flag %q, expected one of %v", name, types.Flags)
			}
			set, err := l.GetFlag(ctx, id, flag)
			if err != nil {
				return err
			}
			logger.Debug().Str("backend", cfg.Ledger.Backend).Str("flag", name).Msg("Read drain flag")
			fmt.Fprintln(cmd.OutOrStdout(), set)
			return nil
		}

		progress, err := l.Progress(ctx, id)
		if err != nil {
			return err
		}
		logger.Debug().Str("backend", cfg.Ledger.Backend).Msg("Read drain progress")

		out, err := json.MarshalIndent(progressView{
			InstanceID:    id,
			DrainProgress: progress,
			Phase:         drain.Derive(progress, types.InstanceStatusDraining),
		}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

// progressView is the ledger record as printed by `ledger get`. Phase is the
// phase the next DRAINING event would run.
type progressView struct {
	InstanceID string `json:"instance_id"`
	types.DrainProgress
	Phase types.Phase `json:"next_draining_phase"`
}

func init() {
	ledgerGetCmd.Flags().String("flag", "", "Print only this flag (cordoned, drain_confirmed_empty, awaiting_termination)")
	ledgerCmd.AddCommand(ledgerGetCmd)
}
