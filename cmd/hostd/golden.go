package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	goldenBlacklist    []string
	snapshotBlacklist  []string
)

var exportGoldenCmd = &cobra.Command{
	Use:   "export-golden",
	Short: "Capture the current display state into the Golden snapshot tier",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newControlClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		res, err := client.ExportGolden(ctx, goldenBlacklist)
		if err != nil {
			return err
		}
		if !res.OK {
			return fmt.Errorf("export-golden rejected: %s", res.Error)
		}
		fmt.Println("golden snapshot exported")
		return nil
	},
}

var snapshotCurrentCmd = &cobra.Command{
	Use:   "snapshot-current",
	Short: "Rotate and capture a fresh Current snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newControlClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		res, err := client.SnapshotCurrent(ctx, snapshotBlacklist)
		if err != nil {
			return err
		}
		if !res.OK {
			return fmt.Errorf("snapshot-current rejected: %s", res.Error)
		}
		fmt.Println("current snapshot captured")
		return nil
	},
}

func init() {
	exportGoldenCmd.Flags().StringSliceVar(&goldenBlacklist, "blacklist", nil, "device ids to exclude from the captured snapshot")
	snapshotCurrentCmd.Flags().StringSliceVar(&snapshotBlacklist, "blacklist", nil, "device ids to exclude from the captured snapshot")
	rootCmd.AddCommand(exportGoldenCmd)
	rootCmd.AddCommand(snapshotCurrentCmd)
}
