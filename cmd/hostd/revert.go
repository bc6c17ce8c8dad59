package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var revertCmd = &cobra.Command{
	Use:   "revert",
	Short: "Ask the daemon to restore the most recent armed snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newControlClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		res, err := client.Revert(ctx)
		if err != nil {
			return err
		}
		if !res.OK {
			return fmt.Errorf("revert rejected: %s", res.Error)
		}
		fmt.Println("revert submitted")
		return nil
	},
}

var disarmCmd = &cobra.Command{
	Use:   "disarm",
	Short: "Clear the armed-recovery flag without running a recovery",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newControlClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		res, err := client.Disarm(ctx)
		if err != nil {
			return err
		}
		if !res.OK {
			return fmt.Errorf("disarm rejected: %s", res.Error)
		}
		fmt.Println("disarm submitted")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(revertCmd)
	rootCmd.AddCommand(disarmCmd)
}
