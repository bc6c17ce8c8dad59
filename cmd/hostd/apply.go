package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vistadeck/hostd/internal/control"
)

var (
	applyPrimary     string
	applyWidth       int
	applyHeight      int
	applyRefreshNum  int
	applyRefreshDen  int
	applyHDR         string
	applyPreparation string
	applyLayout      string
	applyFingerprint string
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Submit a display configuration to the running daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newControlClient()
		if err != nil {
			return err
		}

		payload := control.ApplyPayload{
			PrimaryDeviceID:    applyPrimary,
			DesiredHDR:         applyHDR,
			Preparation:        applyPreparation,
			VirtualLayout:      applyLayout,
			SessionFingerprint: applyFingerprint,
		}
		if applyWidth > 0 && applyHeight > 0 {
			payload.DesiredMode = &control.ModePayload{
				Width:      applyWidth,
				Height:     applyHeight,
				RefreshNum: applyRefreshNum,
				RefreshDen: applyRefreshDen,
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		res, err := client.Apply(ctx, payload)
		if err != nil {
			return err
		}
		if !res.OK {
			return fmt.Errorf("apply rejected: %s", res.Error)
		}
		fmt.Println("apply submitted")
		return nil
	},
}

func init() {
	applyCmd.Flags().StringVar(&applyPrimary, "primary", "", "primary device id (required)")
	applyCmd.Flags().IntVar(&applyWidth, "width", 0, "desired mode width")
	applyCmd.Flags().IntVar(&applyHeight, "height", 0, "desired mode height")
	applyCmd.Flags().IntVar(&applyRefreshNum, "refresh-num", 60, "desired refresh rate numerator")
	applyCmd.Flags().IntVar(&applyRefreshDen, "refresh-den", 1, "desired refresh rate denominator")
	applyCmd.Flags().StringVar(&applyHDR, "hdr", "", "desired hdr state: enabled|disabled")
	applyCmd.Flags().StringVar(&applyPreparation, "preparation", "ensure_active", "verify_only|ensure_active|ensure_only_display|ensure_primary")
	applyCmd.Flags().StringVar(&applyLayout, "virtual-layout", "", "virtual display layout tag")
	applyCmd.Flags().StringVar(&applyFingerprint, "session-fingerprint", "", "session fingerprint correlating this apply (generated if omitted)")
	applyCmd.MarkFlagRequired("primary")
	rootCmd.AddCommand(applyCmd)
}
