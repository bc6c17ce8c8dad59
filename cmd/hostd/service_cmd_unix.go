//go:build !windows

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(serviceCmd)
}

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage the hostd daemon as a Windows service",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("service install/uninstall/start/stop is only available on Windows; run hostd directly under systemd/launchd on this platform.")
	},
}
