package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vistadeck/hostd/internal/config"
	"github.com/vistadeck/hostd/internal/logging"
)

var (
	version = "0.1.0"
	cfgFile string
)

var log = logging.L("main")

var rootCmd = &cobra.Command{
	Use:   "hostd",
	Short: "Display Helper control-plane daemon",
	Long:  `hostd manages display topology for game-streaming sessions, with a crash-safe snapshot/recovery state machine.`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the control-plane daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		if isWindowsService() {
			return runAsService(func() (*daemonComponents, error) {
				cfg, err := config.Load(cfgFile)
				if err != nil {
					return nil, err
				}
				logging.Init(cfg.LogFormat, cfg.LogLevel, os.Stdout)
				return startDaemon(cfg)
			})
		}
		return runDaemon()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the hostd version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to hostd.yaml (default: platform config dir)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
