package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/vistadeck/hostd/internal/config"
	"github.com/vistadeck/hostd/internal/wsfeed"
)

var statusWatch bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the daemon's current state-machine status",
	RunE: func(cmd *cobra.Command, args []string) error {
		if statusWatch {
			return watchStatus()
		}
		return printStatus()
	},
}

func printStatus() error {
	client, err := newControlClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := client.Status(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("state:           %s\n", st.State)
	fmt.Printf("recovery armed:  %t\n", st.RecoveryArmed)
	fmt.Printf("generation:      %d\n", st.Generation)
	fmt.Printf("watchdog ready:  %t\n", st.WatchdogReady)
	fmt.Printf("pending session: %t\n", st.HasPending)
	if st.PendingFingerprint != "" {
		fmt.Printf("pending fingerprint: %s\n", st.PendingFingerprint)
	}
	return nil
}

// watchStatus subscribes to the daemon's wsfeed Hub and prints every
// ApplyResult/VerificationResult/Exit signal as it arrives, grounded on
// the teacher's internal/websocket.Client read loop turned into a
// one-shot consumer instead of a reconnecting agent.
func watchStatus() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if cfg.StatusListenAddr == "" {
		return fmt.Errorf("status --watch: status_listen_addr is not configured")
	}

	u := url.URL{Scheme: "ws", Host: cfg.StatusListenAddr, Path: "/status"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("status --watch: dial %s: %w", u.String(), err)
	}
	defer conn.Close()

	fmt.Printf("watching %s (ctrl-c to stop)\n", u.String())
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("status --watch: read: %w", err)
		}
		var ev wsfeed.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		switch ev.Type {
		case wsfeed.EventSignal:
			fmt.Printf("[%s] signal=%s status=%s verified=%t exitCode=%d\n",
				ev.Timestamp.Format(time.RFC3339), ev.SignalKind, ev.Status, ev.Verified, ev.ExitCode)
		case wsfeed.EventState:
			fmt.Printf("[%s] state=%s\n", ev.Timestamp.Format(time.RFC3339), ev.State)
		}
	}
}

func init() {
	statusCmd.Flags().BoolVar(&statusWatch, "watch", false, "stream live signal/state events instead of a one-shot snapshot")
	rootCmd.AddCommand(statusCmd)
}
