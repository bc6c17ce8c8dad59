package main

import (
	"github.com/vistadeck/hostd/internal/config"
	"github.com/vistadeck/hostd/internal/control"
)

// newControlClient loads the daemon's config (for the control socket
// path and auth token) and builds a control.Client pointed at it. Every
// CLI subcommand other than `run`/`service` is a thin client over this.
func newControlClient() (*control.Client, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	return control.NewClient(cfg.ControlSocketPath, cfg.ControlAuthToken), nil
}
