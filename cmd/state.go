package cmd

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/resy-sniper/internal/credentials"
)

type stateView struct {
	CredentialsPath string                   `json:"credentials_path,omitempty"`
	Credentials     *credentials.Credentials `json:"credentials,omitempty"`
	BaseURL         string                   `json:"base_url"`
	Timezone        string                   `json:"timezone"`
	History         bool                     `json:"history"`
	WatchAddr       string                   `json:"watch_addr,omitempty"`
	Engine          engineView               `json:"engine"`
}

type engineView struct {
	BurstWidth     int    `json:"burst_width"`
	TotalBudget    string `json:"total_budget"`
	LeadWindow     string `json:"lead_window"`
	AttemptTimeout string `json:"attempt_timeout"`
	ClockTolerance string `json:"clock_tolerance"`
	StrictClock    bool   `json:"strict_clock"`
}

func newStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show the effective configuration and stored credentials (masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, creds, err := loadCredentials(cfg)
			if err != nil {
				return err
			}

			v := stateView{
				BaseURL:   cfg.BaseURL,
				Timezone:  cfg.Timezone,
				History:   cfg.DatabaseURL != "",
				WatchAddr: cfg.WatchAddr,
				Engine: engineView{
					BurstWidth:     cfg.Sniper.BurstWidth,
					TotalBudget:    cfg.Sniper.TotalBudget.String(),
					LeadWindow:     cfg.Sniper.LeadWindow.String(),
					AttemptTimeout: cfg.Sniper.AttemptTimeout.String(),
					ClockTolerance: cfg.Sniper.ClockTolerance.String(),
					StrictClock:    cfg.Sniper.StrictClock,
				},
			}
			if store != nil {
				v.CredentialsPath = store.Path()
			}
			if creds != (credentials.Credentials{}) {
				m := creds.Masked()
				m.UpdatedAt = m.UpdatedAt.Truncate(time.Second)
				v.Credentials = &m
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(v)
		},
	}
}
