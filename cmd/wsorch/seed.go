package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/wsorch/config"
	"github.com/mohammad-safakhou/wsorch/internal/seed"
)

func seedCMD(cfgPath *string) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the demo mailbox, calendar and drive records",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			ctx := context.Background()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			if userID == "" {
				userID = cfg.General.DefaultUserID
			}
			sum, err := seed.Load(ctx, a.records, a.embedder, userID, time.Now().UTC())
			if err != nil {
				return err
			}
			a.log("seed").WithField("user_id", userID).Infof("seeded %d emails, %d events, %d files", sum.Emails, sum.Events, sum.Files)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "owner of the seeded records (default general.default_user_id)")
	return cmd
}
