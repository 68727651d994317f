package main

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/wsorch/config"
	"github.com/mohammad-safakhou/wsorch/internal/orchestrator"
	"github.com/mohammad-safakhou/wsorch/internal/seed"
)

func queryCMD(cfgPath *string) *cobra.Command {
	var userID string
	var withSeed bool
	cmd := &cobra.Command{
		Use:   "query [text]",
		Short: "Answer a single query in-process and print the response as JSON",
		Args:  cobra.MinimumNArgs(1),
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
			if withSeed {
				if _, err := seed.Load(ctx, a.records, a.embedder, userID, time.Now().UTC()); err != nil {
					return err
				}
			}
			resp, err := a.orch.Handle(ctx, orchestrator.Request{UserID: userID, Query: strings.Join(args, " ")})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (default general.default_user_id)")
	cmd.Flags().BoolVar(&withSeed, "seed", false, "load the demo records first (useful with the memory backend)")
	return cmd
}
