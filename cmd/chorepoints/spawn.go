package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/chorepoints/internal/chore"
	"github.com/dukerupert/chorepoints/internal/database"
	"github.com/dukerupert/chorepoints/internal/store"
)

func spawnCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "spawn",
		Short: "Create due assignments for recurring chores once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			db, err := database.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			sp := chore.NewSpawner(store.New(db), nil, logger.With("component", "spawner"))
			n, err := sp.Run(ctx, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "spawned %d assignments\n", n)
			return nil
		},
	}
}
