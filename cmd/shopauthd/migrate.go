package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MrEthical07/shopauth/permission"
	"github.com/MrEthical07/shopauth/store/postgres"
)

func newMigrateCmd(a *app) *cobra.Command {
	var seedRoles bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and sync the permission catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Storage.Driver != "postgres" {
				return errors.New("migrate requires storage.driver postgres")
			}
			ctx := cmd.Context()

			db, err := postgres.Open(ctx, a.cfg.Storage.DSN)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := postgres.Migrate(ctx, db); err != nil {
				return err
			}
			store := postgres.New(db)
			catalog := permission.DefaultCatalog()
			if err := store.SyncCatalog(ctx, catalog); err != nil {
				return fmt.Errorf("sync catalog: %w", err)
			}
			a.log.Info("catalog synced", zap.Int("permissions", catalog.Count()))

			if !seedRoles {
				return nil
			}
			if _, err := store.EnsureRole(ctx, "admin", permission.DefaultCodes...); err != nil {
				return fmt.Errorf("seed admin role: %w", err)
			}
			if role := a.cfg.Account.DefaultRole; role != "" {
				if _, err := store.EnsureRole(ctx, role); err != nil {
					return fmt.Errorf("seed %s role: %w", role, err)
				}
			}
			a.log.Info("roles seeded")
			return nil
		},
	}
	cmd.Flags().BoolVar(&seedRoles, "seed-roles", true, "create the admin and default roles when missing")
	return cmd
}
