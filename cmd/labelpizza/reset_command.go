package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/labelpizza/backend/internal/backup"
	"github.com/labelpizza/backend/internal/services"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func newResetCommand(ctx *commandContext) *cobra.Command {
	var mode, input string
	var skipBackup, compress bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Initialise, reset or restore the database",
		Long: "Modes:\n" +
			"  init     migrate and seed the admin account, keeping data\n" +
			"  reset    back up, drop every table, migrate and seed\n" +
			"  restore  back up, drop every table, migrate and load --input\n" +
			"  backup   back up only",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode = strings.ToLower(strings.TrimSpace(mode))
			svc, err := ctx.backups()
			if err != nil {
				return err
			}
			switch mode {
			case backup.ModeReset:
				if err := ctx.confirm(cmd, "NUCLEAR", "drop every table and start from an empty database"); err != nil {
					return err
				}
			case backup.ModeRestore:
				if err := ctx.confirm(cmd, "DESTROY", "drop every table and restore "+input); err != nil {
					return err
				}
			}

			cfg := ctx.config
			res, err := svc.Reset(cmd.Context(), backup.ResetOptions{
				Mode:       mode,
				Input:      input,
				SkipBackup: skipBackup,
				Compress:   compress,
				Seed: func(ctx context.Context, db *gorm.DB) error {
					return services.NewAuthService(db, &cfg.JWT).CreateAdminIfNotExists(ctx, &cfg.Admin)
				},
			})
			if err != nil {
				return err
			}
			audit("reset", "reset mode "+mode, res)
			printResetResult(cmd, res)
			return nil
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", backup.ModeInit, fmt.Sprintf("One of %s", strings.Join(backup.Modes, ", ")))
	cmd.Flags().StringVarP(&input, "input", "i", "", "Backup file for restore mode")
	cmd.Flags().BoolVar(&skipBackup, "skip-backup", false, "Do not take a safety backup before destructive modes")
	cmd.Flags().BoolVar(&compress, "compress", false, "Gzip the safety backup")
	return cmd
}
