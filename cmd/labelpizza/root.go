package main

import (
	"github.com/labelpizza/backend/internal/config"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag, dbURLName, backupDir, logLevel string
	var force bool

	ctx := newCommandContext(&configFlag, &dbURLName, &backupDir, &logLevel, &force)

	rootCmd := &cobra.Command{
		Use:           "labelpizza",
		Short:         "Label Pizza operator CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig()
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFlag, "config", "c", "", "Configuration file path (default config.yaml or $CONFIG_PATH)")
	flags.StringVar(&dbURLName, "database-url-name", config.EnvDatabaseURL, "Environment variable holding the database URL; empty uses the config file")
	flags.StringVar(&backupDir, "backup-dir", "", "Backup directory (overrides backup.dir)")
	flags.StringVar(&logLevel, "log-level", "", "Log level (overrides log.level)")
	flags.BoolVar(&force, "force", false, "Skip confirmation prompts")

	rootCmd.AddCommand(newDBCommand(ctx))
	rootCmd.AddCommand(newResetCommand(ctx))
	rootCmd.AddCommand(newExportCommand(ctx))
	rootCmd.AddCommand(newImportCommand(ctx))
	rootCmd.AddCommand(newDeleteCommand(ctx))

	return rootCmd
}
