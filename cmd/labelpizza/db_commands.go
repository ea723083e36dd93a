package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/labelpizza/backend/internal/backup"
	"github.com/spf13/cobra"
)

func newDBCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Back up, restore and list database dumps",
	}
	cmd.AddCommand(newDBBackupCommand(ctx))
	cmd.AddCommand(newDBRestoreCommand(ctx))
	cmd.AddCommand(newDBListCommand(ctx))
	return cmd
}

func newDBBackupCommand(ctx *commandContext) *cobra.Command {
	var output string
	var compress bool

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write a dump of every table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.backups()
			if err != nil {
				return err
			}
			res, err := svc.Backup(cmd.Context(), backup.BackupOptions{Output: output, Compress: compress})
			if err != nil {
				return err
			}
			printBackupResult(cmd, "Backup written", res)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default a timestamped file in the backup directory)")
	cmd.Flags().BoolVar(&compress, "compress", false, "Gzip the dump")
	return cmd
}

func newDBRestoreCommand(ctx *commandContext) *cobra.Command {
	var input string
	var skipBackup bool

	cmd := &cobra.Command{
		Use:   "restore --input <file>",
		Short: "Replace the database with the contents of a dump",
		Long:  "The dump is given with --input or as the only argument.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := restoreInput(input, args)
			if err != nil {
				return err
			}
			svc, err := ctx.backups()
			if err != nil {
				return err
			}
			if err := ctx.confirm(cmd, "DESTROY", "drop every table and restore "+file); err != nil {
				return err
			}
			res, err := svc.Reset(cmd.Context(), backup.ResetOptions{
				Mode:       backup.ModeRestore,
				Input:      file,
				SkipBackup: skipBackup,
			})
			if err != nil {
				return err
			}
			audit("restore", "restored "+file, res)
			printResetResult(cmd, res)
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "Backup file to restore")
	cmd.Flags().BoolVar(&skipBackup, "skip-backup", false, "Do not take a safety backup first")
	return cmd
}

func restoreInput(flag string, args []string) (string, error) {
	switch {
	case flag != "" && len(args) == 1 && args[0] != flag:
		return "", fmt.Errorf("conflicting backup files %q and %q", flag, args[0])
	case flag != "":
		return flag, nil
	case len(args) == 1:
		return args[0], nil
	default:
		return "", fmt.Errorf("a backup file is required (--input)")
	}
}

func newDBListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List dumps in the backup directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			files, err := backup.NewService(nil, cfg.Backup.Dir).List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(files) == 0 {
				fmt.Fprintf(out, "No backups in %s\n", cfg.Backup.Dir)
				return nil
			}
			rows := make([][]string, 0, len(files))
			for _, f := range files {
				compressed := "no"
				if f.Compressed {
					compressed = "yes"
				}
				rows = append(rows, []string{
					f.Name,
					f.CreatedAt.Local().Format(time.DateTime),
					formatSize(f.Size),
					compressed,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Name", "Created", "Size", "Gzip"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
}

func printBackupResult(cmd *cobra.Command, title string, res *backup.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %s (%d rows, %s)\n", title, res.Path, res.TotalRows(), res.Duration.Round(time.Millisecond))
	for _, w := range res.Warnings {
		fmt.Fprintf(out, "warning: %s\n", w)
	}
}

func printResetResult(cmd *cobra.Command, res *backup.ResetResult) {
	if res.Backup != nil {
		printBackupResult(cmd, "Safety backup", res.Backup)
	}
	if res.Restored != nil {
		printBackupResult(cmd, "Restored", res.Restored)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Mode %s complete\n", res.Mode)
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return strconv.FormatInt(n, 10) + " B"
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
