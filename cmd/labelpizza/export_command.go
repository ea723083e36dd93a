package main

import (
	"fmt"

	"github.com/labelpizza/backend/internal/export"
	"github.com/labelpizza/backend/internal/services"
	"github.com/spf13/cobra"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var format, output string

	cmd := &cobra.Command{
		Use:   "export <project>...",
		Short: "Export merged ground truth for one or more projects",
		Long:  "Projects are given by id or name. All projects must share one schema.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := ctx.database()
			if err != nil {
				return err
			}
			svc := services.NewExportService(db)
			ids, err := svc.ResolveProjects(cmd.Context(), args)
			if err != nil {
				return err
			}
			rows, err := svc.ExportGroundTruth(cmd.Context(), ids)
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				if format == "" {
					format = export.FormatJSON
				}
				return export.Write(cmd.OutOrStdout(), format, rows)
			}
			if err := export.WriteFile(output, format, rows); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d videos to %s\n", len(rows), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "json or excel (default inferred from --output)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	return cmd
}
