package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/labelpizza/backend/internal/services"
	"github.com/spf13/cobra"
)

func newImportCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Bulk load annotations or reviews from a JSON file",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "annotations <file>",
		Short: "Import annotator answers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rows []services.AnnotationRow
			if err := readRows(args[0], &rows); err != nil {
				return err
			}
			svc, err := ctx.importer()
			if err != nil {
				return err
			}
			res, err := svc.ImportAnnotations(cmd.Context(), rows)
			return reportImport(cmd, res, err)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "reviews <file>",
		Short: "Import ground truth answers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rows []services.ReviewRow
			if err := readRows(args[0], &rows); err != nil {
				return err
			}
			svc, err := ctx.importer()
			if err != nil {
				return err
			}
			res, err := svc.ImportReviews(cmd.Context(), rows)
			return reportImport(cmd, res, err)
		},
	})
	return cmd
}

func (c *commandContext) importer() (*services.ImportService, error) {
	db, err := c.database()
	if err != nil {
		return nil, err
	}
	return services.NewImportService(db, services.NewProgressCache(c.config.Cache.ProgressTTLDuration())), nil
}

func readRows(path string, rows interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, rows); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func reportImport(cmd *cobra.Command, res *services.ImportResult, err error) error {
	var importErr *services.ImportError
	if errors.As(err, &importErr) {
		out := cmd.OutOrStdout()
		rows := make([][]string, 0, len(importErr.Rows))
		for _, r := range importErr.Rows {
			rows = append(rows, []string{strconv.Itoa(r.Index), r.Error})
		}
		fmt.Fprintln(out, renderTable([]string{"Row", "Error"}, rows, []columnAlignment{alignRight, alignLeft}))
		return fmt.Errorf("%d rows failed, nothing was imported", len(importErr.Rows))
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d rows (%d answers)\n", res.Rows, res.Answers)
	return nil
}
