package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/labelpizza/backend/internal/services"
	"github.com/spf13/cobra"
)

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "delete <table> <id>...",
		Short: "Delete rows and everything that depends on them",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			table := args[0]
			ids := make([]uint, 0, len(args)-1)
			for _, arg := range args[1:] {
				id, err := strconv.ParseUint(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid id %q", arg)
				}
				ids = append(ids, uint(id))
			}

			db, err := ctx.database()
			if err != nil {
				return err
			}
			ttl := ctx.config.Cache.ProgressTTLDuration()
			svc := services.NewCascadeService(db, services.NewProgressCache(ttl))

			plan, err := svc.Plan(cmd.Context(), table, ids)
			if err != nil {
				return err
			}
			printPlan(cmd, plan)
			if dryRun {
				return nil
			}
			if err := ctx.confirm(cmd, "DELETE", "permanently delete the rows above"); err != nil {
				return err
			}

			res, err := svc.Cascade(cmd.Context(), table, ids)
			if err != nil {
				return err
			}
			var total int64
			for _, n := range res.Deleted {
				total += n
			}
			audit("delete", fmt.Sprintf("cascade delete from %s", table), map[string]interface{}{"ids": ids, "result": res})
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d rows, reverted %d overrides\n", total, res.Reverted)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show the plan without deleting")
	return cmd
}

func printPlan(cmd *cobra.Command, plan *services.CascadePlan) {
	tables := make([]string, 0, len(plan.Delete))
	for t := range plan.Delete {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	rows := make([][]string, 0, len(tables)+len(plan.Null))
	for _, t := range tables {
		rows = append(rows, []string{t, "delete", strconv.Itoa(len(plan.Delete[t]))})
	}
	for _, n := range plan.Null {
		rows = append(rows, []string{n.Table + "." + n.Column, "set null", strconv.Itoa(len(n.IDs))})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"Table", "Action", "Rows"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight},
	))
}
