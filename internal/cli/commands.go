package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"stokpintar/backend/internal/app"
	"stokpintar/backend/internal/forecast"
)

func NewRollupCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rollup [date]",
		Short: "Recompute the daily analytics snapshot (default: today, UTC)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date := ""
			if len(args) == 1 {
				date = args[0]
			}
			return withEngine(cmd, opts, func(ctx context.Context, engine *app.App) error {
				snapshot, err := engine.Service.TriggerRollup(ctx, date)
				if err != nil {
					return err
				}
				if opts.Format == "json" {
					return writeJSON(cmd.OutOrStdout(), snapshot)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d transactions, sales %d, profit %d\n",
					snapshot.Date, snapshot.TotalTransactions, snapshot.TotalSalesCents, snapshot.TotalProfitCents)
				return err
			})
		},
	}
}

// NewReorderCommand prints reorder suggestions; text output is CSV.
func NewReorderCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reorder",
		Short: "Export reorder suggestions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, opts, func(ctx context.Context, engine *app.App) error {
				resp, err := engine.Service.ReorderSuggestions(ctx)
				if err != nil {
					return err
				}
				if opts.Format == "json" {
					return writeJSON(cmd.OutOrStdout(), resp)
				}
				return forecast.WriteReorderCSV(cmd.OutOrStdout(), resp.Suggestions)
			})
		},
	}
}

func NewReconcileCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Re-check every product's stock alert state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, opts, func(ctx context.Context, engine *app.App) error {
				changed, err := engine.Service.ReconcileAlerts(ctx)
				if err != nil {
					return err
				}
				if opts.Format == "json" {
					return writeJSON(cmd.OutOrStdout(), map[string]int{"changed": changed})
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d alerts raised or resolved\n", changed)
				return err
			})
		},
	}
}

func NewAlertsCommand(opts *RootOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List open stock alerts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, opts, func(ctx context.Context, engine *app.App) error {
				var resolved *bool
				if !all {
					open := false
					resolved = &open
				}
				alerts, err := engine.Service.StockAlerts(ctx, resolved)
				if err != nil {
					return err
				}
				if opts.Format == "json" {
					return writeJSON(cmd.OutOrStdout(), alerts)
				}
				for _, alert := range alerts {
					state := "open"
					if alert.Resolved {
						state = "resolved"
					}
					if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%d/%d\t%s\n",
						alert.ID, alert.ProductName, alert.Kind, alert.CurrentStock, alert.MinStockLevel, state); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include resolved alerts")
	return cmd
}
