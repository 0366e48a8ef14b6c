package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"stokpintar/backend/internal/app"
	"stokpintar/backend/internal/domain"
	"stokpintar/backend/internal/service"
)

// Opener builds the engine a command runs against.
type Opener func(ctx context.Context) (*app.App, error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format string // "json" | "text"
	Open   Opener
}

var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the stockctl maintenance CLI.
func NewRootCommand(open Opener) *cobra.Command {
	opts := &RootOptions{Open: open}

	cmd := &cobra.Command{
		Use:   "stockctl",
		Short: "Inventory maintenance commands",
		Long:  "Run rollups, reorder exports and alert reconciliation against the configured store.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewRollupCommand(opts))
	cmd.AddCommand(NewReorderCommand(opts))
	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewAlertsCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// withEngine opens the engine under an operator identity and closes it after fn.
func withEngine(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, engine *app.App) error) error {
	ctx := service.WithActor(cmd.Context(), domain.Actor{Username: "stockctl", Role: domain.RoleAdmin})
	engine, err := opts.Open(ctx)
	if err != nil {
		return fmt.Errorf("open engine: %w", err)
	}
	defer func() { _ = engine.Close() }()
	return fn(ctx, engine)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
