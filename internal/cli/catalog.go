package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/clothly/storefront/internal/catalog"
	"github.com/clothly/storefront/internal/config"
	"github.com/clothly/storefront/internal/domain"
	"github.com/clothly/storefront/internal/format"
	"github.com/clothly/storefront/internal/gateway"
	"github.com/spf13/cobra"
)

type catalogOptions struct {
	JSON bool
}

// NewCatalogCommand prints the marketplace catalog read straight from the ledger.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &catalogOptions{}

	cmd := &cobra.Command{
		Use:          "catalog",
		Short:        "List items listed on the marketplace",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// read-only: no signing key needed
			cfg, err := config.Load(rootOpts.EnvFile)
			if err != nil {
				return err
			}
			logger, err := newLogger(rootOpts.Verbose)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			gw, err := gateway.Dial(cmd.Context(), cfg.Gateway, logger)
			if err != nil {
				return err
			}
			defer gw.Close()

			store := catalog.NewStore(gw.MarketAddress(), nil, logger)
			items, err := store.Refresh(cmd.Context(), gw)
			if err != nil {
				return err
			}
			return printCatalog(cmd.OutOrStdout(), items, opts.JSON)
		},
	}

	cmd.Flags().BoolVar(&opts.JSON, "json", false, "print items as JSON")
	return cmd
}

func printCatalog(w io.Writer, items []domain.Item, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tNAME\tCOLLECTION\tPRICE\tSOLD\tOWNER")
	for _, item := range items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\n",
			item.Index,
			item.Name,
			item.Collection,
			format.Amount(item.Price),
			item.Sold,
			format.TruncateAddress(item.Owner))
	}
	return tw.Flush()
}
