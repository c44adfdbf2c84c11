package cmd

import (
	"github.com/spf13/cobra"

	"github.com/solatis/qualify/internal/bundle"
	"github.com/solatis/qualify/internal/ctxtoken"
)

func newBundleCmd(a *app) *cobra.Command {
	var (
		src         sourceFlags
		out         string
		kind        string
		filter      string
		reduce      bool
		version     string
		description string
	)
	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Export resources as a bundle",
		Long: `Export resources as a bundle JSON document.

Types: bundle (normalized, default), plain (declaration order) and filtered
(normalized after dropping candidates that cannot match --filter).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := src.manager(a)
			if err != nil {
				return err
			}
			opts := bundle.Options{
				Type:             bundle.Type(kind),
				Version:          version,
				Description:      description,
				ReduceQualifiers: reduce,
			}
			if filter != "" {
				if opts.FilterContext, err = ctxtoken.ParseContext(m.Qualifiers(), filter); err != nil {
					return err
				}
			}
			b, err := bundle.Build(m, opts)
			if err != nil {
				return err
			}
			data, err := bundle.Marshal(b)
			if err != nil {
				return err
			}
			a.logger.Info("bundle built", "type", b.Metadata.Type, "resources", len(b.Resources), "checksum", b.Metadata.Checksum)
			return writeOutput(cmd.OutOrStdout(), out, append(data, '\n'))
		},
	}
	src.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&kind, "type", "", "bundle type (bundle, plain, filtered)")
	cmd.Flags().StringVar(&filter, "filter", "", "context token to filter for")
	cmd.Flags().BoolVar(&reduce, "reduce", false, "drop conditions the filter context satisfies perfectly")
	cmd.Flags().StringVar(&version, "version", "", "bundle version recorded in metadata")
	cmd.Flags().StringVar(&description, "description", "", "bundle description recorded in metadata")
	return cmd
}
