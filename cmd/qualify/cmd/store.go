package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/solatis/qualify/internal/bundle"
	"github.com/solatis/qualify/internal/core/db"
	"github.com/solatis/qualify/internal/types"
)

func openStore(ctx context.Context, url string, a *app) (*db.BundleStore, *sqlx.DB, error) {
	return db.OpenBundleStore(ctx, url, a.logger)
}

// withStore opens the configured store for the duration of fn.
func withStore(cmd *cobra.Command, a *app, fn func(*db.BundleStore) error) error {
	url, err := a.storeURL()
	if err != nil {
		return err
	}
	store, conn, err := openStore(cmd.Context(), url, a)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(store)
}

type storeInfoOutput struct {
	ID         types.BundleID `json:"id"`
	Name       string         `json:"name"`
	Version    string         `json:"version,omitempty"`
	Type       string         `json:"type"`
	Checksum   string         `json:"checksum"`
	Normalized bool           `json:"normalized"`
	CreatedAt  time.Time      `json:"createdAt"`
	Created    *bool          `json:"created,omitempty"`
}

func toStoreInfo(i db.BundleInfo) storeInfoOutput {
	return storeInfoOutput{
		ID:         i.ID,
		Name:       i.Name,
		Version:    i.Version,
		Type:       i.Type,
		Checksum:   i.Checksum,
		Normalized: i.Normalized,
		CreatedAt:  i.Created(),
	}
}

func newStoreCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Manage stored bundles",
	}
	cmd.AddCommand(
		newStorePushCmd(a),
		newStoreGetCmd(a),
		newStoreLatestCmd(a),
		newStoreListCmd(a),
		newStoreDeleteCmd(a),
	)
	return cmd
}

func newStorePushCmd(a *app) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "push <bundle.json>",
		Short: "Store a bundle under a name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(args[0])
			if err != nil {
				return err
			}
			b, err := bundle.Load(data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			return withStore(cmd, a, func(store *db.BundleStore) error {
				info, created, err := store.Save(cmd.Context(), name, b)
				if err != nil {
					return err
				}
				out := toStoreInfo(info)
				out.Created = &created
				return writeJSON(cmd.OutOrStdout(), out)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "bundle name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newStoreGetCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "get <bundle-id>",
		Short: "Print a stored bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, a, func(store *db.BundleStore) error {
				b, _, err := store.Get(cmd.Context(), types.BundleID(args[0]))
				if err != nil {
					return err
				}
				return writeBundle(cmd, out, b)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}

func newStoreLatestCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "latest <name>",
		Short: "Print the most recent bundle stored under a name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, a, func(store *db.BundleStore) error {
				b, _, err := store.Latest(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeBundle(cmd, out, b)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}

func newStoreListCmd(a *app) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored bundles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, a, func(store *db.BundleStore) error {
				infos, err := store.List(cmd.Context(), name)
				if err != nil {
					return err
				}
				out := make([]storeInfoOutput, 0, len(infos))
				for _, i := range infos {
					out = append(out, toStoreInfo(i))
				}
				return writeJSON(cmd.OutOrStdout(), out)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "only bundles with this name")
	return cmd
}

func newStoreDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <bundle-id>",
		Short: "Delete a stored bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, a, func(store *db.BundleStore) error {
				return store.Delete(cmd.Context(), types.BundleID(args[0]))
			})
		},
	}
}

func writeBundle(cmd *cobra.Command, path string, b *bundle.Bundle) error {
	data, err := bundle.Marshal(b)
	if err != nil {
		return err
	}
	return writeOutput(cmd.OutOrStdout(), path, append(data, '\n'))
}
