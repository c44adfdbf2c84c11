package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solatis/qualify/internal/core/db"
)

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending bundle store migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := a.storeURL()
			if err != nil {
				return err
			}
			conn, err := db.Open(cmd.Context(), url)
			if err != nil {
				return err
			}
			defer conn.Close()

			applied, err := db.MigrateUp(cmd.Context(), conn, a.logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", len(applied))
			for _, id := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", id)
			}
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := a.storeURL()
			if err != nil {
				return err
			}
			conn, err := db.Open(cmd.Context(), url)
			if err != nil {
				return err
			}
			defer conn.Close()

			statuses, err := db.MigrateStatus(cmd.Context(), conn)
			if err != nil {
				return err
			}
			for _, s := range statuses {
				state := "pending"
				if s.Applied {
					state = "applied"
					if s.AppliedAt != nil {
						state += " " + s.AppliedAt.Format("2006-01-02T15:04:05Z")
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", s.ID, state)
			}
			return nil
		},
	})
	return cmd
}
