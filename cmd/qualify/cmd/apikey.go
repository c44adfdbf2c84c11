package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/solatis/qualify/internal/core/auth"
	"github.com/solatis/qualify/internal/core/config"
	"github.com/solatis/qualify/internal/core/db"
	"github.com/solatis/qualify/internal/types"
)

type apiKeyOutput struct {
	ID        types.APIKeyID `json:"id"`
	Name      string         `json:"name"`
	Key       string         `json:"key,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	LastUsed  *time.Time     `json:"lastUsed,omitempty"`
	Revoked   bool           `json:"revoked,omitempty"`
}

func toAPIKeyOutput(k db.APIKey) apiKeyOutput {
	out := apiKeyOutput{
		ID:        k.ID,
		Name:      k.Name,
		CreatedAt: time.UnixMilli(k.CreatedAt).UTC(),
		Revoked:   k.Revoked(),
	}
	if used := k.LastUsed(); !used.IsZero() {
		out.LastUsed = &used
	}
	return out
}

// withKeyStore opens the API key store for the duration of fn.
func withKeyStore(cmd *cobra.Command, a *app, fn func(*db.APIKeyStore) error) error {
	url, err := a.storeURL()
	if err != nil {
		return err
	}
	keys, conn, err := db.OpenAPIKeyStore(cmd.Context(), url)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(keys)
}

func newAPIKeyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys for the resolution service",
	}

	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key; the key is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := auth.ParseSecret(a.cfg.Auth.Secret)
			if err != nil {
				return fmt.Errorf("%s_AUTH_SECRET: %w", config.EnvPrefix, err)
			}
			key, err := auth.GenerateAPIKey()
			if err != nil {
				return err
			}
			return withKeyStore(cmd, a, func(keys *db.APIKeyStore) error {
				stored, err := keys.Create(cmd.Context(), name, auth.HashKey(secret, key))
				if err != nil {
					return err
				}
				a.logger.Info("api key created", "api_key_id", stored.ID, "name", name)
				out := toAPIKeyOutput(stored)
				out.Key = key
				return writeJSON(cmd.OutOrStdout(), out)
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "name identifying the key holder")
	_ = create.MarkFlagRequired("name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKeyStore(cmd, a, func(keys *db.APIKeyStore) error {
				stored, err := keys.List(cmd.Context())
				if err != nil {
					return err
				}
				out := make([]apiKeyOutput, 0, len(stored))
				for _, k := range stored {
					out = append(out, toAPIKeyOutput(k))
				}
				return writeJSON(cmd.OutOrStdout(), out)
			})
		},
	}

	revoke := &cobra.Command{
		Use:   "revoke <api-key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKeyStore(cmd, a, func(keys *db.APIKeyStore) error {
				if err := keys.Revoke(cmd.Context(), types.APIKeyID(args[0])); err != nil {
					return err
				}
				a.logger.Info("api key revoked", "api_key_id", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(create, list, revoke)
	return cmd
}
