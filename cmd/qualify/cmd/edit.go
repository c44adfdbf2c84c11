package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solatis/qualify/internal/bundle"
	"github.com/solatis/qualify/internal/ctxtoken"
	"github.com/solatis/qualify/internal/editor"
	"github.com/solatis/qualify/internal/types"
)

type editOutput struct {
	Resource  string               `json:"resource"`
	Unchanged bool                 `json:"unchanged,omitempty"`
	Replaced  bool                 `json:"replaced,omitempty"`
	Candidate *types.CandidateDecl `json:"candidate,omitempty"`
	Warnings  []string             `json:"warnings,omitempty"`
}

func newEditCmd(a *app) *cobra.Command {
	var (
		src       sourceFlags
		token     string
		valuePath string
		out       string
		partial   bool
	)
	cmd := &cobra.Command{
		Use:   "edit <resource-id>",
		Short: "Turn an edited resolved value into a candidate",
		Long: `Resolve <resource-id> for --context, diff it against the edited JSON
object read from --value and print the candidate that reproduces the edit.

With --out the edited resources are also written as a bundle.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := src.manager(a)
			if err != nil {
				return err
			}
			ctx, err := ctxtoken.ParseContext(m.Qualifiers(), token)
			if err != nil {
				return err
			}
			data, err := readInput(valuePath)
			if err != nil {
				return err
			}
			var edited any
			if err := json.Unmarshal(data, &edited); err != nil {
				return fmt.Errorf("%w: edited value: %v", types.ErrValidation, err)
			}

			res, err := editor.Apply(m, args[0], ctx, edited, editor.Options{
				PartialContextMatch: partial || a.cfg.Resolver.PartialContextMatch,
				AcceptDefaultScore:  a.cfg.Resolver.AcceptDefaultScore,
				Logger:              a.logger,
			})
			if err != nil {
				return err
			}

			if out != "" {
				b, err := bundle.Build(res.Manager, bundle.Options{})
				if err != nil {
					return err
				}
				body, err := bundle.Marshal(b)
				if err != nil {
					return err
				}
				if err := writeOutput(cmd.OutOrStdout(), out, append(body, '\n')); err != nil {
					return err
				}
			}
			return writeJSON(cmd.OutOrStdout(), editOutput{
				Resource:  args[0],
				Unchanged: res.Unchanged,
				Replaced:  res.Replaced,
				Candidate: res.Candidate,
				Warnings:  res.Warnings,
			})
		},
	}
	src.register(cmd)
	cmd.Flags().StringVarP(&token, "context", "c", "", "context token the edit applies to")
	cmd.Flags().StringVar(&valuePath, "value", "-", "edited JSON object file (- for stdin)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the edited resources as a bundle")
	cmd.Flags().BoolVar(&partial, "partial", false, "treat qualifiers missing from the context as undefined")
	return cmd
}
