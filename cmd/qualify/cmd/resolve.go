package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solatis/qualify/internal/resolver"
	"github.com/solatis/qualify/internal/types"
)

// resolveOutput is one line of `qualify resolve` output.
type resolveOutput struct {
	Resource   string            `json:"resource"`
	Value      any               `json:"value,omitempty"`
	Candidate  *candidateOutput  `json:"candidate,omitempty"`
	Candidates []candidateOutput `json:"candidates,omitempty"`
	Error      string            `json:"error,omitempty"`
}

type candidateOutput struct {
	Index       int     `json:"index"`
	Kind        string  `json:"kind"`
	Score       float64 `json:"score"`
	Priority    int     `json:"priority"`
	IsPartial   bool    `json:"isPartial,omitempty"`
	MergeMethod string  `json:"mergeMethod"`
	Value       any     `json:"value"`
}

func toCandidateOutput(m resolver.CandidateMatch) candidateOutput {
	return candidateOutput{
		Index:       m.Index,
		Kind:        m.Kind.String(),
		Score:       float64(m.Score),
		Priority:    m.Priority,
		IsPartial:   m.IsPartial,
		MergeMethod: m.MergeMethod,
		Value:       m.Value,
	}
}

func newResolveCmd(a *app) *cobra.Command {
	var (
		src     sourceFlags
		token   string
		mode    string
		partial bool
		accept  bool
	)
	cmd := &cobra.Command{
		Use:   "resolve [resource-id...]",
		Short: "Resolve resources for a context",
		Long: `Resolve resources for a context token such as "fr-CA|platform=ios".

Modes: composed (default) merges partial candidates onto the best full
candidate, best prints the best candidate, all prints every match ranked.
Without resource ids every resource is resolved.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := src.manager(a)
			if err != nil {
				return err
			}
			opts := a.cfg.ResolverOptions()
			if cmd.Flags().Changed("partial") {
				opts = append(opts, resolver.WithPartialContextMatch(partial))
			}
			if cmd.Flags().Changed("accept-default") {
				opts = append(opts, resolver.WithAcceptDefaultScore(accept))
			}
			opts = append(opts, resolver.WithLogger(a.logger))
			r, err := resolver.FromManager(m, opts...)
			if err != nil {
				return err
			}
			ctx, err := r.ParseContext(token)
			if err != nil {
				return err
			}

			ids := args
			if len(ids) == 0 {
				for _, id := range m.ResourceIDs() {
					ids = append(ids, string(id))
				}
			}

			failed := 0
			for _, id := range ids {
				out := resolveOutput{Resource: id}
				switch mode {
				case "composed":
					out.Value, err = r.ResolveComposedResourceValue(id, ctx)
				case "best":
					var match resolver.CandidateMatch
					if match, err = r.ResolveResource(id, ctx); err == nil {
						c := toCandidateOutput(match)
						out.Candidate = &c
					}
				case "all":
					var matches []resolver.CandidateMatch
					if matches, err = r.ResolveAllResourceCandidates(id, ctx); err == nil {
						out.Candidates = make([]candidateOutput, 0, len(matches))
						for _, match := range matches {
							out.Candidates = append(out.Candidates, toCandidateOutput(match))
						}
					}
				default:
					return fmt.Errorf("unknown mode %q (expected composed, best or all)", mode)
				}
				if err != nil {
					if !errors.Is(err, types.ErrNoMatch) {
						return err
					}
					out.Error = err.Error()
					failed++
				}
				if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
					return err
				}
			}
			if failed > 0 && len(args) > 0 {
				return fmt.Errorf("%d of %d resources did not resolve", failed, len(ids))
			}
			return nil
		},
	}
	src.register(cmd)
	cmd.Flags().StringVarP(&token, "context", "c", "", "context token, e.g. \"fr-CA|platform=ios\"")
	cmd.Flags().StringVar(&mode, "mode", "composed", "output mode (composed, best, all)")
	cmd.Flags().BoolVar(&partial, "partial", false, "treat qualifiers missing from the context as undefined")
	cmd.Flags().BoolVar(&accept, "accept-default", false, "accept default-score matches")
	return cmd
}
