// internal/editor/editor.go
package editor

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/solatis/qualify/internal/conditions"
	"github.com/solatis/qualify/internal/ctxtoken"
	"github.com/solatis/qualify/internal/jsonmerge"
	"github.com/solatis/qualify/internal/resolver"
	"github.com/solatis/qualify/internal/resources"
	"github.com/solatis/qualify/internal/types"
)

/*
 * Edit application: turns an edited resolved value into a candidate.
 *
 * Workflow:
 *   1. Resolve the composed value of the resource for the context
 *   2. Unchanged edit: return the manager as is, no candidate
 *   3. Build the target condition set from the non-empty context values,
 *      each at its qualifier's default priority; a preference list such as
 *      "fr,en" conditions on its first item
 *   4. Compute the delta:
 *        - a partial candidate already owns the target set: delta against
 *          the composition without it, and the new candidate replaces it
 *        - a full candidate owns the target set: fold the delta into its
 *          value and replace it
 *        - otherwise: delta against the composed value, new partial
 *          augment candidate
 *   5. Clone the manager with the candidate and re-resolve; a composition
 *      that does not reproduce the edit is reported as a warning
 *
 * Warnings are advisory. The source manager is never modified.
 */

// Options control Apply.
type Options struct {
	PartialContextMatch bool
	AcceptDefaultScore  bool
	// Logger receives warnings; nil discards.
	Logger *slog.Logger
}

// Result is the outcome of Apply.
type Result struct {
	// Manager is the clone holding the edit, or the input when Unchanged.
	Manager *resources.Manager
	// Candidate is the emitted declaration; nil when Unchanged.
	Candidate *types.CandidateDecl
	Delta     jsonmerge.DeltaResult
	Unchanged bool
	// Replaced reports that the candidate replaced one with the same set.
	Replaced bool
	Warnings []string
}

// Apply records edited as the value of resource id under ctx.
func Apply(m *resources.Manager, id string, ctx ctxtoken.Context, edited any, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ctx, err := ctxtoken.Validate(m.Qualifiers(), ctx)
	if err != nil {
		return nil, err
	}
	res, err := m.GetBuiltResource(id)
	if err != nil {
		return nil, err
	}
	editedValue, _, err := jsonmerge.Canonicalize(edited)
	if err != nil {
		return nil, fmt.Errorf("%w: edited value: %w", types.ErrValidation, err)
	}
	if _, ok := editedValue.(map[string]any); !ok {
		return nil, fmt.Errorf("%w: edited value must be a JSON object", types.ErrValidation)
	}

	resolverOpts := []resolver.Option{
		resolver.WithPartialContextMatch(opts.PartialContextMatch),
		resolver.WithAcceptDefaultScore(opts.AcceptDefaultScore),
	}
	r, err := resolver.FromManager(m, resolverOpts...)
	if err != nil {
		return nil, err
	}
	ranked, err := r.ResolveAllResourceCandidates(id, ctx)
	if err != nil {
		return nil, err
	}
	var resolved any = map[string]any{}
	if len(ranked) > 0 {
		resolved = resolver.Compose(ranked)
	}
	if jsonmerge.Equal(resolved, editedValue) {
		return &Result{Manager: m, Unchanged: true, Delta: jsonmerge.DeltaResult{Unchanged: true}}, nil
	}

	var base any
	for _, c := range ranked {
		if !c.IsPartial {
			base = c.Value
			break
		}
	}

	decls, key, narrowed, err := targetConditions(m, ctx)
	if err != nil {
		return nil, err
	}
	existing := -1
	for i, c := range res.Candidates {
		if c.Conditions.Key() == key {
			existing = i
			break
		}
	}

	result := &Result{Replaced: existing >= 0}
	cand := &types.CandidateDecl{
		ID:          id,
		Conditions:  decls,
		IsPartial:   true,
		MergeMethod: types.MergeAugment,
	}

	switch {
	case existing >= 0 && res.Candidates[existing].IsPartial:
		others := make([]resolver.CandidateMatch, 0, len(ranked))
		for _, c := range ranked {
			if c.Index != existing {
				others = append(others, c)
			}
		}
		var without any = map[string]any{}
		if len(others) > 0 {
			without = resolver.Compose(others)
		}
		if result.Delta, err = jsonmerge.Delta(base, without, editedValue); err != nil {
			return nil, err
		}
		cand.JSON = deltaValue(result.Delta)
	case existing >= 0:
		if result.Delta, err = jsonmerge.Delta(base, resolved, editedValue); err != nil {
			return nil, err
		}
		cand.JSON = jsonmerge.Merge(res.Candidates[existing].Value, result.Delta.Value)
		cand.IsPartial = false
		cand.MergeMethod = res.Candidates[existing].MergeMethod
	default:
		if result.Delta, err = jsonmerge.Delta(base, resolved, editedValue); err != nil {
			return nil, err
		}
		cand.JSON = deltaValue(result.Delta)
	}

	for _, name := range narrowed {
		list, _ := ctx.Get(name)
		first, _, _ := strings.Cut(list, types.ContextListSeparator)
		result.warn(logger, fmt.Sprintf("%s: %s=%s is a list; edit applies to %s only", id, name, list, first))
	}
	if n := len(res.Candidates); n > 1 {
		result.warn(logger, fmt.Sprintf("%s has %d candidates; edit applies to context %s", id, n, ctx.Signature()))
	}
	for _, path := range result.Delta.Overrides {
		result.warn(logger, fmt.Sprintf("%s: edit overrides %s set by another candidate", id, path))
	}

	clone, err := m.Clone(resources.CloneOptions{Candidates: []types.CandidateDecl{*cand}})
	if err != nil {
		return nil, err
	}
	check, err := resolver.FromManager(clone, resolverOpts...)
	if err != nil {
		return nil, err
	}
	got, err := check.ResolveComposedResourceValue(id, ctx)
	if err != nil && !errors.Is(err, types.ErrNoMatch) {
		return nil, err
	}
	if !jsonmerge.Equal(got, editedValue) {
		result.warn(logger, fmt.Sprintf("%s: a higher-ranked candidate masks part of the edit", id))
	}

	result.Manager = clone
	result.Candidate = cand
	return result, nil
}

func (r *Result) warn(logger *slog.Logger, msg string) {
	r.Warnings = append(r.Warnings, msg)
	logger.Warn(msg)
}

// deltaValue is the candidate JSON for a delta; an empty delta is {}.
func deltaValue(d jsonmerge.DeltaResult) map[string]any {
	if d.Value == nil {
		return map[string]any{}
	}
	return d.Value
}

// targetConditions builds the condition declarations for ctx and the key of
// the resulting set. List-valued qualifiers are narrowed to their preferred
// item and reported in narrowed.
func targetConditions(m *resources.Manager, ctx ctxtoken.Context) (types.ConditionDecls, string, []string, error) {
	values := ctx.NonEmpty()
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	var narrowed []string
	decls := make(types.ConditionDecls, 0, len(names))
	conds := make([]*conditions.Condition, 0, len(names))
	for _, name := range names {
		value := values[name]
		if first, _, isList := strings.Cut(value, types.ContextListSeparator); isList {
			value = first
			narrowed = append(narrowed, name)
		}
		d := types.ConditionDecl{Qualifier: name, Value: value}
		c, err := conditions.Compile(m.Qualifiers(), d)
		if err != nil {
			return nil, "", nil, err
		}
		decls = append(decls, d)
		conds = append(conds, c)
	}
	set, err := conditions.NewConditionSet(conds)
	if err != nil {
		return nil, "", nil, err
	}
	return decls, set.Key(), narrowed, nil
}
