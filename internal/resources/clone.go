package resources

import (
	"fmt"
	"sort"

	"github.com/solatis/qualify/internal/conditions"
	"github.com/solatis/qualify/internal/ctxtoken"
	"github.com/solatis/qualify/internal/qualifiers"
	"github.com/solatis/qualify/internal/types"
)

// CloneOptions control Clone.
type CloneOptions struct {
	// Candidates are added to the clone. A candidate whose resource already
	// has one with an equal condition set replaces it in place.
	Candidates []types.CandidateDecl
	// FilterForContext drops candidates that cannot match the context under
	// partial-context matching with default scores accepted. Resources left
	// without candidates are dropped.
	FilterForContext ctxtoken.Context
	// ReduceQualifiers removes conditions the filter context satisfies
	// perfectly. Requires FilterForContext.
	ReduceQualifiers bool
}

var filterOptions = conditions.Options{PartialContextMatch: true, AcceptDefaultScore: true}

// Clone returns an independent manager. The receiver is never modified,
// and on error no clone is returned.
func (m *Manager) Clone(opts CloneOptions) (*Manager, error) {
	if opts.ReduceQualifiers && opts.FilterForContext == nil {
		return nil, fmt.Errorf("%w: reducing qualifiers requires a filter context", types.ErrValidation)
	}

	out := &Manager{
		config:        m.config,
		system:        m.system,
		resourceTypes: m.resourceTypes,
		typesByName:   m.typesByName,
		builders:      make(map[types.ResourceID]*resourceBuilder, len(m.builders)),
		order:         append([]types.ResourceID(nil), m.order...),
	}
	for id, b := range m.builders {
		out.builders[id] = b.clone()
	}

	for i, decl := range opts.Candidates {
		cand, rt, err := out.prepareCandidate(decl)
		if err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
		b, ok := out.builders[cand.ResourceID]
		if !ok {
			b = &resourceBuilder{id: cand.ResourceID}
			out.builders[cand.ResourceID] = b
			out.order = append(out.order, cand.ResourceID)
		}
		if err := b.replace(cand, rt); err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
	}

	if opts.FilterForContext != nil {
		ctx, err := ctxtoken.Validate(m.system.Qualifiers, opts.FilterForContext)
		if err != nil {
			return nil, fmt.Errorf("filter context: %w", err)
		}
		out.filter(ctx, opts.ReduceQualifiers)
	}
	return out, nil
}

func (m *Manager) filter(ctx ctxtoken.Context, reduce bool) {
	order := m.order[:0:0]
	for _, id := range m.order {
		b := m.builders[id]
		kept := b.candidates[:0:0]
		for _, c := range b.candidates {
			if c.Conditions.Evaluate(ctx, filterOptions).Kind != conditions.KindNoMatch {
				kept = append(kept, c)
			}
		}
		if reduce {
			kept = reduceCandidates(kept, ctx)
		}
		if len(kept) == 0 {
			delete(m.builders, id)
			continue
		}
		b.candidates = kept
		order = append(order, id)
	}
	m.order = order
}

// reduceCandidates strips perfectly matched conditions. When two candidates
// reduce to the same set, the one ranking first under ctx survives.
func reduceCandidates(cands []*Candidate, ctx ctxtoken.Context) []*Candidate {
	type ranked struct {
		pos    int
		result conditions.MatchResult
	}
	order := make([]ranked, len(cands))
	for i, c := range cands {
		order[i] = ranked{pos: i, result: c.Conditions.Evaluate(ctx, filterOptions)}
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		return conditions.Outranks(a.result, cands[a.pos].Conditions.Priority(), b.result, cands[b.pos].Conditions.Priority())
	})

	reduced := make([]*Candidate, len(cands))
	seen := make(map[string]bool, len(cands))
	for _, r := range order {
		c := cands[r.pos]
		var conds []*conditions.Condition
		for _, cond := range c.Conditions.Conditions {
			res := cond.Evaluate(ctx, filterOptions)
			if res.Kind == conditions.KindMatch && res.Score == qualifiers.PerfectMatch {
				continue
			}
			conds = append(conds, cond)
		}
		// A subset of a valid set is valid.
		set, _ := conditions.NewConditionSet(conds)
		if seen[set.Key()] {
			continue
		}
		seen[set.Key()] = true
		cp := *c
		cp.Conditions = set
		reduced[r.pos] = &cp
	}

	out := make([]*Candidate, 0, len(cands))
	for _, c := range reduced {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}
