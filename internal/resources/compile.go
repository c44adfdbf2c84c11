package resources

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/solatis/qualify/internal/compiled"
	"github.com/solatis/qualify/internal/conditions"
	"github.com/solatis/qualify/internal/qualifiers"
	"github.com/solatis/qualify/internal/types"
)

// CompileOptions control collection output.
type CompileOptions struct {
	// IncludeMetadata adds the condition, set and decision key tables.
	IncludeMetadata bool
	// SortTables orders qualifier types, qualifiers and resource types by
	// name instead of declaration order.
	SortTables bool
}

// CompiledCollection compiles every resource in insertion order.
func (m *Manager) CompiledCollection(opts CompileOptions) (*compiled.Collection, error) {
	return m.Compile(m.Resources(), opts)
}

// Compile flattens resources, which must be built by this manager, into a
// collection. Conditions, sets, decisions and values are interned in order
// of first appearance.
func (m *Manager) Compile(resources []*Resource, opts CompileOptions) (*compiled.Collection, error) {
	qtypes := m.system.Types.Values()
	quals := m.system.Qualifiers.Values()
	rtypes := m.ResourceTypes()
	if opts.SortTables {
		sort.SliceStable(qtypes, func(i, j int) bool { return qtypes[i].Name() < qtypes[j].Name() })
		sort.SliceStable(quals, func(i, j int) bool { return quals[i].Name < quals[j].Name })
		sort.SliceStable(rtypes, func(i, j int) bool { return rtypes[i].Name < rtypes[j].Name })
	}

	out := &compiled.Collection{
		QualifierTypes: make([]compiled.QualifierType, 0, len(qtypes)),
		Qualifiers:     make([]compiled.Qualifier, 0, len(quals)),
		ResourceTypes:  make([]compiled.ResourceType, 0, len(rtypes)),
		Resources:      make([]compiled.Resource, 0, len(resources)),
	}

	typeIndex := make(map[string]int, len(qtypes))
	for i, t := range qtypes {
		typeIndex[t.Name()] = i
		out.QualifierTypes = append(out.QualifierTypes, t.Decl())
	}
	qualIndex := make(map[*qualifiers.Qualifier]int, len(quals))
	for i, q := range quals {
		qualIndex[q] = i
		out.Qualifiers = append(out.Qualifiers, compiled.Qualifier{
			Name:            q.Name,
			Token:           q.Token,
			Type:            typeIndex[q.Type.Name()],
			DefaultPriority: q.DefaultPriority,
			TokenIsOptional: q.TokenIsOptional,
		})
	}
	rtIndex := make(map[*ResourceType]int, len(rtypes))
	for i, rt := range rtypes {
		rtIndex[rt] = i
		out.ResourceTypes = append(out.ResourceTypes, rt.Decl())
	}

	collectors := conditions.NewCollectors()
	values := compiled.NewValueTable()
	for _, r := range resources {
		if len(r.Decision.ConditionSets) != len(r.Candidates) {
			return nil, fmt.Errorf("%w: %w: %s has %d candidates but %d condition sets",
				types.ErrIntegrity, types.ErrDecisionMismatch, r.ID, len(r.Candidates), len(r.Decision.ConditionSets))
		}
		ti, ok := rtIndex[r.Type]
		if !ok {
			return nil, fmt.Errorf("%w: %s has a resource type from another manager", types.ErrIntegrity, r.ID)
		}
		d := collectors.InternDecision(r.Decision)
		cr := compiled.Resource{
			ID:         r.ID.String(),
			Type:       ti,
			Decision:   d.Index,
			Candidates: make([]compiled.Candidate, 0, len(r.Candidates)),
		}
		for _, c := range r.Candidates {
			cr.Candidates = append(cr.Candidates, compiled.Candidate{
				ValueIndex:  values.Add(c.Canonical),
				IsPartial:   c.IsPartial,
				MergeMethod: c.MergeMethod,
			})
		}
		out.Resources = append(out.Resources, cr)
	}

	conds := collectors.Conditions.Values()
	out.Conditions = make([]compiled.Condition, 0, len(conds))
	for _, c := range conds {
		qi, ok := qualIndex[c.Qualifier]
		if !ok {
			return nil, fmt.Errorf("%w: condition %s uses a qualifier from another system", types.ErrIntegrity, c.Key())
		}
		cc := compiled.Condition{
			QualifierIndex: qi,
			Value:          c.Value,
			Priority:       c.Priority,
		}
		if c.Operator != conditions.OpMatches {
			cc.Operator = c.Operator.String()
		}
		if c.ScoreAsDefault != nil {
			s := float64(*c.ScoreAsDefault)
			cc.ScoreAsDefault = &s
		}
		out.Conditions = append(out.Conditions, cc)
	}

	sets := collectors.ConditionSets.Values()
	out.ConditionSets = make([]compiled.ConditionSet, 0, len(sets))
	for _, s := range sets {
		idx := make([]int, len(s.Conditions))
		for i, c := range s.Conditions {
			idx[i] = c.Index
		}
		out.ConditionSets = append(out.ConditionSets, compiled.ConditionSet{Conditions: idx})
	}

	decisions := collectors.Decisions.Values()
	out.Decisions = make([]compiled.Decision, 0, len(decisions))
	for _, d := range decisions {
		idx := make([]int, len(d.ConditionSets))
		for i, s := range d.ConditionSets {
			idx[i] = s.Index
		}
		out.Decisions = append(out.Decisions, compiled.Decision{ConditionSets: idx})
	}
	out.CandidateValues = values.Values()

	if opts.IncludeMetadata {
		keys := &compiled.Keys{
			ConditionKeys:    make([]string, len(conds)),
			ConditionSetKeys: make([]string, len(sets)),
			DecisionKeys:     make([]string, len(decisions)),
		}
		for i, c := range conds {
			keys.ConditionKeys[i] = c.Key()
		}
		for i, s := range sets {
			keys.ConditionSetKeys[i] = s.Key()
		}
		for i, d := range decisions {
			keys.DecisionKeys[i] = d.Key()
		}
		out.Keys = keys
	}

	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// FromCompiled rebuilds a manager from a collection.
func FromCompiled(c *compiled.Collection) (*Manager, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	cfg, err := c.SystemConfig()
	if err != nil {
		return nil, err
	}
	m, err := NewManager(cfg)
	if err != nil {
		return nil, fmt.Errorf("rebuild system: %w", err)
	}

	for _, r := range c.Resources {
		d := c.Decisions[r.Decision]
		decls := make([]types.CandidateDecl, 0, len(r.Candidates))
		for i, cand := range r.Candidates {
			set := c.ConditionSets[d.ConditionSets[i]]
			conds := make(types.ConditionDecls, 0, len(set.Conditions))
			for _, ci := range set.Conditions {
				cc := c.Conditions[ci]
				priority := cc.Priority
				decl := types.ConditionDecl{
					Qualifier: c.Qualifiers[cc.QualifierIndex].Name,
					Operator:  cc.Operator,
					Value:     cc.Value,
					Priority:  &priority,
				}
				if cc.ScoreAsDefault != nil {
					s := *cc.ScoreAsDefault
					decl.ScoreAsDefault = &s
				}
				conds = append(conds, decl)
			}
			var value any
			if err := json.Unmarshal(c.CandidateValues[cand.ValueIndex], &value); err != nil {
				return nil, fmt.Errorf("%w: %s candidate %d: %w", types.ErrIntegrity, r.ID, i, err)
			}
			decls = append(decls, types.CandidateDecl{
				ID:           r.ID,
				ResourceType: c.ResourceTypes[r.Type].Name,
				JSON:         value,
				Conditions:   conds,
				IsPartial:    cand.IsPartial,
				MergeMethod:  cand.MergeMethod,
			})
		}
		if err := m.AddCandidates(decls); err != nil {
			return nil, fmt.Errorf("rebuild %s: %w", r.ID, err)
		}
	}
	return m, nil
}
