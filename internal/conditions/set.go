package conditions

import (
	"fmt"
	"sort"
	"strings"

	"github.com/solatis/qualify/internal/ctxtoken"
	"github.com/solatis/qualify/internal/qualifiers"
	"github.com/solatis/qualify/internal/types"
)

// UnconditionalKey is the key of the empty condition set.
const UnconditionalKey = "(unconditional)"

// ConditionSet is an AND-group of conditions, at most one per qualifier,
// sorted canonically so equal groups share a key.
type ConditionSet struct {
	Conditions []*Condition
	Index      int
}

// NewConditionSet sorts conds and rejects repeated qualifiers.
func NewConditionSet(conds []*Condition) (*ConditionSet, error) {
	if len(conds) > types.MaxConditionsPerSet {
		return nil, fmt.Errorf("%w: %d > %d", types.ErrTooManyConditions, len(conds), types.MaxConditionsPerSet)
	}
	sorted := make([]*Condition, len(conds))
	copy(sorted, conds)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Key() < sorted[j].Key()
	})
	seen := make(map[*qualifiers.Qualifier]bool, len(sorted))
	for _, c := range sorted {
		if seen[c.Qualifier] {
			return nil, fmt.Errorf("%w: %s in one condition set", types.ErrDuplicateQualifier, c.Qualifier.Name)
		}
		seen[c.Qualifier] = true
	}
	return &ConditionSet{Conditions: sorted, Index: -1}, nil
}

// Key joins condition keys with '+'.
func (s *ConditionSet) Key() string {
	if len(s.Conditions) == 0 {
		return UnconditionalKey
	}
	keys := make([]string, len(s.Conditions))
	for i, c := range s.Conditions {
		keys[i] = c.Key()
	}
	return strings.Join(keys, "+")
}

func (s *ConditionSet) setIndex(i int) { s.Index = i }

// Priority is the sum of condition priorities, so narrower sets outrank
// broader sets built from the same qualifiers.
func (s *ConditionSet) Priority() int {
	total := 0
	for _, c := range s.Conditions {
		total += c.Priority
	}
	return total
}

// Decls returns the declaration form of the set.
func (s *ConditionSet) Decls() types.ConditionDecls {
	out := make(types.ConditionDecls, len(s.Conditions))
	for i, c := range s.Conditions {
		out[i] = c.Decl()
	}
	return out
}

// Evaluate tests every condition and aggregates the results.
func (s *ConditionSet) Evaluate(ctx ctxtoken.Context, opts Options) MatchResult {
	results := make([]MatchResult, len(s.Conditions))
	for i, c := range s.Conditions {
		results[i] = c.Evaluate(ctx, opts)
	}
	return Aggregate(results)
}

// Aggregate combines condition results with AND semantics.
//
// Any no match disqualifies. Otherwise any undefined condition makes the set
// undefined: it is kept as a potential match but never outranks a defined
// match. Otherwise the set is matched-as-default if any condition was. The
// score is the minimum over defined conditions; an empty set is a perfect
// match.
func Aggregate(results []MatchResult) MatchResult {
	out := MatchResult{Kind: KindMatch, Score: qualifiers.PerfectMatch}
	undefined := false
	for _, r := range results {
		switch r.Kind {
		case KindNoMatch:
			return MatchResult{Kind: KindNoMatch}
		case KindUndefined:
			undefined = true
			continue
		case KindMatchAsDefault:
			out.Kind = KindMatchAsDefault
		}
		if r.Score < out.Score {
			out.Score = r.Score
		}
	}
	if undefined {
		out.Kind = KindUndefined
	}
	return out
}

// Decision is the ordered list of condition sets for one resource's
// candidates, positional with the candidate array.
type Decision struct {
	ConditionSets []*ConditionSet
	Index         int
}

// NewDecision wraps sets in candidate order.
func NewDecision(sets []*ConditionSet) *Decision {
	out := make([]*ConditionSet, len(sets))
	copy(out, sets)
	return &Decision{ConditionSets: out, Index: -1}
}

// Key joins set keys in candidate order.
func (d *Decision) Key() string {
	keys := make([]string, len(d.ConditionSets))
	for i, s := range d.ConditionSets {
		keys[i] = "[" + s.Key() + "]"
	}
	return strings.Join(keys, ",")
}

func (d *Decision) setIndex(i int) { d.Index = i }

type indexed interface {
	Key() string
	setIndex(int)
}

// Collector interns items by key and assigns append-only indices.
type Collector[T indexed] struct {
	items []T
	byKey map[string]T
}

// NewCollector creates an empty collector.
func NewCollector[T indexed]() *Collector[T] {
	return &Collector[T]{byKey: make(map[string]T)}
}

// GetOrAdd returns the interned item with item's key, adding item if new.
// A newly added item has its index overwritten.
func (c *Collector[T]) GetOrAdd(item T) T {
	key := item.Key()
	if existing, ok := c.byKey[key]; ok {
		return existing
	}
	item.setIndex(len(c.items))
	c.items = append(c.items, item)
	c.byKey[key] = item
	return item
}

// Values returns items in index order.
func (c *Collector[T]) Values() []T {
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

// Len returns the number of interned items.
func (c *Collector[T]) Len() int { return len(c.items) }

// Collectors interns the three condition-model tables together.
type Collectors struct {
	Conditions    *Collector[*Condition]
	ConditionSets *Collector[*ConditionSet]
	Decisions     *Collector[*Decision]
}

// NewCollectors creates empty tables.
func NewCollectors() *Collectors {
	return &Collectors{
		Conditions:    NewCollector[*Condition](),
		ConditionSets: NewCollector[*ConditionSet](),
		Decisions:     NewCollector[*Decision](),
	}
}

// InternSet interns every condition of set, then the set itself.
// Inputs are copied, so objects owned by another table keep their indices.
func (c *Collectors) InternSet(set *ConditionSet) *ConditionSet {
	conds := make([]*Condition, len(set.Conditions))
	for i, cond := range set.Conditions {
		cp := *cond
		conds[i] = c.Conditions.GetOrAdd(&cp)
	}
	return c.ConditionSets.GetOrAdd(&ConditionSet{Conditions: conds, Index: -1})
}

// InternDecision interns every set of d, then the decision itself.
func (c *Collectors) InternDecision(d *Decision) *Decision {
	sets := make([]*ConditionSet, len(d.ConditionSets))
	for i, s := range d.ConditionSets {
		sets[i] = c.InternSet(s)
	}
	return c.Decisions.GetOrAdd(&Decision{ConditionSets: sets, Index: -1})
}

// Outranks reports whether a set result a with priority pa ranks ahead of b
// with pb: kind first, then score, then priority. Equal results do not
// outrank each other, leaving ties to declaration order.
func Outranks(a MatchResult, pa int, b MatchResult, pb int) bool {
	if a.Kind != b.Kind {
		return a.Kind > b.Kind
	}
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return pa > pb
}
