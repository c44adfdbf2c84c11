// internal/bundle/normalize.go
package bundle

import (
	"fmt"
	"sort"

	"github.com/solatis/qualify/internal/compiled"
	"github.com/solatis/qualify/internal/conditions"
	"github.com/solatis/qualify/internal/resources"
	"github.com/solatis/qualify/internal/types"
)

/*
 * Normalization: the canonical compiled form of a manager.
 *
 * Two managers holding the same logical content produce byte-identical
 * output, whatever order their qualifiers, resources and candidates were
 * declared in:
 *   - qualifier types, qualifiers, resource types sorted by name
 *   - resources sorted by id
 *   - candidates sorted by (condition set key, partial, merge method,
 *     canonical JSON)
 *   - conditions, sets, decisions and values numbered by first appearance
 *     in that walk; values deduplicated by CRC32 plus byte comparison
 *
 * A resource whose decision and candidates disagree in length is an error,
 * never repaired. The manager is only read.
 */

// Normalize returns the canonical collection of m.
func Normalize(m *resources.Manager) (*compiled.Collection, error) {
	return NormalizeResources(m, m.Resources())
}

// NormalizeResources normalizes resources built by m.
func NormalizeResources(m *resources.Manager, built []*resources.Resource) (*compiled.Collection, error) {
	ordered := make([]*resources.Resource, 0, len(built))
	for _, r := range built {
		if len(r.Decision.ConditionSets) != len(r.Candidates) {
			return nil, fmt.Errorf("%w: %w: %s has %d candidates but %d condition sets",
				types.ErrIntegrity, types.ErrDecisionMismatch, r.ID, len(r.Candidates), len(r.Decision.ConditionSets))
		}
		ordered = append(ordered, canonicalResource(r))
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	c, err := m.Compile(ordered, resources.CompileOptions{SortTables: true})
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	return c, nil
}

func canonicalResource(r *resources.Resource) *resources.Resource {
	cands := append([]*resources.Candidate(nil), r.Candidates...)
	sort.SliceStable(cands, func(i, j int) bool {
		return candidateLess(cands[i], cands[j])
	})
	sets := make([]*conditions.ConditionSet, len(cands))
	for i, c := range cands {
		sets[i] = c.Conditions
	}
	return &resources.Resource{
		ID:         r.ID,
		Type:       r.Type,
		Candidates: cands,
		Decision:   conditions.NewDecision(sets),
	}
}

func candidateLess(a, b *resources.Candidate) bool {
	if ak, bk := a.Conditions.Key(), b.Conditions.Key(); ak != bk {
		return ak < bk
	}
	if a.IsPartial != b.IsPartial {
		return !a.IsPartial
	}
	if a.MergeMethod != b.MergeMethod {
		return a.MergeMethod < b.MergeMethod
	}
	return string(a.Canonical) < string(b.Canonical)
}
