package qualifiers

import (
	"fmt"
	"math"
	"strings"

	"github.com/solatis/qualify/internal/types"
)

// hierarchyDecay scores a condition naming an ancestor d levels above the
// context value as hierarchyDecay^d.
const hierarchyDecay = 0.9

// LiteralType accepts identifier-like values, optionally restricted to an
// enumerated set and optionally arranged in a parent hierarchy.
type LiteralType struct {
	decl       types.QualifierTypeDecl
	enumerated map[string]bool
	parents    map[string]string
}

func newLiteralType(decl types.QualifierTypeDecl) (*LiteralType, error) {
	t := &LiteralType{decl: decl}
	if len(decl.EnumeratedValues) > 0 {
		t.enumerated = make(map[string]bool, len(decl.EnumeratedValues))
		for _, v := range decl.EnumeratedValues {
			t.enumerated[t.normalize(v)] = true
		}
	}
	if len(decl.Hierarchy) > 0 {
		t.parents = make(map[string]string, len(decl.Hierarchy))
		for child, parent := range decl.Hierarchy {
			c, err := t.validateSingle(child)
			if err != nil {
				return nil, fmt.Errorf("%s hierarchy: %w", decl.Name, err)
			}
			p, err := t.validateSingle(parent)
			if err != nil {
				return nil, fmt.Errorf("%s hierarchy: %w", decl.Name, err)
			}
			t.parents[c] = p
		}
		for child := range t.parents {
			if t.ancestorDistance(child, "") < 0 {
				return nil, fmt.Errorf("%w: %s hierarchy has a cycle through %q", types.ErrValidation, decl.Name, child)
			}
		}
	}
	return t, nil
}

func (t *LiteralType) Name() string                  { return t.decl.Name }
func (t *LiteralType) SystemType() string            { return types.SystemTypeLiteral }
func (t *LiteralType) Decl() types.QualifierTypeDecl { return t.decl }
func (t *LiteralType) sealed()                       {}

func (t *LiteralType) normalize(v string) string {
	v = strings.TrimSpace(v)
	if t.decl.CaseSensitive {
		return v
	}
	return strings.ToLower(v)
}

func (t *LiteralType) validateSingle(value string) (string, error) {
	v := t.normalize(value)
	if v == "" {
		return "", fmt.Errorf("%w: %s: empty value", types.ErrInvalidValue, t.decl.Name)
	}
	if err := checkTokenChars(v); err != nil {
		return "", err
	}
	for _, c := range v {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' || c == '-' || c == '.') {
			return "", fmt.Errorf("%w: %s: %q contains %q", types.ErrInvalidValue, t.decl.Name, v, c)
		}
	}
	if t.enumerated != nil && !t.enumerated[v] {
		return "", fmt.Errorf("%w: %s: %q is not an enumerated value", types.ErrInvalidValue, t.decl.Name, v)
	}
	return v, nil
}

// ValidateConditionValue implements QualifierType.
func (t *LiteralType) ValidateConditionValue(value string) (string, error) {
	if err := checkTokenChars(value); err != nil {
		return "", err
	}
	return t.validateSingle(value)
}

// ValidateContextValue implements QualifierType.
func (t *LiteralType) ValidateContextValue(value string) (string, error) {
	return validateContextList(value, t.decl.AllowContextList, t.validateSingle)
}

// Match implements QualifierType. Exact values score 1; a condition naming an
// ancestor of the context value scores by distance.
func (t *LiteralType) Match(conditionValue, contextValue string) Score {
	return matchList(conditionValue, contextValue, func(cond, ctx string) Score {
		if cond == ctx {
			return PerfectMatch
		}
		if d := t.ancestorDistance(ctx, cond); d > 0 {
			return Score(math.Pow(hierarchyDecay, float64(d)))
		}
		return NoMatch
	})
}

// ancestorDistance walks parents from value. With a non-empty target it
// returns the distance to target or 0 when target is not an ancestor. With an
// empty target it returns the chain length, or -1 on a cycle.
func (t *LiteralType) ancestorDistance(value, target string) int {
	seen := map[string]bool{value: true}
	d := 0
	for cur := value; ; {
		parent, ok := t.parents[cur]
		if !ok {
			if target == "" {
				return d
			}
			return 0
		}
		d++
		if parent == target {
			return d
		}
		if seen[parent] {
			return -1
		}
		seen[parent] = true
		cur = parent
	}
}
