// internal/conditions/condition.go
package conditions

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/solatis/qualify/internal/ctxtoken"
	"github.com/solatis/qualify/internal/qualifiers"
	"github.com/solatis/qualify/internal/types"
)

/*
 * Condition compilation and evaluation.
 *
 * Compiles types.ConditionDecl into an immutable Condition bound to a
 * registered qualifier, with its value canonicalized by the qualifier type
 * and its priority defaulted from the qualifier.
 *
 * Evaluation of one condition against a context:
 *   1. always -> match (1.0); never -> no match
 *   2. qualifier absent: undefined under partial-context match, else no match
 *   3. qualifier present: the type scores the values; > 0 is a match
 *   4. a no match becomes matched-as-default when the condition declares
 *      ScoreAsDefault and the caller accepts default scores
 *
 * A present but empty context value matches nothing and is never undefined.
 */

// Operator is a condition operator.
type Operator int

const (
	OpMatches Operator = iota
	OpAlways
	OpNever
)

// ParseOperator converts a declared operator; empty means matches.
func ParseOperator(s string) (Operator, error) {
	switch s {
	case "", types.OperatorMatches:
		return OpMatches, nil
	case types.OperatorAlways:
		return OpAlways, nil
	case types.OperatorNever:
		return OpNever, nil
	default:
		return 0, fmt.Errorf("%w: %q", types.ErrInvalidOperator, s)
	}
}

func (o Operator) String() string {
	switch o {
	case OpAlways:
		return types.OperatorAlways
	case OpNever:
		return types.OperatorNever
	default:
		return types.OperatorMatches
	}
}

// MatchKind classifies an evaluation outcome. Higher kinds rank first.
type MatchKind int

const (
	KindNoMatch MatchKind = iota
	KindUndefined
	KindMatchAsDefault
	KindMatch
)

func (k MatchKind) String() string {
	switch k {
	case KindMatch:
		return "match"
	case KindMatchAsDefault:
		return "matchAsDefault"
	case KindUndefined:
		return "undefined"
	default:
		return "noMatch"
	}
}

// Matched reports whether the kind counts as a match or default match.
func (k MatchKind) Matched() bool {
	return k == KindMatch || k == KindMatchAsDefault
}

// MatchResult is the outcome of evaluating a condition or condition set.
type MatchResult struct {
	Kind  MatchKind
	Score qualifiers.Score
}

// Options control evaluation.
type Options struct {
	// PartialContextMatch treats absent qualifiers as undefined.
	PartialContextMatch bool
	// AcceptDefaultScore lets ScoreAsDefault turn a no match into a default match.
	AcceptDefaultScore bool
}

// Condition is a compiled qualifier test. Index is assigned by a Collector.
type Condition struct {
	Qualifier      *qualifiers.Qualifier
	Operator       Operator
	Value          string
	Priority       int
	ScoreAsDefault *qualifiers.Score
	Index          int
}

// Compile validates decl against reg.
func Compile(reg *qualifiers.Registry, decl types.ConditionDecl) (*Condition, error) {
	q, err := reg.Get(decl.Qualifier)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrValidation, err)
	}
	op, err := ParseOperator(decl.Operator)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrValidation, err)
	}

	c := &Condition{
		Qualifier: q,
		Operator:  op,
		Priority:  q.DefaultPriority,
		Index:     -1,
	}
	if decl.Priority != nil {
		c.Priority = *decl.Priority
	}

	if op == OpMatches {
		v, err := q.Type.ValidateConditionValue(decl.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: condition on %s: %w", types.ErrValidation, q.Name, err)
		}
		c.Value = v
	} else if decl.Value != "" {
		return nil, fmt.Errorf("%w: %s condition on %s takes no value", types.ErrValidation, op, q.Name)
	}

	if decl.ScoreAsDefault != nil {
		s := *decl.ScoreAsDefault
		if s <= 0 || s > 1 {
			return nil, fmt.Errorf("%w: scoreAsDefault %v outside (0,1]", types.ErrValidation, s)
		}
		score := qualifiers.Score(s)
		c.ScoreAsDefault = &score
	}
	return c, nil
}

// Key is the identity of a condition: equal keys mean interchangeable conditions.
// Format: name-[value]@priority, with (default) appended when set.
func (c *Condition) Key() string {
	var b strings.Builder
	b.WriteString(c.Qualifier.Name)
	if c.Operator == OpMatches {
		b.WriteString("-[")
		b.WriteString(c.Value)
		b.WriteString("]")
	} else {
		b.WriteString("-")
		b.WriteString(c.Operator.String())
	}
	b.WriteString("@")
	b.WriteString(strconv.Itoa(c.Priority))
	if c.ScoreAsDefault != nil {
		b.WriteString("(")
		b.WriteString(strconv.FormatFloat(float64(*c.ScoreAsDefault), 'g', -1, 64))
		b.WriteString(")")
	}
	return b.String()
}

func (c *Condition) setIndex(i int) { c.Index = i }

// Decl returns the declaration form with an explicit priority.
func (c *Condition) Decl() types.ConditionDecl {
	priority := c.Priority
	decl := types.ConditionDecl{
		Qualifier: c.Qualifier.Name,
		Value:     c.Value,
		Priority:  &priority,
	}
	if c.Operator != OpMatches {
		decl.Operator = c.Operator.String()
	}
	if c.ScoreAsDefault != nil {
		s := float64(*c.ScoreAsDefault)
		decl.ScoreAsDefault = &s
	}
	return decl
}

// Evaluate tests the condition against ctx.
func (c *Condition) Evaluate(ctx ctxtoken.Context, opts Options) MatchResult {
	switch c.Operator {
	case OpAlways:
		return MatchResult{Kind: KindMatch, Score: qualifiers.PerfectMatch}
	case OpMatches:
		v, ok := ctx.Get(c.Qualifier.Name)
		if !ok && opts.PartialContextMatch {
			return MatchResult{Kind: KindUndefined}
		}
		if ok && v != "" {
			if s := c.Qualifier.Type.Match(c.Value, v); s > qualifiers.NoMatch {
				return MatchResult{Kind: KindMatch, Score: s}
			}
		}
	}
	if c.ScoreAsDefault != nil && opts.AcceptDefaultScore {
		return MatchResult{Kind: KindMatchAsDefault, Score: *c.ScoreAsDefault}
	}
	return MatchResult{Kind: KindNoMatch}
}
