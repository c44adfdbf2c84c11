// internal/resolver/resolver.go
package resolver

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/solatis/qualify/internal/compiled"
	"github.com/solatis/qualify/internal/conditions"
	"github.com/solatis/qualify/internal/ctxtoken"
	"github.com/solatis/qualify/internal/jsonmerge"
	"github.com/solatis/qualify/internal/qualifiers"
	"github.com/solatis/qualify/internal/resources"
	"github.com/solatis/qualify/internal/types"
)

/*
 * Resolver: selects candidates for a context from a compiled collection.
 *
 * Construction rebuilds the qualifier system from the collection and
 * compiles every condition once. Resolution workflow per call:
 *   1. Validate the context against the qualifier registry
 *   2. Look up the memo for the context signature
 *   3. Evaluate each condition set of the resource's decision, reusing
 *      memoized condition results
 *   4. Rank: kind, score desc, set priority desc, position asc
 *
 * Query modes:
 *   - ResolveResource: best match, else best default match, else ErrNoMatch
 *   - ResolveAllResourceCandidates: every match and default match, ranked
 *   - ResolveComposedResourceValue: best full candidate plus every partial
 *     ranked above it, merged lowest-ranked first
 *
 * Undefined sets (partial-context mode, qualifier absent) are reported as
 * potential instances but never selected.
 *
 * The collection is immutable after construction; only the memo is mutable
 * and it is safe for concurrent use.
 */

// Metrics receives cache events. Optional.
type Metrics interface {
	CacheHit(table string)
	CacheMiss(table string)
	CacheReset()
}

// Cache table names reported to Metrics.
const (
	TableCondition = "condition"
	TableDecision  = "decision"
	TableResource  = "resource"
)

// DefaultMaxCachedContexts bounds the number of memoized context signatures.
const DefaultMaxCachedContexts = 4096

// Option configures a Resolver.
type Option func(*Resolver)

// WithPartialContextMatch treats qualifiers absent from the context as undefined.
func WithPartialContextMatch(enabled bool) Option {
	return func(r *Resolver) { r.opts.PartialContextMatch = enabled }
}

// WithAcceptDefaultScore lets conditions with a default score match as default.
func WithAcceptDefaultScore(enabled bool) Option {
	return func(r *Resolver) { r.opts.AcceptDefaultScore = enabled }
}

// WithMetrics installs a cache metrics sink.
func WithMetrics(m Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// WithLogger sets the logger; nil discards.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMaxCachedContexts bounds the memo; zero or less disables the bound.
func WithMaxCachedContexts(n int) Option {
	return func(r *Resolver) { r.maxContexts = n }
}

// CandidateMatch is one ranked candidate.
type CandidateMatch struct {
	// Index is the candidate's position in its resource.
	Index       int
	Kind        conditions.MatchKind
	Score       qualifiers.Score
	Priority    int
	IsPartial   bool
	MergeMethod string
	Value       any
}

// DecisionResult lists candidate positions per outcome, ranked.
type DecisionResult struct {
	Success                  bool
	InstanceIndices          []int
	DefaultInstanceIndices   []int
	PotentialInstanceIndices []int
}

type rankedSet struct {
	index    int
	result   conditions.MatchResult
	priority int
}

// Resolver resolves resources of one compiled collection.
type Resolver struct {
	collection *compiled.Collection
	system     *qualifiers.System
	conditions []*conditions.Condition
	sets       []*conditions.ConditionSet
	values     []any
	resources  map[string]int

	opts        conditions.Options
	metrics     Metrics
	logger      *slog.Logger
	maxContexts int

	cache *cache
}

// New validates c and prepares it for resolution.
func New(c *compiled.Collection, opts ...Option) (*Resolver, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	cfg, err := c.SystemConfig()
	if err != nil {
		return nil, err
	}
	system, err := qualifiers.NewSystem(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: qualifier system: %w", types.ErrIntegrity, err)
	}

	r := &Resolver{
		collection:  c,
		system:      system,
		resources:   make(map[string]int, len(c.Resources)),
		logger:      slog.New(slog.DiscardHandler),
		maxContexts: DefaultMaxCachedContexts,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.conditions = make([]*conditions.Condition, len(c.Conditions))
	for i, cc := range c.Conditions {
		q, err := system.Qualifiers.At(cc.QualifierIndex)
		if err != nil {
			return nil, err
		}
		priority := cc.Priority
		cond, err := conditions.Compile(system.Qualifiers, types.ConditionDecl{
			Qualifier:      q.Name,
			Operator:       cc.Operator,
			Value:          cc.Value,
			Priority:       &priority,
			ScoreAsDefault: cc.ScoreAsDefault,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: condition %d: %w", types.ErrIntegrity, i, err)
		}
		cond.Index = i
		r.conditions[i] = cond
	}

	r.sets = make([]*conditions.ConditionSet, len(c.ConditionSets))
	for i, cs := range c.ConditionSets {
		set := &conditions.ConditionSet{Conditions: make([]*conditions.Condition, len(cs.Conditions)), Index: i}
		for j, ci := range cs.Conditions {
			set.Conditions[j] = r.conditions[ci]
		}
		r.sets[i] = set
	}

	r.values = make([]any, len(c.CandidateValues))
	for i, raw := range c.CandidateValues {
		v, _, err := jsonmerge.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: candidate value %d: %w", types.ErrIntegrity, i, err)
		}
		r.values[i] = v
	}

	for i, res := range c.Resources {
		r.resources[res.ID] = i
	}
	r.cache = newCache(r.maxContexts, r.metrics)
	return r, nil
}

// FromManager compiles m and builds a resolver over the result.
func FromManager(m *resources.Manager, opts ...Option) (*Resolver, error) {
	c, err := m.CompiledCollection(resources.CompileOptions{})
	if err != nil {
		return nil, err
	}
	return New(c, opts...)
}

// Collection returns the compiled collection.
func (r *Resolver) Collection() *compiled.Collection { return r.collection }

// Qualifiers returns the qualifier registry.
func (r *Resolver) Qualifiers() *qualifiers.Registry { return r.system.Qualifiers }

// ValidateContext validates raw name or token keyed values.
func (r *Resolver) ValidateContext(raw map[string]string) (ctxtoken.Context, error) {
	return ctxtoken.Validate(r.system.Qualifiers, raw)
}

// ParseContext parses a context token.
func (r *Resolver) ParseContext(token string) (ctxtoken.Context, error) {
	return ctxtoken.ParseContext(r.system.Qualifiers, token)
}

// Reset drops every memoized result.
func (r *Resolver) Reset() {
	r.cache.reset()
	r.logger.Debug("resolver cache reset")
}

// ResolveDecision evaluates decision index against ctx.
func (r *Resolver) ResolveDecision(index int, ctx ctxtoken.Context) (DecisionResult, error) {
	ctx, err := r.ValidateContext(ctx)
	if err != nil {
		return DecisionResult{}, err
	}
	ranked, err := r.rankDecision(index, ctx)
	if err != nil {
		return DecisionResult{}, err
	}
	var out DecisionResult
	for _, s := range ranked {
		switch s.result.Kind {
		case conditions.KindMatch:
			out.InstanceIndices = append(out.InstanceIndices, s.index)
		case conditions.KindMatchAsDefault:
			out.DefaultInstanceIndices = append(out.DefaultInstanceIndices, s.index)
		case conditions.KindUndefined:
			out.PotentialInstanceIndices = append(out.PotentialInstanceIndices, s.index)
		}
	}
	out.Success = len(out.InstanceIndices) > 0 || len(out.DefaultInstanceIndices) > 0
	return out, nil
}

// ResolveResource returns the best candidate of resource id.
func (r *Resolver) ResolveResource(id string, ctx ctxtoken.Context) (CandidateMatch, error) {
	matches, err := r.ResolveAllResourceCandidates(id, ctx)
	if err != nil {
		return CandidateMatch{}, err
	}
	if len(matches) == 0 {
		return CandidateMatch{}, fmt.Errorf("%w: %s", types.ErrNoMatch, id)
	}
	r.logger.Debug("resolved resource", "id", id, "candidate", matches[0].Index, "kind", matches[0].Kind.String())
	return matches[0], nil
}

// ResolveAllResourceCandidates returns every matching candidate of id, ranked.
func (r *Resolver) ResolveAllResourceCandidates(id string, ctx ctxtoken.Context) ([]CandidateMatch, error) {
	res, err := r.resource(id)
	if err != nil {
		return nil, err
	}
	ctx, err = r.ValidateContext(ctx)
	if err != nil {
		return nil, err
	}
	ranked, err := r.rankDecision(res.Decision, ctx)
	if err != nil {
		return nil, err
	}
	out := make([]CandidateMatch, 0, len(ranked))
	for _, s := range ranked {
		if !s.result.Kind.Matched() {
			continue
		}
		cand := res.Candidates[s.index]
		out = append(out, CandidateMatch{
			Index:       s.index,
			Kind:        s.result.Kind,
			Score:       s.result.Score,
			Priority:    s.priority,
			IsPartial:   cand.IsPartial,
			MergeMethod: cand.MergeMethod,
			Value:       jsonmerge.Clone(r.values[cand.ValueIndex]),
		})
	}
	return out, nil
}

// ResolveComposedResourceValue merges the ranked candidates of id.
func (r *Resolver) ResolveComposedResourceValue(id string, ctx ctxtoken.Context) (any, error) {
	res, err := r.resource(id)
	if err != nil {
		return nil, err
	}
	ctx, err = r.ValidateContext(ctx)
	if err != nil {
		return nil, err
	}

	memo := r.cache.memo(ctx.Signature())
	if v, ok := memo.composed(r.resources[id]); ok {
		r.cache.hit(TableResource)
		return jsonmerge.Clone(v), nil
	}
	r.cache.miss(TableResource)

	matches, err := r.ResolveAllResourceCandidates(id, ctx)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %s", types.ErrNoMatch, res.ID)
	}
	v := Compose(matches)
	memo.storeComposed(r.resources[id], v)
	return jsonmerge.Clone(v), nil
}

// Compose merges ranked matches: the first full candidate is the base and
// every partial ranked higher than or equal to it is applied, lowest-ranked
// first. Without a full candidate all partials apply onto an empty object.
func Compose(matches []CandidateMatch) any {
	base := -1
	for i, m := range matches {
		if !m.IsPartial {
			base = i
			break
		}
	}
	var value any = map[string]any{}
	if base >= 0 {
		value = jsonmerge.Clone(matches[base].Value)
	}
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		if !m.IsPartial {
			continue
		}
		// partials sorted after the base still apply when they tie it
		if base >= 0 && i > base && outranks(matches[base], m) {
			continue
		}
		if m.MergeMethod == types.MergeReplace {
			value = jsonmerge.MergeShallow(value, m.Value)
		} else {
			value = jsonmerge.Merge(value, m.Value)
		}
	}
	return value
}

func outranks(a, b CandidateMatch) bool {
	return conditions.Outranks(
		conditions.MatchResult{Kind: a.Kind, Score: a.Score}, a.Priority,
		conditions.MatchResult{Kind: b.Kind, Score: b.Score}, b.Priority,
	)
}

func (r *Resolver) resource(id string) (compiled.Resource, error) {
	i, ok := r.resources[id]
	if !ok {
		return compiled.Resource{}, fmt.Errorf("%w: %s", types.ErrResourceNotFound, id)
	}
	return r.collection.Resources[i], nil
}

// rankDecision evaluates and ranks every set of decision index. ctx must
// already be validated.
func (r *Resolver) rankDecision(index int, ctx ctxtoken.Context) ([]rankedSet, error) {
	d, err := r.collection.DecisionAt(index)
	if err != nil {
		return nil, err
	}
	memo := r.cache.memo(ctx.Signature())
	if ranked, ok := memo.decision(index); ok {
		r.cache.hit(TableDecision)
		return ranked, nil
	}
	r.cache.miss(TableDecision)

	ranked := make([]rankedSet, len(d.ConditionSets))
	for pos, si := range d.ConditionSets {
		if si < 0 || si >= len(r.sets) {
			return nil, fmt.Errorf("%w: decision %d references condition set %d", types.ErrIntegrity, index, si)
		}
		set := r.sets[si]
		results := make([]conditions.MatchResult, len(set.Conditions))
		for j, cond := range set.Conditions {
			results[j] = r.evaluateCondition(memo, cond, ctx)
		}
		ranked[pos] = rankedSet{index: pos, result: conditions.Aggregate(results), priority: set.Priority()}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		return conditions.Outranks(a.result, a.priority, b.result, b.priority)
	})
	memo.storeDecision(index, ranked)
	return ranked, nil
}

func (r *Resolver) evaluateCondition(memo *memo, cond *conditions.Condition, ctx ctxtoken.Context) conditions.MatchResult {
	if res, ok := memo.condition(cond.Index); ok {
		r.cache.hit(TableCondition)
		return res
	}
	r.cache.miss(TableCondition)
	res := cond.Evaluate(ctx, r.opts)
	memo.storeCondition(cond.Index, res)
	return res
}
