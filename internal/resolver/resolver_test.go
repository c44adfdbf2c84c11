package resolver

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/solatis/qualify/internal/conditions"
	"github.com/solatis/qualify/internal/ctxtoken"
	"github.com/solatis/qualify/internal/resources"
	"github.com/solatis/qualify/internal/types"
)

func intPtr(i int) *int { return &i }

func floatPtr(f float64) *float64 { return &f }

func build(t *testing.T, decls []types.CandidateDecl, opts ...Option) *Resolver {
	t.Helper()
	m, err := resources.NewManager(types.DefaultSystemConfig())
	if err != nil {
		t.Fatalf("NewManager() error = %v, want nil", err)
	}
	if err := m.AddCandidates(decls); err != nil {
		t.Fatalf("AddCandidates() error = %v, want nil", err)
	}
	r, err := FromManager(m, opts...)
	if err != nil {
		t.Fatalf("FromManager() error = %v, want nil", err)
	}
	return r
}

func greeting() []types.CandidateDecl {
	return []types.CandidateDecl{
		{ID: "greeting", JSON: map[string]any{"text": "Hello"}},
		{ID: "greeting", JSON: map[string]any{"text": "Bonjour"}, Conditions: types.ConditionDecls{
			{Qualifier: "language", Value: "fr", Priority: intPtr(100)},
		}},
	}
}

func TestResolveResource_Greeting(t *testing.T) {
	tests := []struct {
		name    string
		ctx     ctxtoken.Context
		partial bool
		want    string
	}{
		{"french", ctxtoken.Context{"language": "fr"}, false, "Bonjour"},
		{"german", ctxtoken.Context{"language": "de"}, false, "Hello"},
		{"empty partial", ctxtoken.Context{}, true, "Hello"},
		{"empty strict", ctxtoken.Context{}, false, "Hello"},
		{"token key", ctxtoken.Context{"lang": "fr"}, false, "Bonjour"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := build(t, greeting(), WithPartialContextMatch(tt.partial))
			got, err := r.ResolveResource("greeting", tt.ctx)
			if err != nil {
				t.Fatalf("ResolveResource() error = %v, want nil", err)
			}
			if text := got.Value.(map[string]any)["text"]; text != tt.want {
				t.Errorf("ResolveResource() text = %v, want %s", text, tt.want)
			}
		})
	}
}

// Score ranks ahead of priority: a perfect unconditional match beats a
// region fallback on a higher-priority condition.
func TestResolveResource_ScoreBeforePriority(t *testing.T) {
	r := build(t, greeting())
	all, err := r.ResolveAllResourceCandidates("greeting", ctxtoken.Context{"language": "fr-CA"})
	if err != nil {
		t.Fatalf("ResolveAllResourceCandidates() error = %v, want nil", err)
	}
	if len(all) != 2 || all[0].Index != 0 || all[1].Score != 0.9 {
		t.Errorf("ResolveAllResourceCandidates(fr-CA) = %+v, want unconditional first then fr at 0.9", all)
	}
}

func TestResolveResource_Errors(t *testing.T) {
	r := build(t, []types.CandidateDecl{
		{ID: "only.fr", JSON: map[string]any{"v": 1}, Conditions: types.ConditionDecls{{Qualifier: "language", Value: "fr"}}},
	})

	if _, err := r.ResolveResource("missing", nil); !errors.Is(err, types.ErrResourceNotFound) {
		t.Errorf("ResolveResource(missing) error = %v, want ErrResourceNotFound", err)
	}
	if _, err := r.ResolveResource("only.fr", ctxtoken.Context{"language": "de"}); !errors.Is(err, types.ErrNoMatch) {
		t.Errorf("ResolveResource(de) error = %v, want ErrNoMatch", err)
	}
	if _, err := r.ResolveResource("only.fr", ctxtoken.Context{"language": "x|y"}); !errors.Is(err, types.ErrValidation) {
		t.Errorf("ResolveResource(bad context) error = %v, want ErrValidation", err)
	}
	if _, err := r.ResolveComposedResourceValue("only.fr", ctxtoken.Context{"language": "de"}); !errors.Is(err, types.ErrNoMatch) {
		t.Errorf("ResolveComposedResourceValue(de) error = %v, want ErrNoMatch", err)
	}
}

func TestResolveDecision(t *testing.T) {
	decls := []types.CandidateDecl{
		{ID: "banner", JSON: map[string]any{"v": "en"}, Conditions: types.ConditionDecls{
			{Qualifier: "language", Value: "en", ScoreAsDefault: floatPtr(0.5)},
		}},
		{ID: "banner", JSON: map[string]any{"v": "us"}, Conditions: types.ConditionDecls{{Qualifier: "territory", Value: "US"}}},
		{ID: "banner", JSON: map[string]any{"v": "ios"}, Conditions: types.ConditionDecls{{Qualifier: "platform", Value: "ios"}}},
	}

	t.Run("default fallback in strict mode", func(t *testing.T) {
		r := build(t, decls, WithAcceptDefaultScore(true))
		res, err := r.ResolveDecision(r.Collection().Resources[0].Decision, ctxtoken.Context{})
		if err != nil {
			t.Fatalf("ResolveDecision() error = %v, want nil", err)
		}
		if !res.Success || len(res.InstanceIndices) != 0 || !reflect.DeepEqual(res.DefaultInstanceIndices, []int{0}) {
			t.Errorf("ResolveDecision() = %+v, want default instance 0 only", res)
		}
		all, err := r.ResolveAllResourceCandidates("banner", ctxtoken.Context{})
		if err != nil {
			t.Fatalf("ResolveAllResourceCandidates() error = %v, want nil", err)
		}
		if len(all) != 1 || all[0].Kind != conditions.KindMatchAsDefault || all[0].Score != 0.5 {
			t.Errorf("ResolveAllResourceCandidates() = %+v, want one default match at 0.5", all)
		}
	})

	t.Run("partial marks absent qualifiers potential", func(t *testing.T) {
		r := build(t, decls, WithPartialContextMatch(true))
		res, err := r.ResolveDecision(r.Collection().Resources[0].Decision, ctxtoken.Context{"territory": "US"})
		if err != nil {
			t.Fatalf("ResolveDecision() error = %v, want nil", err)
		}
		if !reflect.DeepEqual(res.InstanceIndices, []int{1}) {
			t.Errorf("InstanceIndices = %v, want [1]", res.InstanceIndices)
		}
		if !reflect.DeepEqual(res.PotentialInstanceIndices, []int{0, 2}) {
			t.Errorf("PotentialInstanceIndices = %v, want [0 2]", res.PotentialInstanceIndices)
		}
	})

	t.Run("out of range decision", func(t *testing.T) {
		r := build(t, decls)
		if _, err := r.ResolveDecision(9, nil); !errors.Is(err, types.ErrIntegrity) {
			t.Errorf("ResolveDecision(9) error = %v, want ErrIntegrity", err)
		}
	})
}

func TestResolveAllResourceCandidates_Ranking(t *testing.T) {
	r := build(t, []types.CandidateDecl{
		{ID: "title", JSON: map[string]any{"v": "base"}},
		{ID: "title", JSON: map[string]any{"v": "en"}, Conditions: types.ConditionDecls{{Qualifier: "language", Value: "en"}}},
		{ID: "title", JSON: map[string]any{"v": "en-GB"}, Conditions: types.ConditionDecls{{Qualifier: "language", Value: "en-GB"}}},
		{ID: "title", JSON: map[string]any{"v": "gb"}, Conditions: types.ConditionDecls{{Qualifier: "territory", Value: "GB"}}},
	})
	all, err := r.ResolveAllResourceCandidates("title", ctxtoken.Context{"language": "en-GB", "territory": "GB"})
	if err != nil {
		t.Fatalf("ResolveAllResourceCandidates() error = %v, want nil", err)
	}
	var got []int
	for _, m := range all {
		got = append(got, m.Index)
	}
	// Perfect matches by priority (territory 700 over language 600), then
	// the 0.9 region fallback.
	if want := []int{3, 2, 0, 1}; !reflect.DeepEqual(got, want) {
		t.Errorf("ranked indices = %v, want %v", got, want)
	}
}

// Property-based test: priority ordering
func TestResolveAllResourceCandidates_PropertyPriority(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("higher priority ranks first regardless of position", prop.ForAll(
		func(pa, pb int, swap bool) bool {
			if pa == pb {
				return true
			}
			a := types.CandidateDecl{ID: "r", JSON: map[string]any{"v": "a"}, Conditions: types.ConditionDecls{
				{Qualifier: "platform", Value: "ios", Priority: intPtr(pa)},
			}}
			b := types.CandidateDecl{ID: "r", JSON: map[string]any{"v": "b"}, Conditions: types.ConditionDecls{
				{Qualifier: "density", Value: "hd", Priority: intPtr(pb)},
			}}
			decls := []types.CandidateDecl{a, b}
			if swap {
				decls = []types.CandidateDecl{b, a}
			}
			m, err := resources.NewManager(types.DefaultSystemConfig())
			if err != nil || m.AddCandidates(decls) != nil {
				return false
			}
			r, err := FromManager(m)
			if err != nil {
				return false
			}
			all, err := r.ResolveAllResourceCandidates("r", ctxtoken.Context{"platform": "ios", "density": "hd"})
			if err != nil || len(all) != 2 {
				return false
			}
			want := "a"
			if pb > pa {
				want = "b"
			}
			return all[0].Value.(map[string]any)["v"] == want && all[0].Priority > all[1].Priority
		},
		gen.IntRange(1, 1000),
		gen.IntRange(1, 1000),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestResolveComposedResourceValue(t *testing.T) {
	r := build(t, []types.CandidateDecl{
		{ID: "button", JSON: map[string]any{"text": "OK", "style": map[string]any{"color": "red", "size": 12}}},
		{ID: "button", IsPartial: true, JSON: map[string]any{"style": map[string]any{"color": nil, "weight": "bold"}},
			Conditions: types.ConditionDecls{{Qualifier: "platform", Value: "ios"}}},
		{ID: "button", IsPartial: true, MergeMethod: types.MergeReplace, JSON: map[string]any{"style": map[string]any{"size": 16}},
			Conditions: types.ConditionDecls{{Qualifier: "density", Value: "hd"}}},
	})

	tests := []struct {
		name string
		ctx  ctxtoken.Context
		want map[string]any
	}{
		{"base only", ctxtoken.Context{}, map[string]any{"text": "OK", "style": map[string]any{"color": "red", "size": float64(12)}}},
		{"augment", ctxtoken.Context{"platform": "ios"}, map[string]any{"text": "OK", "style": map[string]any{"size": float64(12), "weight": "bold"}}},
		// replace applies first (lower priority), augment on top of it
		{"replace then augment", ctxtoken.Context{"platform": "ios", "density": "hd"}, map[string]any{"text": "OK", "style": map[string]any{"size": float64(16), "weight": "bold"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.ResolveComposedResourceValue("button", tt.ctx)
			if err != nil {
				t.Fatalf("ResolveComposedResourceValue() error = %v, want nil", err)
			}
			if !reflect.DeepEqual(got, any(tt.want)) {
				t.Errorf("ResolveComposedResourceValue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolveComposedResourceValue_TiedPartial(t *testing.T) {
	r := build(t, []types.CandidateDecl{
		{ID: "panel", JSON: map[string]any{"a": "base", "b": "base"},
			Conditions: types.ConditionDecls{{Qualifier: "platform", Value: "ios", Priority: intPtr(500)}}},
		{ID: "panel", IsPartial: true, JSON: map[string]any{"b": "delta"},
			Conditions: types.ConditionDecls{{Qualifier: "density", Value: "hd", Priority: intPtr(500)}}},
	})
	got, err := r.ResolveComposedResourceValue("panel", ctxtoken.Context{"platform": "ios", "density": "hd"})
	if err != nil {
		t.Fatalf("ResolveComposedResourceValue() error = %v, want nil", err)
	}
	want := map[string]any{"a": "base", "b": "delta"}
	if !reflect.DeepEqual(got, any(want)) {
		t.Errorf("ResolveComposedResourceValue() = %v, want %v", got, want)
	}
}

func TestCompose_EqualRankPartials(t *testing.T) {
	match := func(prio int, partial bool, v map[string]any) CandidateMatch {
		return CandidateMatch{Kind: conditions.KindMatch, Score: 1, Priority: prio,
			IsPartial: partial, MergeMethod: types.MergeAugment, Value: v}
	}
	got := Compose([]CandidateMatch{
		match(900, true, map[string]any{"c": "top"}),
		match(500, false, map[string]any{"a": "base", "b": "base", "c": "base"}),
		match(500, true, map[string]any{"b": "tied"}),
		match(100, true, map[string]any{"a": "below"}),
	})
	want := map[string]any{"a": "base", "b": "tied", "c": "top"}
	if !reflect.DeepEqual(got, any(want)) {
		t.Errorf("Compose() = %v, want %v", got, want)
	}
}

func TestCompose_PartialsOnly(t *testing.T) {
	got := Compose([]CandidateMatch{
		{IsPartial: true, MergeMethod: types.MergeAugment, Value: map[string]any{"a": float64(1)}},
		{IsPartial: true, MergeMethod: types.MergeAugment, Value: map[string]any{"a": float64(2), "b": true}},
	})
	want := map[string]any{"a": float64(1), "b": true}
	if !reflect.DeepEqual(got, any(want)) {
		t.Errorf("Compose() = %v, want %v", got, want)
	}
}

type countingMetrics struct {
	mu     sync.Mutex
	hits   map[string]int
	misses map[string]int
	resets int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{hits: map[string]int{}, misses: map[string]int{}}
}

func (m *countingMetrics) CacheHit(table string) {
	m.mu.Lock()
	m.hits[table]++
	m.mu.Unlock()
}

func (m *countingMetrics) CacheMiss(table string) {
	m.mu.Lock()
	m.misses[table]++
	m.mu.Unlock()
}

func (m *countingMetrics) CacheReset() {
	m.mu.Lock()
	m.resets++
	m.mu.Unlock()
}

func TestResolver_CacheAndReset(t *testing.T) {
	metrics := newCountingMetrics()
	r := build(t, greeting(), WithMetrics(metrics))
	ctx := ctxtoken.Context{"language": "fr"}

	for i := 0; i < 3; i++ {
		if _, err := r.ResolveResource("greeting", ctx); err != nil {
			t.Fatalf("ResolveResource() error = %v, want nil", err)
		}
	}
	if metrics.misses[TableDecision] != 1 || metrics.hits[TableDecision] != 2 {
		t.Errorf("decision misses/hits = %d/%d, want 1/2", metrics.misses[TableDecision], metrics.hits[TableDecision])
	}

	// Key order and token spelling share one signature after validation.
	if _, err := r.ResolveResource("greeting", ctxtoken.Context{"lang": "fr"}); err != nil {
		t.Fatalf("ResolveResource() error = %v, want nil", err)
	}
	if r.cache.size() != 1 {
		t.Errorf("cache size = %d, want 1", r.cache.size())
	}

	r.Reset()
	if r.cache.size() != 0 || metrics.resets != 1 {
		t.Errorf("after Reset size = %d, resets = %d, want 0, 1", r.cache.size(), metrics.resets)
	}
	if _, err := r.ResolveResource("greeting", ctx); err != nil {
		t.Fatalf("ResolveResource() error = %v, want nil", err)
	}
	if metrics.misses[TableDecision] != 2 {
		t.Errorf("decision misses after reset = %d, want 2", metrics.misses[TableDecision])
	}
}

func TestResolver_CacheBound(t *testing.T) {
	metrics := newCountingMetrics()
	r := build(t, greeting(), WithMetrics(metrics), WithMaxCachedContexts(2))
	for _, lang := range []string{"fr", "de", "en"} {
		if _, err := r.ResolveResource("greeting", ctxtoken.Context{"language": lang}); err != nil {
			t.Fatalf("ResolveResource(%s) error = %v, want nil", lang, err)
		}
	}
	if r.cache.size() != 1 || metrics.resets != 1 {
		t.Errorf("size = %d, resets = %d, want 1, 1", r.cache.size(), metrics.resets)
	}
}

func TestResolver_Concurrent(t *testing.T) {
	r := build(t, greeting(), WithPartialContextMatch(true))
	langs := []string{"fr", "de", "en", "es"}
	want := map[string]string{"fr": "Bonjour", "de": "Hello", "en": "Hello", "es": "Hello"}

	var wg sync.WaitGroup
	errs := make(chan string, 64)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			lang := langs[i%len(langs)]
			got, err := r.ResolveResource("greeting", ctxtoken.Context{"language": lang})
			if err != nil {
				errs <- err.Error()
				return
			}
			if text := got.Value.(map[string]any)["text"]; text != want[lang] {
				errs <- lang + ": " + text.(string)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}
}

func TestNew_RejectsCorruptCollection(t *testing.T) {
	r := build(t, greeting())
	c := *r.Collection()
	c.Conditions = nil
	if _, err := New(&c); !errors.Is(err, types.ErrIntegrity) {
		t.Errorf("New(corrupt) error = %v, want ErrIntegrity", err)
	}
}

func TestResolver_ParseContext(t *testing.T) {
	r := build(t, greeting())
	ctx, err := r.ParseContext("fr-CA|platform=ios")
	if err != nil {
		t.Fatalf("ParseContext() error = %v, want nil", err)
	}
	want := ctxtoken.Context{"language": "fr-CA", "platform": "ios"}
	if !ctx.Equal(want) {
		t.Errorf("ParseContext() = %v, want %v", ctx, want)
	}
}
