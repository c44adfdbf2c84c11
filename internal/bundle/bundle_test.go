package bundle

import (
	"bytes"
	"encoding/json"
	"errors"
	"math/rand"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/solatis/qualify/internal/compiled"
	"github.com/solatis/qualify/internal/ctxtoken"
	"github.com/solatis/qualify/internal/resources"
	"github.com/solatis/qualify/internal/types"
)

func decl(id, text string, conds ...string) types.CandidateDecl {
	d := types.CandidateDecl{ID: id, JSON: map[string]any{"text": text}}
	for i := 0; i+1 < len(conds); i += 2 {
		d.Conditions = append(d.Conditions, types.ConditionDecl{Qualifier: conds[i], Value: conds[i+1]})
	}
	return d
}

func sample() []types.CandidateDecl {
	partial := decl("menu.title", "Menu!", "platform", "ios")
	partial.IsPartial = true
	return []types.CandidateDecl{
		decl("greeting", "Hello"),
		decl("greeting", "Bonjour", "language", "fr"),
		decl("greeting", "Howdy", "language", "en", "territory", "US"),
		decl("farewell", "Bye"),
		decl("farewell", "Au revoir", "language", "fr"),
		decl("menu.title", "Menu"),
		partial,
		decl("menu.subtitle", "Hello"),
	}
}

func manager(t *testing.T, cfg *types.SystemConfig, decls []types.CandidateDecl) *resources.Manager {
	t.Helper()
	m, err := resources.NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager() error = %v, want nil", err)
	}
	if err := m.AddCandidates(decls); err != nil {
		t.Fatalf("AddCandidates() error = %v, want nil", err)
	}
	return m
}

func encode(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	return data
}

func fixedClock() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

func TestNormalize_SharesValues(t *testing.T) {
	c, err := Normalize(manager(t, types.DefaultSystemConfig(), sample()))
	if err != nil {
		t.Fatalf("Normalize() error = %v, want nil", err)
	}
	var ids []string
	for _, r := range c.Resources {
		ids = append(ids, r.ID)
	}
	if want := []string{"farewell", "greeting", "menu.subtitle", "menu.title"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("resource order = %v, want %v", ids, want)
	}
	// "Hello" appears twice but is stored once.
	if len(c.CandidateValues) != 7 {
		t.Errorf("len(CandidateValues) = %d, want 7", len(c.CandidateValues))
	}
	if c.Qualifiers[0].Name != "density" {
		t.Errorf("first qualifier = %s, want density", c.Qualifiers[0].Name)
	}
}

// shuffled returns cfg with qualifiers and types in a different order.
func shuffled(rng *rand.Rand) *types.SystemConfig {
	cfg := types.DefaultSystemConfig()
	rng.Shuffle(len(cfg.Qualifiers), func(i, j int) { cfg.Qualifiers[i], cfg.Qualifiers[j] = cfg.Qualifiers[j], cfg.Qualifiers[i] })
	rng.Shuffle(len(cfg.QualifierTypes), func(i, j int) {
		cfg.QualifierTypes[i], cfg.QualifierTypes[j] = cfg.QualifierTypes[j], cfg.QualifierTypes[i]
	})
	return cfg
}

// Property-based test: determinism
func TestNormalize_PropertyDeterministic(t *testing.T) {
	ref, err := Normalize(manager(t, types.DefaultSystemConfig(), sample()))
	if err != nil {
		t.Fatalf("Normalize() error = %v, want nil", err)
	}
	want := encode(t, ref)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("insertion order does not change normalized bytes", prop.ForAll(
		func(seed int64) bool {
			rng := rand.New(rand.NewSource(seed))
			decls := sample()
			rng.Shuffle(len(decls), func(i, j int) { decls[i], decls[j] = decls[j], decls[i] })
			m, err := resources.NewManager(shuffled(rng))
			if err != nil || m.AddCandidates(decls) != nil {
				return false
			}
			c, err := Normalize(m)
			if err != nil {
				return false
			}
			got, err := json.Marshal(c)
			return err == nil && bytes.Equal(got, want)
		},
		gen.Int64(),
	))

	properties.TestingRun(t)
}

func TestNormalize_DecisionMismatch(t *testing.T) {
	m := manager(t, types.DefaultSystemConfig(), sample())
	built := m.Resources()
	built[0].Candidates = built[0].Candidates[1:]
	_, err := NormalizeResources(m, built)
	if !errors.Is(err, types.ErrDecisionMismatch) || !errors.Is(err, types.ErrIntegrity) {
		t.Errorf("NormalizeResources() error = %v, want ErrDecisionMismatch", err)
	}
}

func TestNormalize_LeavesManagerUntouched(t *testing.T) {
	m := manager(t, types.DefaultSystemConfig(), sample())
	before, err := m.CompiledCollection(resources.CompileOptions{})
	if err != nil {
		t.Fatalf("CompiledCollection() error = %v, want nil", err)
	}
	if _, err := Normalize(m); err != nil {
		t.Fatalf("Normalize() error = %v, want nil", err)
	}
	after, _ := m.CompiledCollection(resources.CompileOptions{})
	if !bytes.Equal(encode(t, before), encode(t, after)) {
		t.Errorf("Normalize() changed the manager")
	}
}

func TestBuildLoad_RoundTrip(t *testing.T) {
	m := manager(t, types.DefaultSystemConfig(), sample())
	b, err := Build(m, Options{Version: "1.2.0", Description: "test", Clock: fixedClock})
	if err != nil {
		t.Fatalf("Build() error = %v, want nil", err)
	}
	if b.Metadata.Type != TypeBundle || !b.Metadata.Normalized || len(b.Metadata.Checksum) != 8 {
		t.Errorf("Metadata = %+v", b.Metadata)
	}
	if b.Config.Name != "default" {
		t.Errorf("Config.Name = %q, want default", b.Config.Name)
	}

	data, err := Marshal(b)
	if err != nil {
		t.Fatalf("Marshal() error = %v, want nil", err)
	}
	loaded, err := Load(data)
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}
	if !loaded.Metadata.ExportedAt.Equal(fixedClock()) {
		t.Errorf("ExportedAt = %v, want %v", loaded.Metadata.ExportedAt, fixedClock())
	}

	rebuilt, err := Manager(loaded)
	if err != nil {
		t.Fatalf("Manager() error = %v, want nil", err)
	}
	again, err := Normalize(rebuilt)
	if err != nil {
		t.Fatalf("Normalize() error = %v, want nil", err)
	}
	if !bytes.Equal(encode(t, again), encode(t, &b.Collection)) {
		t.Errorf("normalize(manager(bundle)) differs from bundle")
	}
}

func TestLoad_Rejects(t *testing.T) {
	b, err := Build(manager(t, types.DefaultSystemConfig(), sample()), Options{Clock: fixedClock})
	if err != nil {
		t.Fatalf("Build() error = %v, want nil", err)
	}
	data, _ := Marshal(b)

	tampered := strings.Replace(string(data), "Bonjour", "Salut", 1)
	if _, err := Load([]byte(tampered)); !errors.Is(err, types.ErrInvalidBundle) {
		t.Errorf("Load(tampered) error = %v, want ErrInvalidBundle", err)
	}

	broken := *b
	broken.Resources = append([]compiled.Resource(nil), b.Resources...)
	broken.Resources[0].Decision = 99
	data, _ = json.Marshal(&broken)
	if _, err := Load(data); !errors.Is(err, types.ErrIntegrity) {
		t.Errorf("Load(bad index) error = %v, want ErrIntegrity", err)
	}

	if _, err := Load([]byte("{")); !errors.Is(err, types.ErrInvalidBundle) {
		t.Errorf("Load(garbage) error = %v, want ErrInvalidBundle", err)
	}
}

func TestLoad_IgnoresUnknownMetadata(t *testing.T) {
	b, _ := Build(manager(t, types.DefaultSystemConfig(), sample()), Options{Clock: fixedClock})
	data, _ := Marshal(b)
	withExtra := strings.Replace(string(data), `"metadata": {`, `"metadata": {"generator": "v9",`, 1)
	if _, err := Load([]byte(withExtra)); err != nil {
		t.Errorf("Load(extra metadata) error = %v, want nil", err)
	}
}

func TestBuild_Filtered(t *testing.T) {
	m := manager(t, types.DefaultSystemConfig(), sample())
	b, err := Build(m, Options{FilterContext: ctxtoken.Context{"lang": "fr"}, ReduceQualifiers: true, Clock: fixedClock})
	if err != nil {
		t.Fatalf("Build() error = %v, want nil", err)
	}
	if b.Metadata.Type != TypeFiltered {
		t.Errorf("Type = %s, want filtered", b.Metadata.Type)
	}
	if want := (ctxtoken.Context{"language": "fr"}); !b.Metadata.FilterContext.Equal(want) {
		t.Errorf("FilterContext = %v, want %v", b.Metadata.FilterContext, want)
	}
	i, ok := b.ResourceIndex("greeting")
	if !ok {
		t.Fatalf("greeting missing from filtered bundle")
	}
	// Hello and Bonjour collide once language=fr is reduced away; the
	// en-US candidate cannot match.
	if n := len(b.Resources[i].Candidates); n != 1 {
		t.Errorf("greeting has %d candidates, want 1", n)
	}

	plain, err := Build(m, Options{Type: TypePlain, Clock: fixedClock})
	if err != nil {
		t.Fatalf("Build(plain) error = %v, want nil", err)
	}
	if plain.Metadata.Normalized || plain.Resources[0].ID != "greeting" {
		t.Errorf("plain bundle = %+v, want declaration order, not normalized", plain.Metadata)
	}
	if _, err := Build(m, Options{Type: "zip"}); !errors.Is(err, types.ErrValidation) {
		t.Errorf("Build(zip) error = %v, want ErrValidation", err)
	}
}
