package qualifiers

import (
	"errors"
	"math"
	"testing"

	"github.com/solatis/qualify/internal/types"
)

func TestLanguageType_Match(t *testing.T) {
	lt, err := NewType(types.QualifierTypeDecl{Name: "language", SystemType: types.SystemTypeLanguage, AllowContextList: true})
	if err != nil {
		t.Fatalf("NewType() error = %v, want nil", err)
	}

	tests := []struct {
		name string
		cond string
		ctx  string
		want Score
	}{
		{"exact", "fr", "fr", PerfectMatch},
		{"exact with region", "en-US", "en-US", PerfectMatch},
		{"bare condition", "fr", "fr-CA", languageScoreBaseCondition},
		{"bare context", "fr-CA", "fr", languageScoreBaseContext},
		{"other region", "en-US", "en-GB", languageScoreOtherRegion},
		{"different language", "en", "de", NoMatch},
		{"script mismatch", "zh-Hans", "zh-Hant", NoMatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond, err := lt.ValidateConditionValue(tt.cond)
			if err != nil {
				t.Fatalf("ValidateConditionValue(%q) error = %v", tt.cond, err)
			}
			ctx, err := lt.ValidateContextValue(tt.ctx)
			if err != nil {
				t.Fatalf("ValidateContextValue(%q) error = %v", tt.ctx, err)
			}
			if got := lt.Match(cond, ctx); got != tt.want {
				t.Errorf("Match(%q, %q) = %v, want %v", cond, ctx, got, tt.want)
			}
		})
	}
}

func TestLanguageType_Canonicalizes(t *testing.T) {
	lt, _ := NewType(types.QualifierTypeDecl{Name: "language", SystemType: types.SystemTypeLanguage})
	got, err := lt.ValidateContextValue("EN-us")
	if err != nil {
		t.Fatalf("ValidateContextValue() error = %v, want nil", err)
	}
	if got != "en-US" {
		t.Errorf("ValidateContextValue() = %q, want en-US", got)
	}
	if _, err := lt.ValidateContextValue("not a tag!"); !errors.Is(err, types.ErrInvalidValue) {
		t.Errorf("ValidateContextValue(invalid) error = %v, want ErrInvalidValue", err)
	}
}

func TestLanguageType_ContextList(t *testing.T) {
	lt, _ := NewType(types.QualifierTypeDecl{Name: "language", SystemType: types.SystemTypeLanguage, AllowContextList: true})
	ctx, err := lt.ValidateContextValue("de, fr")
	if err != nil {
		t.Fatalf("ValidateContextValue() error = %v, want nil", err)
	}
	if ctx != "de,fr" {
		t.Errorf("ValidateContextValue() = %q, want de,fr", ctx)
	}
	if got := lt.Match("de", ctx); got != PerfectMatch {
		t.Errorf("Match(de) = %v, want 1", got)
	}
	if got := lt.Match("fr", ctx); got != Score(listDecay) {
		t.Errorf("Match(fr) = %v, want %v", got, listDecay)
	}

	single, _ := NewType(types.QualifierTypeDecl{Name: "single", SystemType: types.SystemTypeLanguage})
	if _, err := single.ValidateContextValue("de,fr"); !errors.Is(err, types.ErrInvalidValue) {
		t.Errorf("ValidateContextValue(list) without lists error = %v, want ErrInvalidValue", err)
	}
}

func TestTerritoryType(t *testing.T) {
	tt, err := NewType(types.QualifierTypeDecl{Name: "territory", SystemType: types.SystemTypeTerritory})
	if err != nil {
		t.Fatalf("NewType() error = %v, want nil", err)
	}
	us, err := tt.ValidateContextValue("us")
	if err != nil {
		t.Fatalf("ValidateContextValue() error = %v, want nil", err)
	}
	if us != "US" {
		t.Errorf("ValidateContextValue(us) = %q, want US", us)
	}
	if got := tt.Match("US", "US"); got != PerfectMatch {
		t.Errorf("Match(US, US) = %v, want 1", got)
	}
	if got := tt.Match("US", "CA"); got != NoMatch {
		t.Errorf("Match(US, CA) = %v, want 0", got)
	}
	if got := tt.Match("419", "MX"); got != territoryScoreContained {
		t.Errorf("Match(419, MX) = %v, want %v", got, territoryScoreContained)
	}

	restricted, err := NewType(types.QualifierTypeDecl{Name: "t", SystemType: types.SystemTypeTerritory, AllowedTerritories: []string{"US", "CA"}})
	if err != nil {
		t.Fatalf("NewType() error = %v, want nil", err)
	}
	if _, err := restricted.ValidateContextValue("FR"); !errors.Is(err, types.ErrInvalidValue) {
		t.Errorf("ValidateContextValue(FR) error = %v, want ErrInvalidValue", err)
	}
}

func TestLiteralType(t *testing.T) {
	lt, err := NewType(types.QualifierTypeDecl{
		Name:             "platform",
		SystemType:       types.SystemTypeLiteral,
		EnumeratedValues: []string{"ios", "android", "mobile", "any"},
		Hierarchy:        map[string]string{"ios": "mobile", "android": "mobile", "mobile": "any"},
	})
	if err != nil {
		t.Fatalf("NewType() error = %v, want nil", err)
	}

	got, err := lt.ValidateContextValue("iOS")
	if err != nil {
		t.Fatalf("ValidateContextValue() error = %v, want nil", err)
	}
	if got != "ios" {
		t.Errorf("ValidateContextValue(iOS) = %q, want ios", got)
	}
	if _, err := lt.ValidateContextValue("web"); !errors.Is(err, types.ErrInvalidValue) {
		t.Errorf("ValidateContextValue(web) error = %v, want ErrInvalidValue", err)
	}
	if s := lt.Match("ios", "ios"); s != PerfectMatch {
		t.Errorf("Match(ios, ios) = %v, want 1", s)
	}
	if s := lt.Match("mobile", "ios"); s != Score(hierarchyDecay) {
		t.Errorf("Match(mobile, ios) = %v, want %v", s, hierarchyDecay)
	}
	if s, want := lt.Match("any", "ios"), Score(math.Pow(hierarchyDecay, 2)); s != want {
		t.Errorf("Match(any, ios) = %v, want %v", s, want)
	}
	if s := lt.Match("ios", "mobile"); s != NoMatch {
		t.Errorf("Match(ios, mobile) = %v, want 0", s)
	}
	if s := lt.Match("android", "ios"); s != NoMatch {
		t.Errorf("Match(android, ios) = %v, want 0", s)
	}
}

func TestLiteralType_HierarchyCycle(t *testing.T) {
	_, err := NewType(types.QualifierTypeDecl{
		Name:       "loop",
		SystemType: types.SystemTypeLiteral,
		Hierarchy:  map[string]string{"a": "b", "b": "a"},
	})
	if !errors.Is(err, types.ErrValidation) {
		t.Errorf("NewType(cycle) error = %v, want ErrValidation", err)
	}
}

func TestBooleanType(t *testing.T) {
	bt, _ := NewType(types.QualifierTypeDecl{Name: "bool", SystemType: types.SystemTypeBoolean})
	v, err := bt.ValidateContextValue("TRUE")
	if err != nil || v != "true" {
		t.Errorf("ValidateContextValue(TRUE) = %q, %v, want true, nil", v, err)
	}
	if _, err := bt.ValidateContextValue("yes"); !errors.Is(err, types.ErrInvalidValue) {
		t.Errorf("ValidateContextValue(yes) error = %v, want ErrInvalidValue", err)
	}
	if bt.Match("true", "false") != NoMatch {
		t.Errorf("Match(true, false) != NoMatch")
	}
}

func TestValidate_RejectsTokenCharacters(t *testing.T) {
	sys := DefaultSystem()
	for _, q := range sys.Qualifiers.Values() {
		for _, v := range []string{"a=b", "a|b"} {
			if _, err := q.Type.ValidateContextValue(v); !errors.Is(err, types.ErrUnsupportedTokenChar) {
				t.Errorf("%s.ValidateContextValue(%q) error = %v, want ErrUnsupportedTokenChar", q.Name, v, err)
			}
			if _, err := q.Type.ValidateConditionValue(v); !errors.Is(err, types.ErrUnsupportedTokenChar) {
				t.Errorf("%s.ValidateConditionValue(%q) error = %v, want ErrUnsupportedTokenChar", q.Name, v, err)
			}
		}
	}
}

func TestNewType_UnknownSystemType(t *testing.T) {
	_, err := NewType(types.QualifierTypeDecl{Name: "x", SystemType: "color"})
	if !errors.Is(err, types.ErrUnknownQualifierType) {
		t.Errorf("NewType() error = %v, want ErrUnknownQualifierType", err)
	}
}

func TestRegistry_Get(t *testing.T) {
	sys := DefaultSystem()
	reg := sys.Qualifiers

	byName, err := reg.Get("language")
	if err != nil {
		t.Fatalf("Get(language) error = %v, want nil", err)
	}
	byToken, err := reg.Get("lang")
	if err != nil {
		t.Fatalf("Get(lang) error = %v, want nil", err)
	}
	if byName != byToken {
		t.Errorf("Get(language) and Get(lang) returned different qualifiers")
	}
	if _, err := reg.Get("colour"); !errors.Is(err, types.ErrUnknownQualifier) {
		t.Errorf("Get(colour) error = %v, want ErrUnknownQualifier", err)
	}
	if got := len(reg.Values()); got != 4 {
		t.Errorf("len(Values()) = %d, want 4", got)
	}
	if _, err := reg.At(99); !errors.Is(err, types.ErrIntegrity) {
		t.Errorf("At(99) error = %v, want ErrIntegrity", err)
	}
}

func TestRegistry_Ambiguous(t *testing.T) {
	lit, _ := NewType(types.QualifierTypeDecl{Name: "literal", SystemType: types.SystemTypeLiteral})
	reg := NewRegistry()
	if _, err := reg.Add(types.QualifierDecl{Name: "device", Type: "literal"}, lit); err != nil {
		t.Fatalf("Add(device) error = %v", err)
	}
	if _, err := reg.Add(types.QualifierDecl{Name: "form", Token: "device", Type: "literal"}, lit); err != nil {
		t.Fatalf("Add(form) error = %v", err)
	}
	if _, err := reg.Get("device"); !errors.Is(err, types.ErrAmbiguousQualifier) {
		t.Errorf("Get(device) error = %v, want ErrAmbiguousQualifier", err)
	}
	if _, err := reg.Add(types.QualifierDecl{Name: "device", Type: "literal"}, lit); !errors.Is(err, types.ErrDuplicateQualifier) {
		t.Errorf("Add(duplicate name) error = %v, want ErrDuplicateQualifier", err)
	}
	if _, err := reg.Add(types.QualifierDecl{Name: "other", Token: "device", Type: "literal"}, lit); !errors.Is(err, types.ErrDuplicateQualifier) {
		t.Errorf("Add(duplicate token) error = %v, want ErrDuplicateQualifier", err)
	}
}

func TestNewSystem_UnknownType(t *testing.T) {
	cfg := &types.SystemConfig{
		Qualifiers: []types.QualifierDecl{{Name: "language", Type: "missing"}},
	}
	if _, err := NewSystem(cfg); !errors.Is(err, types.ErrUnknownQualifierType) {
		t.Errorf("NewSystem() error = %v, want ErrUnknownQualifierType", err)
	}
}
