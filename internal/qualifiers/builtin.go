package qualifiers

import (
	"fmt"
	"strings"

	"github.com/solatis/qualify/internal/types"
	"golang.org/x/text/language"
)

// BooleanType accepts "true" and "false" in any case.
type BooleanType struct {
	decl types.QualifierTypeDecl
}

func (t *BooleanType) Name() string                  { return t.decl.Name }
func (t *BooleanType) SystemType() string            { return types.SystemTypeBoolean }
func (t *BooleanType) Decl() types.QualifierTypeDecl { return t.decl }
func (t *BooleanType) sealed()                       {}

func (t *BooleanType) validate(value string) (string, error) {
	switch v := strings.ToLower(strings.TrimSpace(value)); v {
	case "true", "false":
		return v, nil
	default:
		if err := checkTokenChars(value); err != nil {
			return "", err
		}
		return "", fmt.Errorf("%w: %s: %q is not a boolean", types.ErrInvalidValue, t.decl.Name, value)
	}
}

// ValidateConditionValue implements QualifierType.
func (t *BooleanType) ValidateConditionValue(value string) (string, error) { return t.validate(value) }

// ValidateContextValue implements QualifierType.
func (t *BooleanType) ValidateContextValue(value string) (string, error) { return t.validate(value) }

// Match implements QualifierType.
func (t *BooleanType) Match(conditionValue, contextValue string) Score {
	if conditionValue == contextValue {
		return PerfectMatch
	}
	return NoMatch
}

// Language match scores for tags sharing a base language.
const (
	languageScoreBaseCondition = 0.9 // condition "fr", context "fr-CA"
	languageScoreSameRegion    = 0.8 // same region, differing script or variant
	languageScoreBaseContext   = 0.6 // condition "fr-CA", context "fr"
	languageScoreOtherRegion   = 0.3 // condition "en-US", context "en-GB"
)

// LanguageType accepts BCP-47 language tags and scores partial matches.
type LanguageType struct {
	decl types.QualifierTypeDecl
}

func (t *LanguageType) Name() string                  { return t.decl.Name }
func (t *LanguageType) SystemType() string            { return types.SystemTypeLanguage }
func (t *LanguageType) Decl() types.QualifierTypeDecl { return t.decl }
func (t *LanguageType) sealed()                       {}

func (t *LanguageType) validateSingle(value string) (string, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "", fmt.Errorf("%w: %s: empty language tag", types.ErrInvalidValue, t.decl.Name)
	}
	tag, err := language.Parse(v)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %q: %v", types.ErrInvalidValue, t.decl.Name, value, err)
	}
	return tag.String(), nil
}

// ValidateConditionValue implements QualifierType.
func (t *LanguageType) ValidateConditionValue(value string) (string, error) {
	if err := checkTokenChars(value); err != nil {
		return "", err
	}
	return t.validateSingle(value)
}

// ValidateContextValue implements QualifierType.
func (t *LanguageType) ValidateContextValue(value string) (string, error) {
	return validateContextList(value, t.decl.AllowContextList, t.validateSingle)
}

// Match implements QualifierType.
func (t *LanguageType) Match(conditionValue, contextValue string) Score {
	return matchList(conditionValue, contextValue, matchLanguage)
}

func matchLanguage(conditionValue, contextValue string) Score {
	if conditionValue == contextValue {
		return PerfectMatch
	}
	cond, err := language.Parse(conditionValue)
	if err != nil {
		return NoMatch
	}
	ctx, err := language.Parse(contextValue)
	if err != nil {
		return NoMatch
	}
	if cond.String() == ctx.String() {
		return PerfectMatch
	}

	condBase, _ := cond.Base()
	ctxBase, _ := ctx.Base()
	if condBase != ctxBase {
		return NoMatch
	}

	// Only explicitly written scripts can conflict; inferred ones are guesses.
	condScript, condScriptConf := cond.Script()
	ctxScript, ctxScriptConf := ctx.Script()
	if condScriptConf == language.Exact && ctxScriptConf == language.Exact && condScript != ctxScript {
		return NoMatch
	}

	condRegion, condRegionConf := cond.Region()
	ctxRegion, ctxRegionConf := ctx.Region()
	switch {
	case condRegionConf != language.Exact:
		return languageScoreBaseCondition
	case ctxRegionConf != language.Exact:
		return languageScoreBaseContext
	case condRegion == ctxRegion:
		return languageScoreSameRegion
	default:
		return languageScoreOtherRegion
	}
}

// territoryScoreContained scores a condition region that contains the context
// region, such as 419 (Latin America) for MX.
const territoryScoreContained = 0.8

// TerritoryType accepts ISO 3166-1 alpha-2 and UN M.49 region codes.
type TerritoryType struct {
	decl    types.QualifierTypeDecl
	allowed map[string]bool
}

func newTerritoryType(decl types.QualifierTypeDecl) (*TerritoryType, error) {
	t := &TerritoryType{decl: decl}
	if len(decl.AllowedTerritories) > 0 {
		t.allowed = make(map[string]bool, len(decl.AllowedTerritories))
		for _, v := range decl.AllowedTerritories {
			r, err := language.ParseRegion(strings.ToUpper(strings.TrimSpace(v)))
			if err != nil {
				return nil, fmt.Errorf("%w: %s: allowed territory %q: %v", types.ErrValidation, decl.Name, v, err)
			}
			t.allowed[r.String()] = true
		}
	}
	return t, nil
}

func (t *TerritoryType) Name() string                  { return t.decl.Name }
func (t *TerritoryType) SystemType() string            { return types.SystemTypeTerritory }
func (t *TerritoryType) Decl() types.QualifierTypeDecl { return t.decl }
func (t *TerritoryType) sealed()                       {}

func (t *TerritoryType) validateSingle(value string) (string, error) {
	v := strings.ToUpper(strings.TrimSpace(value))
	if v == "" {
		return "", fmt.Errorf("%w: %s: empty territory", types.ErrInvalidValue, t.decl.Name)
	}
	r, err := language.ParseRegion(v)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %q: %v", types.ErrInvalidValue, t.decl.Name, value, err)
	}
	canonical := r.String()
	if t.allowed != nil && !t.allowed[canonical] {
		return "", fmt.Errorf("%w: %s: %q is not an allowed territory", types.ErrInvalidValue, t.decl.Name, canonical)
	}
	return canonical, nil
}

// ValidateConditionValue implements QualifierType.
func (t *TerritoryType) ValidateConditionValue(value string) (string, error) {
	if err := checkTokenChars(value); err != nil {
		return "", err
	}
	return t.validateSingle(value)
}

// ValidateContextValue implements QualifierType.
func (t *TerritoryType) ValidateContextValue(value string) (string, error) {
	return validateContextList(value, t.decl.AllowContextList, t.validateSingle)
}

// Match implements QualifierType.
func (t *TerritoryType) Match(conditionValue, contextValue string) Score {
	return matchList(conditionValue, contextValue, func(cond, ctx string) Score {
		if cond == ctx {
			return PerfectMatch
		}
		condRegion, err := language.ParseRegion(cond)
		if err != nil {
			return NoMatch
		}
		ctxRegion, err := language.ParseRegion(ctx)
		if err != nil {
			return NoMatch
		}
		if condRegion.Contains(ctxRegion) {
			return territoryScoreContained
		}
		return NoMatch
	})
}
