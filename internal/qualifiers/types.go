// internal/qualifiers/types.go
package qualifiers

import (
	"fmt"
	"math"
	"strings"

	"github.com/solatis/qualify/internal/types"
)

/*
 * Qualifier types.
 *
 * A qualifier type validates raw strings into canonical values and scores a
 * condition value against a context value. The set of types is closed:
 * LiteralType, BooleanType, LanguageType and TerritoryType implement the
 * unexported sealed() method, so new types are added here, not by callers.
 *
 * Validation returns the canonical spelling (lower-cased literal, BCP-47
 * canonical language tag, upper-case region). Both condition values and
 * context values are canonicalized, so Match compares canonical strings.
 *
 * Context lists: types created with AllowContextList accept comma-separated
 * context values ("fr-CA,fr,en"). Item i scores score*0.9^i and the best
 * item wins, so earlier preferences dominate without excluding later ones.
 * Condition values are always single.
 */

// Score is a match score in [0,1]. Zero is no match.
type Score float64

const (
	NoMatch      Score = 0
	PerfectMatch Score = 1
)

// listDecay is the per-position penalty applied to context list items.
const listDecay = 0.9

// QualifierType validates and compares values of one qualifier dimension.
type QualifierType interface {
	// Name is the declared type name referenced by qualifiers.
	Name() string
	// SystemType is one of the types.SystemType* constants.
	SystemType() string
	// ValidateConditionValue returns the canonical form of a condition value.
	ValidateConditionValue(value string) (string, error)
	// ValidateContextValue returns the canonical form of a context value.
	ValidateContextValue(value string) (string, error)
	// Match scores a canonical condition value against a canonical context value.
	Match(conditionValue, contextValue string) Score
	// Decl returns the declaration this type was built from.
	Decl() types.QualifierTypeDecl

	sealed()
}

// NewType builds a qualifier type from its declaration.
func NewType(decl types.QualifierTypeDecl) (QualifierType, error) {
	if err := validateName(decl.Name); err != nil {
		return nil, fmt.Errorf("qualifier type: %w", err)
	}
	switch decl.SystemType {
	case types.SystemTypeLiteral:
		return newLiteralType(decl)
	case types.SystemTypeBoolean:
		return &BooleanType{decl: decl}, nil
	case types.SystemTypeLanguage:
		return &LanguageType{decl: decl}, nil
	case types.SystemTypeTerritory:
		return newTerritoryType(decl)
	default:
		return nil, fmt.Errorf("%w: %q has system type %q", types.ErrUnknownQualifierType, decl.Name, decl.SystemType)
	}
}

// checkTokenChars rejects values that cannot round-trip through a context token.
func checkTokenChars(value string) error {
	if strings.ContainsAny(value, types.TokenSeparator+types.TokenValueSeparator) {
		return fmt.Errorf("%w: %q", types.ErrUnsupportedTokenChar, value)
	}
	return nil
}

// validateContextList canonicalizes a context value that may be a list.
func validateContextList(value string, allowList bool, single func(string) (string, error)) (string, error) {
	if err := checkTokenChars(value); err != nil {
		return "", err
	}
	if !strings.Contains(value, types.ContextListSeparator) {
		return single(value)
	}
	if !allowList {
		return "", fmt.Errorf("%w: %q is a list", types.ErrInvalidValue, value)
	}
	items := strings.Split(value, types.ContextListSeparator)
	if len(items) > types.MaxContextListItems {
		return "", fmt.Errorf("%w: %q has more than %d items", types.ErrInvalidValue, value, types.MaxContextListItems)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		v, err := single(item)
		if err != nil {
			return "", err
		}
		out = append(out, v)
	}
	return strings.Join(out, types.ContextListSeparator), nil
}

// matchList applies single to each context list item with positional decay.
func matchList(conditionValue, contextValue string, single func(cond, ctx string) Score) Score {
	if !strings.Contains(contextValue, types.ContextListSeparator) {
		return single(conditionValue, contextValue)
	}
	best := NoMatch
	for i, item := range strings.Split(contextValue, types.ContextListSeparator) {
		s := Score(float64(single(conditionValue, item)) * math.Pow(listDecay, float64(i)))
		if s > best {
			best = s
		}
	}
	return best
}

// validateName checks qualifier and type names: non-empty identifiers.
func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", types.ErrValidation)
	}
	for _, c := range name {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' || c == '-') {
			return fmt.Errorf("%w: name %q contains %q", types.ErrValidation, name, c)
		}
	}
	return nil
}
