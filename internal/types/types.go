// Package types provides domain models shared across Qualify components.
//
// Declarations (declarations.go) are the builder-side input: qualifier types,
// qualifiers, resource types and candidates as written by hosts or decoded
// from YAML/JSON. They carry no behavior; internal/qualifiers and
// internal/resources turn them into validated runtime objects.
package types

// BundleID represents a UUIDv7 bundle identifier.
// String alias enables type safety while maintaining JSON string serialization.
type BundleID string

// APIKeyID represents a UUIDv7 API key identifier.
type APIKeyID string

// ResourceID is a dotted hierarchical resource key such as "app.home.title".
type ResourceID string

// String returns the key.
func (id ResourceID) String() string { return string(id) }

// Merge methods for partial candidates.
const (
	MergeReplace = "replace"
	MergeAugment = "augment"
)

// Condition operators.
const (
	OperatorMatches = "matches"
	OperatorAlways  = "always"
	OperatorNever   = "never"
)

// Qualifier type system names.
const (
	SystemTypeLiteral   = "literal"
	SystemTypeBoolean   = "boolean"
	SystemTypeLanguage  = "language"
	SystemTypeTerritory = "territory"
)

// ResourceSystemTypeJSON is the only resource system type: JSON object values.
const ResourceSystemTypeJSON = "json"

// Context token separators.
const (
	TokenSeparator       = "|"
	TokenValueSeparator  = "="
	ContextListSeparator = ","
)

// Limits enforced during compilation to bound resolution cost.
const (
	// MaxConditionsPerSet bounds AND-group width; one condition per qualifier
	// means this also caps the number of qualifiers a candidate can test.
	MaxConditionsPerSet = 32

	// MaxResourceIDDepth bounds dotted key depth.
	MaxResourceIDDepth = 16

	// MaxResourceIDLength bounds resource key length.
	MaxResourceIDLength = 512

	// MaxContextTokenLength bounds a whole context token.
	MaxContextTokenLength = 4096

	// MaxContextListItems bounds comma-separated context preference lists.
	MaxContextListItems = 16
)
