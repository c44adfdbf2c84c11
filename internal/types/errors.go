package types

import "errors"

// Sentinel errors for Qualify operations.
// Callers test with errors.Is; wrapped errors carry the offending name or index.
var (
	// ErrValidation indicates a qualifier value, token or declaration is malformed.
	ErrValidation = errors.New("validation failed")

	// ErrUnknownQualifier indicates a name or token matches no registered qualifier.
	ErrUnknownQualifier = errors.New("unknown qualifier")

	// ErrAmbiguousQualifier indicates a name, token or bare value matches more than one qualifier.
	ErrAmbiguousQualifier = errors.New("ambiguous qualifier")

	// ErrDuplicateQualifier indicates the same qualifier appears twice where one is allowed.
	ErrDuplicateQualifier = errors.New("duplicate qualifier")

	// ErrUnknownQualifierType indicates a qualifier references an undeclared type.
	ErrUnknownQualifierType = errors.New("unknown qualifier type")

	// ErrUnknownResourceType indicates a resource references an undeclared resource type.
	ErrUnknownResourceType = errors.New("unknown resource type")

	// ErrUnsupportedTokenChar indicates a context value contains '=' or '|'.
	// The token syntax defines no escaping, so such values are rejected.
	ErrUnsupportedTokenChar = errors.New("value contains reserved token character")

	// ErrInvalidValue indicates a value rejected by its qualifier type.
	ErrInvalidValue = errors.New("invalid qualifier value")

	// ErrInvalidOperator indicates an unknown condition operator.
	ErrInvalidOperator = errors.New("invalid condition operator")

	// ErrInvalidResourceID indicates a resource id that is not a dotted key.
	ErrInvalidResourceID = errors.New("invalid resource id")

	// ErrInvalidMergeMethod indicates a merge method other than replace or augment.
	ErrInvalidMergeMethod = errors.New("invalid merge method")

	// ErrTooManyConditions indicates a condition set exceeds MaxConditionsPerSet.
	ErrTooManyConditions = errors.New("condition set has too many conditions")

	// ErrResourceNotFound indicates an unknown resource id.
	ErrResourceNotFound = errors.New("resource not found")

	// ErrIntegrity indicates a compiled collection references an out-of-range index.
	// Fatal for that collection: it must be recompiled, not patched.
	ErrIntegrity = errors.New("compiled collection integrity error")

	// ErrNoMatch indicates no candidate matches the context.
	ErrNoMatch = errors.New("no matching candidate")

	// ErrCandidateConflict indicates two candidates of one resource share conditions but differ in value.
	ErrCandidateConflict = errors.New("conflicting candidates")

	// ErrDecisionMismatch indicates a decision and its resource disagree on candidate count.
	ErrDecisionMismatch = errors.New("decision does not match candidates")

	// ErrInvalidBundle indicates bundle JSON that cannot be decoded or fails its checksum.
	ErrInvalidBundle = errors.New("invalid bundle")

	// ErrBundleNotFound indicates an unknown bundle id or name in the store.
	ErrBundleNotFound = errors.New("bundle not found")

	// ErrAPIKeyNotFound indicates no stored API key has the given id or hash.
	ErrAPIKeyNotFound = errors.New("api key not found")
)
