package qualifiers

import (
	"fmt"

	"github.com/solatis/qualify/internal/types"
)

// Qualifier is a named, typed dimension of runtime context.
// Immutable once added to a Registry; Index is its position there.
type Qualifier struct {
	Name            string
	Token           string
	Type            QualifierType
	DefaultPriority int
	TokenIsOptional bool
	Index           int
}

// Decl returns the declaration form of the qualifier.
func (q *Qualifier) Decl() types.QualifierDecl {
	return types.QualifierDecl{
		Name:            q.Name,
		Token:           q.Token,
		Type:            q.Type.Name(),
		DefaultPriority: q.DefaultPriority,
		TokenIsOptional: q.TokenIsOptional,
	}
}

// Registry holds qualifiers in declaration order with lookup by name or token.
// Not safe for concurrent mutation; build once, then share read-only.
type Registry struct {
	qualifiers []*Qualifier
	byName     map[string]*Qualifier
	byToken    map[string]*Qualifier
}

// NewRegistry creates an empty qualifier registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:  make(map[string]*Qualifier),
		byToken: make(map[string]*Qualifier),
	}
}

// Add registers a qualifier of type t.
// Names and tokens must each be unique; a token may coincide with another
// qualifier's name, which makes that string ambiguous for Get.
func (r *Registry) Add(decl types.QualifierDecl, t QualifierType) (*Qualifier, error) {
	if err := validateName(decl.Name); err != nil {
		return nil, fmt.Errorf("qualifier: %w", err)
	}
	if t == nil {
		return nil, fmt.Errorf("%w: qualifier %q has no type", types.ErrUnknownQualifierType, decl.Name)
	}
	if _, exists := r.byName[decl.Name]; exists {
		return nil, fmt.Errorf("%w: name %q", types.ErrDuplicateQualifier, decl.Name)
	}
	if decl.Token != "" {
		if err := validateName(decl.Token); err != nil {
			return nil, fmt.Errorf("qualifier %q token: %w", decl.Name, err)
		}
		if _, exists := r.byToken[decl.Token]; exists {
			return nil, fmt.Errorf("%w: token %q", types.ErrDuplicateQualifier, decl.Token)
		}
	}

	q := &Qualifier{
		Name:            decl.Name,
		Token:           decl.Token,
		Type:            t,
		DefaultPriority: decl.DefaultPriority,
		TokenIsOptional: decl.TokenIsOptional,
		Index:           len(r.qualifiers),
	}
	r.qualifiers = append(r.qualifiers, q)
	r.byName[q.Name] = q
	if q.Token != "" {
		r.byToken[q.Token] = q
	}
	return q, nil
}

// Get looks up a qualifier by declared name or token.
func (r *Registry) Get(nameOrToken string) (*Qualifier, error) {
	byName, nameOK := r.byName[nameOrToken]
	byToken, tokenOK := r.byToken[nameOrToken]
	switch {
	case nameOK && tokenOK && byName != byToken:
		return nil, fmt.Errorf("%w: %q is the name of %s and the token of %s",
			types.ErrAmbiguousQualifier, nameOrToken, byName.Name, byToken.Name)
	case nameOK:
		return byName, nil
	case tokenOK:
		return byToken, nil
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownQualifier, nameOrToken)
	}
}

// At returns the qualifier at index, validating bounds.
func (r *Registry) At(index int) (*Qualifier, error) {
	if index < 0 || index >= len(r.qualifiers) {
		return nil, fmt.Errorf("%w: qualifier index %d out of range [0,%d)", types.ErrIntegrity, index, len(r.qualifiers))
	}
	return r.qualifiers[index], nil
}

// Values returns all qualifiers in index order.
func (r *Registry) Values() []*Qualifier {
	out := make([]*Qualifier, len(r.qualifiers))
	copy(out, r.qualifiers)
	return out
}

// Len returns the number of registered qualifiers.
func (r *Registry) Len() int { return len(r.qualifiers) }

// TokenOptional returns qualifiers whose name may be omitted in tokens.
func (r *Registry) TokenOptional() []*Qualifier {
	var out []*Qualifier
	for _, q := range r.qualifiers {
		if q.TokenIsOptional {
			out = append(out, q)
		}
	}
	return out
}

// TypeRegistry holds qualifier types in declaration order.
type TypeRegistry struct {
	types  []QualifierType
	byName map[string]int
}

// NewTypeRegistry creates an empty type registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{byName: make(map[string]int)}
}

// Add builds and registers a qualifier type.
func (r *TypeRegistry) Add(decl types.QualifierTypeDecl) (QualifierType, error) {
	if _, exists := r.byName[decl.Name]; exists {
		return nil, fmt.Errorf("%w: qualifier type %q declared twice", types.ErrValidation, decl.Name)
	}
	t, err := NewType(decl)
	if err != nil {
		return nil, err
	}
	r.byName[decl.Name] = len(r.types)
	r.types = append(r.types, t)
	return t, nil
}

// Get looks up a type by name.
func (r *TypeRegistry) Get(name string) (QualifierType, error) {
	i, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownQualifierType, name)
	}
	return r.types[i], nil
}

// IndexOf returns the position of the named type.
func (r *TypeRegistry) IndexOf(name string) (int, bool) {
	i, ok := r.byName[name]
	return i, ok
}

// At returns the type at index, validating bounds.
func (r *TypeRegistry) At(index int) (QualifierType, error) {
	if index < 0 || index >= len(r.types) {
		return nil, fmt.Errorf("%w: qualifier type index %d out of range [0,%d)", types.ErrIntegrity, index, len(r.types))
	}
	return r.types[index], nil
}

// Values returns all types in index order.
func (r *TypeRegistry) Values() []QualifierType {
	out := make([]QualifierType, len(r.types))
	copy(out, r.types)
	return out
}
