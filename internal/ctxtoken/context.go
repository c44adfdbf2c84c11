// internal/ctxtoken/context.go
package ctxtoken

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/solatis/qualify/internal/qualifiers"
	"github.com/solatis/qualify/internal/types"
)

/*
 * Validated runtime contexts and the context token wire format.
 *
 * A Context maps qualifier names to canonical values. Keys are always
 * declared names, never tokens. A qualifier present with an empty value is
 * distinct from an absent one: the empty value matches no condition, while
 * absence yields "undefined" under partial-context matching.
 *
 * Token format: name=value pairs joined by '|'. A single pair may be a bare
 * value when exactly one token-optional qualifier accepts it. There is no
 * escaping; values containing '=' or '|' are rejected at validation.
 *
 * Every failure in this package wraps types.ErrValidation together with the
 * specific sentinel, so callers can test either.
 */

// Context is a validated qualifier name -> canonical value mapping.
type Context map[string]string

// Value is one parsed qualifier/value pair.
type Value struct {
	Qualifier *qualifiers.Qualifier
	Value     string
}

func invalid(err error) error {
	return fmt.Errorf("%w: %w", types.ErrValidation, err)
}

// validateValue canonicalizes a context value; empty stays empty.
func validateValue(q *qualifiers.Qualifier, raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	v, err := q.Type.ValidateContextValue(raw)
	if err != nil {
		return "", invalid(fmt.Errorf("qualifier %s: %w", q.Name, err))
	}
	return v, nil
}

// Validate converts an unvalidated record into a Context. Keys may be names
// or tokens; two keys resolving to the same qualifier are rejected.
func Validate(reg *qualifiers.Registry, raw map[string]string) (Context, error) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ctx := make(Context, len(raw))
	for _, k := range keys {
		q, err := reg.Get(k)
		if err != nil {
			return nil, invalid(err)
		}
		if _, dup := ctx[q.Name]; dup {
			return nil, invalid(fmt.Errorf("%w: %s given more than once", types.ErrDuplicateQualifier, q.Name))
		}
		v, err := validateValue(q, raw[k])
		if err != nil {
			return nil, err
		}
		ctx[q.Name] = v
	}
	return ctx, nil
}

// ParseQualifierToken parses "name=value" or a bare value.
// A bare value must be accepted by exactly one token-optional qualifier.
func ParseQualifierToken(reg *qualifiers.Registry, token string) (Value, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Value{}, invalid(fmt.Errorf("empty qualifier token"))
	}

	if name, raw, ok := strings.Cut(token, types.TokenValueSeparator); ok {
		q, err := reg.Get(strings.TrimSpace(name))
		if err != nil {
			return Value{}, invalid(err)
		}
		v, err := validateValue(q, strings.TrimSpace(raw))
		if err != nil {
			return Value{}, err
		}
		return Value{Qualifier: q, Value: v}, nil
	}

	var matches []Value
	for _, q := range reg.TokenOptional() {
		v, err := q.Type.ValidateContextValue(token)
		if err != nil {
			continue
		}
		matches = append(matches, Value{Qualifier: q, Value: v})
	}
	switch len(matches) {
	case 0:
		return Value{}, invalid(fmt.Errorf("%w: no token-optional qualifier accepts %q", types.ErrUnknownQualifier, token))
	case 1:
		return matches[0], nil
	default:
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = m.Qualifier.Name
		}
		return Value{}, invalid(fmt.Errorf("%w: %q is accepted by %s", types.ErrAmbiguousQualifier, token, strings.Join(names, ", ")))
	}
}

// ParseToken parses a full context token. Any failing part, or a qualifier
// appearing twice, fails the whole token.
func ParseToken(reg *qualifiers.Registry, token string) ([]Value, error) {
	if len(token) > types.MaxContextTokenLength {
		return nil, invalid(fmt.Errorf("context token longer than %d", types.MaxContextTokenLength))
	}
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}

	parts := strings.Split(token, types.TokenSeparator)
	values := make([]Value, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, part := range parts {
		v, err := ParseQualifierToken(reg, part)
		if err != nil {
			return nil, err
		}
		if seen[v.Qualifier.Name] {
			return nil, invalid(fmt.Errorf("%w: %s appears more than once in %q", types.ErrDuplicateQualifier, v.Qualifier.Name, token))
		}
		seen[v.Qualifier.Name] = true
		values = append(values, v)
	}
	return values, nil
}

// ParseContext parses a context token into a Context.
func ParseContext(reg *qualifiers.Registry, token string) (Context, error) {
	values, err := ParseToken(reg, token)
	if err != nil {
		return nil, err
	}
	ctx := make(Context, len(values))
	for _, v := range values {
		ctx[v.Qualifier.Name] = v.Value
	}
	return ctx, nil
}

// ToToken serializes ctx in qualifier index order. Re-parsing the result
// yields a Context equal to ctx.
func ToToken(reg *qualifiers.Registry, ctx Context) (string, error) {
	for name := range ctx {
		if _, err := reg.Get(name); err != nil {
			return "", invalid(err)
		}
	}
	var parts []string
	for _, q := range reg.Values() {
		v, ok := ctx[q.Name]
		if !ok {
			continue
		}
		parts = append(parts, q.Name+types.TokenValueSeparator+v)
	}
	return strings.Join(parts, types.TokenSeparator), nil
}

// Get returns the value for a qualifier name and whether it is present.
func (c Context) Get(name string) (string, bool) {
	v, ok := c[name]
	return v, ok
}

// Clone returns an independent copy.
func (c Context) Clone() Context {
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Equal reports whether both contexts hold the same pairs.
func (c Context) Equal(other Context) bool {
	if len(c) != len(other) {
		return false
	}
	for k, v := range c {
		if ov, ok := other[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// NonEmpty returns the pairs with non-empty values.
func (c Context) NonEmpty() Context {
	out := make(Context, len(c))
	for k, v := range c {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// Signature is an order-independent cache key. Values are quoted, so a
// present empty value differs from an absent qualifier.
func (c Context) Signature() string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strconv.Quote(c[k]))
	}
	return b.String()
}
