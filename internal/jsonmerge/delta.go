package jsonmerge

import (
	"fmt"
	"sort"
	"strings"

	"github.com/solatis/qualify/internal/types"
)

// DeltaResult is the outcome of Delta.
type DeltaResult struct {
	// Value is the minimal augment delta; nil when Unchanged.
	Value map[string]any
	// Unchanged reports that edited equals resolved.
	Unchanged bool
	// Overrides lists dotted paths the delta touches where resolved already
	// differs from base, i.e. where the edit overrides another partial layer.
	Overrides []string
}

// Delta computes the augment delta that turns resolved into edited.
// Changed and added keys carry the edited value, nested objects recurse, and
// keys missing from edited become null. Merge(resolved, Value) equals edited
// for any edited value free of nulls. base may be nil.
func Delta(base, resolved, edited any) (DeltaResult, error) {
	r, ok := resolved.(map[string]any)
	if !ok {
		return DeltaResult{}, fmt.Errorf("%w: resolved value is not a JSON object", types.ErrValidation)
	}
	e, ok := edited.(map[string]any)
	if !ok {
		return DeltaResult{}, fmt.Errorf("%w: edited value is not a JSON object", types.ErrValidation)
	}
	if Equal(r, e) {
		return DeltaResult{Unchanged: true}, nil
	}

	delta := diff(r, e)
	result := DeltaResult{Value: delta}
	collectOverrides(base, resolved, delta, nil, &result.Overrides)
	sort.Strings(result.Overrides)
	return result, nil
}

func diff(resolved, edited map[string]any) map[string]any {
	out := make(map[string]any)
	for k, ev := range edited {
		rv, present := resolved[k]
		switch {
		case ev == nil:
			if present && rv != nil {
				out[k] = nil
			}
		case !present:
			out[k] = Clone(ev)
		default:
			rObj, rIsObj := rv.(map[string]any)
			eObj, eIsObj := ev.(map[string]any)
			if rIsObj && eIsObj {
				if sub := diff(rObj, eObj); len(sub) > 0 {
					out[k] = sub
				}
			} else if !Equal(rv, ev) {
				out[k] = Clone(ev)
			}
		}
	}
	for k := range resolved {
		if _, ok := edited[k]; !ok {
			out[k] = nil
		}
	}
	return out
}

func collectOverrides(base, resolved any, delta map[string]any, path []string, out *[]string) {
	for k, v := range delta {
		p := append(append([]string(nil), path...), k)
		if sub, ok := v.(map[string]any); ok && len(sub) > 0 {
			collectOverrides(lookup(base, k), lookup(resolved, k), sub, p, out)
			continue
		}
		if !Equal(lookup(base, k), lookup(resolved, k)) {
			*out = append(*out, strings.Join(p, "."))
		}
	}
}

func lookup(v any, key string) any {
	if m, ok := v.(map[string]any); ok {
		return m[key]
	}
	return nil
}
