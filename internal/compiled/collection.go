// internal/compiled/collection.go
package compiled

import (
	"encoding/json"
	"fmt"

	"github.com/solatis/qualify/internal/types"
)

/*
 * Compiled resource collection.
 *
 * The whole resource model flattened into parallel arrays. Every
 * cross-reference is an integer index into an earlier array:
 *
 *   qualifiers[i].type            -> qualifierTypes
 *   conditions[i].qualifierIndex  -> qualifiers
 *   conditionSets[i].conditions   -> conditions
 *   decisions[i].conditionSets    -> conditionSets
 *   resources[i].type             -> resourceTypes
 *   resources[i].decision         -> decisions
 *   resources[i].candidates.value -> candidateValues
 *
 * Arrays are append-only while compiling, so a well-formed collection never
 * references forward. Validate checks every index and the decision/candidate
 * count agreement; any failure is types.ErrIntegrity (or
 * types.ErrDecisionMismatch, which also wraps ErrIntegrity) and the
 * collection must be recompiled.
 *
 * Pure data: no dependency on the live qualifier or condition packages, so
 * bundles can be decoded and checked without building a system.
 */

// QualifierType is a compiled qualifier type declaration.
type QualifierType = types.QualifierTypeDecl

// ResourceType is a compiled resource type declaration.
type ResourceType = types.ResourceTypeDecl

// Qualifier is a compiled qualifier.
type Qualifier struct {
	Name            string `json:"name"`
	Token           string `json:"token,omitempty"`
	Type            int    `json:"type"`
	DefaultPriority int    `json:"defaultPriority"`
	TokenIsOptional bool   `json:"tokenIsOptional,omitempty"`
}

// Condition is a compiled condition.
type Condition struct {
	QualifierIndex int      `json:"qualifierIndex"`
	Operator       string   `json:"operator,omitempty"`
	Value          string   `json:"value,omitempty"`
	Priority       int      `json:"priority"`
	ScoreAsDefault *float64 `json:"scoreAsDefault,omitempty"`
}

// ConditionSet lists condition indices (AND).
type ConditionSet struct {
	Conditions []int `json:"conditions"`
}

// Decision lists condition set indices, one per candidate.
type Decision struct {
	ConditionSets []int `json:"conditionSets"`
}

// Candidate references a candidate value.
type Candidate struct {
	ValueIndex  int    `json:"valueIndex"`
	IsPartial   bool   `json:"isPartial,omitempty"`
	MergeMethod string `json:"mergeMethod,omitempty"`
}

// Resource is a compiled resource.
type Resource struct {
	ID         string      `json:"id"`
	Type       int         `json:"type"`
	Decision   int         `json:"decision"`
	Candidates []Candidate `json:"candidates"`
}

// Keys carries the human-readable identity key of every condition, set and
// decision, index-aligned with those tables. Present only on request.
type Keys struct {
	ConditionKeys    []string `json:"conditionKeys"`
	ConditionSetKeys []string `json:"conditionSetKeys"`
	DecisionKeys     []string `json:"decisionKeys"`
}

// Collection is the flattened resource model.
type Collection struct {
	QualifierTypes  []QualifierType   `json:"qualifierTypes"`
	Qualifiers      []Qualifier       `json:"qualifiers"`
	ResourceTypes   []ResourceType    `json:"resourceTypes"`
	Conditions      []Condition       `json:"conditions"`
	ConditionSets   []ConditionSet    `json:"conditionSets"`
	Decisions       []Decision        `json:"decisions"`
	CandidateValues []json.RawMessage `json:"candidateValues"`
	Resources       []Resource        `json:"resources"`
	Keys            *Keys             `json:"keys,omitempty"`
}

func checkIndex(kind string, owner string, index, length int) error {
	if index < 0 || index >= length {
		return fmt.Errorf("%w: %s references %s %d, have %d", types.ErrIntegrity, owner, kind, index, length)
	}
	return nil
}

// Validate checks every cross-reference and decision/candidate agreement.
func (c *Collection) Validate() error {
	for i, q := range c.Qualifiers {
		if err := checkIndex("qualifier type", fmt.Sprintf("qualifier %d (%s)", i, q.Name), q.Type, len(c.QualifierTypes)); err != nil {
			return err
		}
	}
	for i, cond := range c.Conditions {
		if err := checkIndex("qualifier", fmt.Sprintf("condition %d", i), cond.QualifierIndex, len(c.Qualifiers)); err != nil {
			return err
		}
	}
	for i, set := range c.ConditionSets {
		for _, ci := range set.Conditions {
			if err := checkIndex("condition", fmt.Sprintf("condition set %d", i), ci, len(c.Conditions)); err != nil {
				return err
			}
		}
	}
	for i, d := range c.Decisions {
		for _, si := range d.ConditionSets {
			if err := checkIndex("condition set", fmt.Sprintf("decision %d", i), si, len(c.ConditionSets)); err != nil {
				return err
			}
		}
	}
	seen := make(map[string]bool, len(c.Resources))
	for _, r := range c.Resources {
		owner := "resource " + r.ID
		if seen[r.ID] {
			return fmt.Errorf("%w: resource %s appears twice", types.ErrIntegrity, r.ID)
		}
		seen[r.ID] = true
		if err := checkIndex("resource type", owner, r.Type, len(c.ResourceTypes)); err != nil {
			return err
		}
		if err := checkIndex("decision", owner, r.Decision, len(c.Decisions)); err != nil {
			return err
		}
		if n := len(c.Decisions[r.Decision].ConditionSets); n != len(r.Candidates) {
			return fmt.Errorf("%w: %w: %s has %d candidates but decision %d has %d condition sets",
				types.ErrIntegrity, types.ErrDecisionMismatch, owner, len(r.Candidates), r.Decision, n)
		}
		for _, cand := range r.Candidates {
			if err := checkIndex("candidate value", owner, cand.ValueIndex, len(c.CandidateValues)); err != nil {
				return err
			}
		}
	}
	return nil
}

// ResourceIndex returns the position of the resource with id.
func (c *Collection) ResourceIndex(id string) (int, bool) {
	for i, r := range c.Resources {
		if r.ID == id {
			return i, true
		}
	}
	return -1, false
}

// ConditionAt returns the condition at index, validating bounds.
func (c *Collection) ConditionAt(index int) (Condition, error) {
	if err := checkIndex("condition", "lookup", index, len(c.Conditions)); err != nil {
		return Condition{}, err
	}
	return c.Conditions[index], nil
}

// ConditionSetAt returns the condition set at index, validating bounds.
func (c *Collection) ConditionSetAt(index int) (ConditionSet, error) {
	if err := checkIndex("condition set", "lookup", index, len(c.ConditionSets)); err != nil {
		return ConditionSet{}, err
	}
	return c.ConditionSets[index], nil
}

// DecisionAt returns the decision at index, validating bounds.
func (c *Collection) DecisionAt(index int) (Decision, error) {
	if err := checkIndex("decision", "lookup", index, len(c.Decisions)); err != nil {
		return Decision{}, err
	}
	return c.Decisions[index], nil
}

// CandidateValueAt returns the raw candidate value at index, validating bounds.
func (c *Collection) CandidateValueAt(index int) (json.RawMessage, error) {
	if err := checkIndex("candidate value", "lookup", index, len(c.CandidateValues)); err != nil {
		return nil, err
	}
	return c.CandidateValues[index], nil
}

// SystemConfig reconstructs the qualifier and resource type configuration.
func (c *Collection) SystemConfig() (*types.SystemConfig, error) {
	cfg := &types.SystemConfig{
		QualifierTypes: append([]types.QualifierTypeDecl(nil), c.QualifierTypes...),
		ResourceTypes:  append([]types.ResourceTypeDecl(nil), c.ResourceTypes...),
	}
	for i, q := range c.Qualifiers {
		if err := checkIndex("qualifier type", fmt.Sprintf("qualifier %d (%s)", i, q.Name), q.Type, len(c.QualifierTypes)); err != nil {
			return nil, err
		}
		cfg.Qualifiers = append(cfg.Qualifiers, types.QualifierDecl{
			Name:            q.Name,
			Token:           q.Token,
			Type:            c.QualifierTypes[q.Type].Name,
			DefaultPriority: q.DefaultPriority,
			TokenIsOptional: q.TokenIsOptional,
		})
	}
	return cfg, nil
}
