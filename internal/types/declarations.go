// internal/types/declarations.go
package types

import (
	"encoding/json"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

/*
 * Declarative input types.
 *
 * SystemConfig describes the qualifier dimensions a deployment supports and
 * is carried verbatim in bundles as the configuration snapshot. Resource and
 * candidate declarations are the builder-side input consumed by
 * internal/resources.
 *
 * Tags cover the three decoders in use: encoding/json for bundles and gRPC,
 * yaml.v3 for declaration files, mapstructure for the viper config section.
 *
 * Conditions accept two spellings in YAML and JSON:
 *   conditions: {language: fr, territory: CA}
 *   conditions: [{qualifier: language, value: fr, priority: 100}]
 */

// QualifierTypeDecl declares a qualifier type and its configuration.
type QualifierTypeDecl struct {
	Name               string            `json:"name" yaml:"name" mapstructure:"name"`
	SystemType         string            `json:"systemType" yaml:"systemType" mapstructure:"systemType"`
	CaseSensitive      bool              `json:"caseSensitive,omitempty" yaml:"caseSensitive,omitempty" mapstructure:"caseSensitive"`
	AllowContextList   bool              `json:"allowContextList,omitempty" yaml:"allowContextList,omitempty" mapstructure:"allowContextList"`
	EnumeratedValues   []string          `json:"enumeratedValues,omitempty" yaml:"enumeratedValues,omitempty" mapstructure:"enumeratedValues"`
	Hierarchy          map[string]string `json:"hierarchy,omitempty" yaml:"hierarchy,omitempty" mapstructure:"hierarchy"`
	AllowedTerritories []string          `json:"allowedTerritories,omitempty" yaml:"allowedTerritories,omitempty" mapstructure:"allowedTerritories"`
}

// QualifierDecl declares a qualifier. Token is an optional shorthand name;
// TokenIsOptional allows bare values in context tokens.
type QualifierDecl struct {
	Name            string `json:"name" yaml:"name" mapstructure:"name"`
	Token           string `json:"token,omitempty" yaml:"token,omitempty" mapstructure:"token"`
	Type            string `json:"type" yaml:"type" mapstructure:"type"`
	DefaultPriority int    `json:"defaultPriority" yaml:"defaultPriority" mapstructure:"defaultPriority"`
	TokenIsOptional bool   `json:"tokenIsOptional,omitempty" yaml:"tokenIsOptional,omitempty" mapstructure:"tokenIsOptional"`
}

// ResourceTypeDecl declares a resource type.
type ResourceTypeDecl struct {
	Name       string `json:"name" yaml:"name" mapstructure:"name"`
	SystemType string `json:"systemType" yaml:"systemType" mapstructure:"systemType"`
}

// SystemConfig is the complete qualifier and resource type configuration.
type SystemConfig struct {
	Name           string              `json:"name" yaml:"name" mapstructure:"name"`
	Description    string              `json:"description,omitempty" yaml:"description,omitempty" mapstructure:"description"`
	QualifierTypes []QualifierTypeDecl `json:"qualifierTypes" yaml:"qualifierTypes" mapstructure:"qualifierTypes"`
	Qualifiers     []QualifierDecl     `json:"qualifiers" yaml:"qualifiers" mapstructure:"qualifiers"`
	ResourceTypes  []ResourceTypeDecl  `json:"resourceTypes" yaml:"resourceTypes" mapstructure:"resourceTypes"`
}

// DefaultSystemConfig returns the built-in language/territory/platform system.
func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		Name:        "default",
		Description: "language, territory, platform and density qualifiers",
		QualifierTypes: []QualifierTypeDecl{
			{Name: "language", SystemType: SystemTypeLanguage, AllowContextList: true},
			{Name: "territory", SystemType: SystemTypeTerritory},
			{Name: "literal", SystemType: SystemTypeLiteral},
		},
		Qualifiers: []QualifierDecl{
			{Name: "language", Token: "lang", Type: "language", DefaultPriority: 600, TokenIsOptional: true},
			{Name: "territory", Token: "geo", Type: "territory", DefaultPriority: 700, TokenIsOptional: true},
			{Name: "platform", Type: "literal", DefaultPriority: 400},
			{Name: "density", Type: "literal", DefaultPriority: 300},
		},
		ResourceTypes: []ResourceTypeDecl{
			{Name: "json", SystemType: ResourceSystemTypeJSON},
		},
	}
}

// ConditionDecl declares one condition of a candidate.
// Nil Priority means the qualifier's default priority.
type ConditionDecl struct {
	Qualifier      string   `json:"qualifier" yaml:"qualifier"`
	Operator       string   `json:"operator,omitempty" yaml:"operator,omitempty"`
	Value          string   `json:"value,omitempty" yaml:"value,omitempty"`
	Priority       *int     `json:"priority,omitempty" yaml:"priority,omitempty"`
	ScoreAsDefault *float64 `json:"scoreAsDefault,omitempty" yaml:"scoreAsDefault,omitempty"`
}

// ConditionDecls is a list of conditions decodable from a list or a
// qualifier->value mapping.
type ConditionDecls []ConditionDecl

// UnmarshalYAML implements yaml.Unmarshaler.
// Mapping form keeps document order.
func (c *ConditionDecls) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		decls := make(ConditionDecls, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			k, v := node.Content[i], node.Content[i+1]
			if v.Kind != yaml.ScalarNode {
				return fmt.Errorf("%w: condition %q must be a scalar at line %d", ErrValidation, k.Value, v.Line)
			}
			decls = append(decls, ConditionDecl{Qualifier: k.Value, Value: v.Value})
		}
		*c = decls
		return nil
	case yaml.SequenceNode:
		var decls []ConditionDecl
		if err := node.Decode(&decls); err != nil {
			return err
		}
		*c = decls
		return nil
	default:
		return fmt.Errorf("%w: conditions must be a list or mapping at line %d", ErrValidation, node.Line)
	}
}

// UnmarshalJSON implements json.Unmarshaler.
// Mapping form is sorted by qualifier name since JSON objects are unordered.
func (c *ConditionDecls) UnmarshalJSON(data []byte) error {
	var list []ConditionDecl
	if err := json.Unmarshal(data, &list); err == nil {
		*c = list
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("%w: conditions must be a list or object: %v", ErrValidation, err)
	}
	decls := make(ConditionDecls, 0, len(m))
	for k, v := range m {
		decls = append(decls, ConditionDecl{Qualifier: k, Value: v})
	}
	sort.Slice(decls, func(i, j int) bool { return decls[i].Qualifier < decls[j].Qualifier })
	*c = decls
	return nil
}

// CandidateDecl declares one candidate value. ID names the owning resource
// when the candidate is declared outside a ResourceDecl.
type CandidateDecl struct {
	ID           string         `json:"id,omitempty" yaml:"id,omitempty"`
	ResourceType string         `json:"resourceType,omitempty" yaml:"resourceType,omitempty"`
	JSON         any            `json:"json" yaml:"json"`
	Conditions   ConditionDecls `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	IsPartial    bool           `json:"isPartial,omitempty" yaml:"isPartial,omitempty"`
	MergeMethod  string         `json:"mergeMethod,omitempty" yaml:"mergeMethod,omitempty"`
}

// ResourceDecl declares a resource and its candidates.
type ResourceDecl struct {
	ID           string          `json:"id" yaml:"id"`
	ResourceType string          `json:"resourceType,omitempty" yaml:"resourceType,omitempty"`
	Candidates   []CandidateDecl `json:"candidates" yaml:"candidates"`
}

// ResourceFile is the top-level shape of a declaration file.
type ResourceFile struct {
	Resources  []ResourceDecl  `json:"resources,omitempty" yaml:"resources,omitempty"`
	Candidates []CandidateDecl `json:"candidates,omitempty" yaml:"candidates,omitempty"`
}
