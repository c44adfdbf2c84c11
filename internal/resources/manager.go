// internal/resources/manager.go
package resources

import (
	"fmt"

	"github.com/solatis/qualify/internal/conditions"
	"github.com/solatis/qualify/internal/jsonmerge"
	"github.com/solatis/qualify/internal/qualifiers"
	"github.com/solatis/qualify/internal/types"
)

/*
 * Resource manager: the mutable builder side of the engine.
 *
 * Hosts add candidate declarations; the manager validates them against the
 * qualifier system, canonicalizes their JSON values and groups them by
 * resource. Built resources, clones and compiled collections are derived on
 * demand and never share mutable state with the manager.
 *
 * Adding is atomic per call: every declaration in a batch is validated and
 * checked for conflicts before any is stored, so a failed call leaves the
 * manager unchanged.
 *
 * Conflicts: two candidates of one resource with equal condition sets are
 * the same candidate if their values and merge flags agree (the second add
 * is a no-op) and a conflict otherwise. Clone is the path for replacing a
 * candidate.
 */

// ResourceType validates resource values.
type ResourceType struct {
	Name       string
	SystemType string
	Index      int
}

// Validate checks a canonical candidate value.
func (t *ResourceType) Validate(value any) error {
	if _, ok := value.(map[string]any); !ok {
		return fmt.Errorf("%w: resource type %s requires a JSON object, got %T", types.ErrValidation, t.Name, value)
	}
	return nil
}

// Decl returns the declaration form.
func (t *ResourceType) Decl() types.ResourceTypeDecl {
	return types.ResourceTypeDecl{Name: t.Name, SystemType: t.SystemType}
}

// Candidate is one validated candidate value of a resource.
type Candidate struct {
	ResourceID  types.ResourceID
	Value       any
	Canonical   []byte
	IsPartial   bool
	MergeMethod string
	Conditions  *conditions.ConditionSet
}

// sameContent reports whether two candidates with equal condition sets are
// interchangeable.
func (c *Candidate) sameContent(other *Candidate) bool {
	return c.IsPartial == other.IsPartial &&
		c.MergeMethod == other.MergeMethod &&
		string(c.Canonical) == string(other.Canonical)
}

// Decl returns the declaration form of the candidate.
func (c *Candidate) Decl() types.CandidateDecl {
	return types.CandidateDecl{
		ID:          c.ResourceID.String(),
		JSON:        jsonmerge.Clone(c.Value),
		Conditions:  c.Conditions.Decls(),
		IsPartial:   c.IsPartial,
		MergeMethod: c.MergeMethod,
	}
}

// Resource is a built resource: candidates plus their positional decision.
type Resource struct {
	ID         types.ResourceID
	Type       *ResourceType
	Candidates []*Candidate
	Decision   *conditions.Decision
}

type resourceBuilder struct {
	id           types.ResourceID
	resourceType *ResourceType
	candidates   []*Candidate
}

func (b *resourceBuilder) clone() *resourceBuilder {
	return &resourceBuilder{
		id:           b.id,
		resourceType: b.resourceType,
		candidates:   append([]*Candidate(nil), b.candidates...),
	}
}

func (b *resourceBuilder) build() *Resource {
	sets := make([]*conditions.ConditionSet, len(b.candidates))
	for i, c := range b.candidates {
		sets[i] = c.Conditions
	}
	return &Resource{
		ID:         b.id,
		Type:       b.resourceType,
		Candidates: append([]*Candidate(nil), b.candidates...),
		Decision:   conditions.NewDecision(sets),
	}
}

// Manager owns declared resources.
// Not safe for concurrent mutation.
type Manager struct {
	config        types.SystemConfig
	system        *qualifiers.System
	resourceTypes []*ResourceType
	typesByName   map[string]*ResourceType
	builders      map[types.ResourceID]*resourceBuilder
	order         []types.ResourceID
}

// NewManager builds an empty manager for cfg. A configuration without
// resource types gets the json type.
func NewManager(cfg *types.SystemConfig) (*Manager, error) {
	system, err := qualifiers.NewSystem(cfg)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		config:      *cfg,
		system:      system,
		typesByName: make(map[string]*ResourceType),
		builders:    make(map[types.ResourceID]*resourceBuilder),
	}
	decls := cfg.ResourceTypes
	if len(decls) == 0 {
		decls = []types.ResourceTypeDecl{{Name: types.ResourceSystemTypeJSON, SystemType: types.ResourceSystemTypeJSON}}
		m.config.ResourceTypes = decls
	}
	for _, d := range decls {
		if d.SystemType != types.ResourceSystemTypeJSON {
			return nil, fmt.Errorf("%w: resource type %q has system type %q", types.ErrUnknownResourceType, d.Name, d.SystemType)
		}
		if _, dup := m.typesByName[d.Name]; dup {
			return nil, fmt.Errorf("%w: resource type %q declared twice", types.ErrValidation, d.Name)
		}
		rt := &ResourceType{Name: d.Name, SystemType: d.SystemType, Index: len(m.resourceTypes)}
		m.resourceTypes = append(m.resourceTypes, rt)
		m.typesByName[d.Name] = rt
	}
	return m, nil
}

// System returns the qualifier system.
func (m *Manager) System() *qualifiers.System { return m.system }

// Qualifiers returns the qualifier registry.
func (m *Manager) Qualifiers() *qualifiers.Registry { return m.system.Qualifiers }

// Config returns a copy of the system configuration.
func (m *Manager) Config() *types.SystemConfig {
	cfg := m.config
	return &cfg
}

// ResourceTypes returns resource types in declaration order.
func (m *Manager) ResourceTypes() []*ResourceType {
	return append([]*ResourceType(nil), m.resourceTypes...)
}

// NumResources returns the number of resources.
func (m *Manager) NumResources() int { return len(m.order) }

// ResourceIDs returns resource ids in insertion order.
func (m *Manager) ResourceIDs() []types.ResourceID {
	return append([]types.ResourceID(nil), m.order...)
}

// GetBuiltResource returns the built resource with id.
func (m *Manager) GetBuiltResource(id string) (*Resource, error) {
	b, ok := m.builders[types.ResourceID(id)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrResourceNotFound, id)
	}
	return b.build(), nil
}

// Resources returns every built resource in insertion order.
func (m *Manager) Resources() []*Resource {
	out := make([]*Resource, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.builders[id].build())
	}
	return out
}

// AddCandidate adds one candidate declaration.
func (m *Manager) AddCandidate(decl types.CandidateDecl) error {
	return m.AddCandidates([]types.CandidateDecl{decl})
}

// AddResource adds a resource declaration; its candidates inherit the
// resource id and type.
func (m *Manager) AddResource(decl types.ResourceDecl) error {
	decls, err := flattenResource(decl)
	if err != nil {
		return err
	}
	return m.AddCandidates(decls)
}

// AddFile adds every resource and loose candidate of a declaration file.
func (m *Manager) AddFile(file *types.ResourceFile) error {
	var decls []types.CandidateDecl
	for _, r := range file.Resources {
		flat, err := flattenResource(r)
		if err != nil {
			return err
		}
		decls = append(decls, flat...)
	}
	decls = append(decls, file.Candidates...)
	return m.AddCandidates(decls)
}

func flattenResource(decl types.ResourceDecl) ([]types.CandidateDecl, error) {
	out := make([]types.CandidateDecl, 0, len(decl.Candidates))
	for i, c := range decl.Candidates {
		if c.ID != "" && c.ID != decl.ID {
			return nil, fmt.Errorf("%w: candidate %d of %s names resource %s", types.ErrValidation, i, decl.ID, c.ID)
		}
		c.ID = decl.ID
		if c.ResourceType == "" {
			c.ResourceType = decl.ResourceType
		}
		out = append(out, c)
	}
	return out, nil
}

// AddCandidates validates the whole batch, then stores it.
func (m *Manager) AddCandidates(decls []types.CandidateDecl) error {
	staged := make(map[types.ResourceID]*resourceBuilder)
	var order []types.ResourceID

	for i, decl := range decls {
		cand, rt, err := m.prepareCandidate(decl)
		if err != nil {
			return fmt.Errorf("candidate %d: %w", i, err)
		}
		b, ok := staged[cand.ResourceID]
		if !ok {
			if existing, exists := m.builders[cand.ResourceID]; exists {
				b = existing.clone()
			} else {
				b = &resourceBuilder{id: cand.ResourceID}
				order = append(order, cand.ResourceID)
			}
			staged[cand.ResourceID] = b
		}
		if err := b.add(cand, rt); err != nil {
			return fmt.Errorf("candidate %d: %w", i, err)
		}
	}

	for id, b := range staged {
		m.builders[id] = b
	}
	m.order = append(m.order, order...)
	return nil
}

func (b *resourceBuilder) setType(rt *ResourceType) error {
	switch {
	case rt == nil:
		return nil
	case b.resourceType == nil:
		b.resourceType = rt
	case b.resourceType != rt:
		return fmt.Errorf("%w: %s is %s, candidate declares %s", types.ErrValidation, b.id, b.resourceType.Name, rt.Name)
	}
	return nil
}

// add appends cand unless an equal-set candidate exists.
func (b *resourceBuilder) add(cand *Candidate, rt *ResourceType) error {
	if err := b.setType(rt); err != nil {
		return err
	}
	key := cand.Conditions.Key()
	for _, existing := range b.candidates {
		if existing.Conditions.Key() != key {
			continue
		}
		if existing.sameContent(cand) {
			return nil
		}
		return fmt.Errorf("%w: %s has two candidates for %s", types.ErrCandidateConflict, b.id, key)
	}
	b.candidates = append(b.candidates, cand)
	return nil
}

// replace swaps in cand for an equal-set candidate, or appends it.
func (b *resourceBuilder) replace(cand *Candidate, rt *ResourceType) error {
	if err := b.setType(rt); err != nil {
		return err
	}
	key := cand.Conditions.Key()
	for i, existing := range b.candidates {
		if existing.Conditions.Key() == key {
			b.candidates[i] = cand
			return nil
		}
	}
	b.candidates = append(b.candidates, cand)
	return nil
}

// prepareCandidate validates decl without touching the manager. The
// returned type is nil when decl names none, leaving it to the resource.
func (m *Manager) prepareCandidate(decl types.CandidateDecl) (*Candidate, *ResourceType, error) {
	id, err := types.ParseResourceID(decl.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", types.ErrValidation, err)
	}

	var rt *ResourceType
	if decl.ResourceType != "" {
		var ok bool
		if rt, ok = m.typesByName[decl.ResourceType]; !ok {
			return nil, nil, fmt.Errorf("%w: %q", types.ErrUnknownResourceType, decl.ResourceType)
		}
	} else if existing, ok := m.builders[id]; ok {
		rt = existing.resourceType
	} else {
		rt = m.resourceTypes[0]
	}

	value, canonical, err := jsonmerge.Canonicalize(decl.JSON)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", types.ErrValidation, id, err)
	}
	if err := rt.Validate(value); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", id, err)
	}

	merge := decl.MergeMethod
	switch {
	case merge == "" && decl.IsPartial:
		merge = types.MergeAugment
	case merge == "":
		merge = types.MergeReplace
	case merge != types.MergeAugment && merge != types.MergeReplace:
		return nil, nil, fmt.Errorf("%w: %w: %q", types.ErrValidation, types.ErrInvalidMergeMethod, merge)
	}

	conds := make([]*conditions.Condition, 0, len(decl.Conditions))
	for _, cd := range decl.Conditions {
		c, err := conditions.Compile(m.system.Qualifiers, cd)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", id, err)
		}
		conds = append(conds, c)
	}
	set, err := conditions.NewConditionSet(conds)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", types.ErrValidation, id, err)
	}

	return &Candidate{
		ResourceID:  id,
		Value:       value,
		Canonical:   canonical,
		IsPartial:   decl.IsPartial,
		MergeMethod: merge,
		Conditions:  set,
	}, rt, nil
}
