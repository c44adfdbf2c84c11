package qualifiers

import (
	"fmt"

	"github.com/solatis/qualify/internal/types"
)

// System is a validated qualifier configuration: types plus qualifiers.
type System struct {
	Types      *TypeRegistry
	Qualifiers *Registry
}

// NewSystem validates cfg and builds its registries.
// Resource types are validated by internal/resources.
func NewSystem(cfg *types.SystemConfig) (*System, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil system configuration", types.ErrValidation)
	}
	s := &System{
		Types:      NewTypeRegistry(),
		Qualifiers: NewRegistry(),
	}
	for _, decl := range cfg.QualifierTypes {
		if _, err := s.Types.Add(decl); err != nil {
			return nil, err
		}
	}
	for _, decl := range cfg.Qualifiers {
		t, err := s.Types.Get(decl.Type)
		if err != nil {
			return nil, fmt.Errorf("qualifier %q: %w", decl.Name, err)
		}
		if _, err := s.Qualifiers.Add(decl, t); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// DefaultSystem builds types.DefaultSystemConfig.
func DefaultSystem() *System {
	s, err := NewSystem(types.DefaultSystemConfig())
	if err != nil {
		panic(fmt.Sprintf("default system configuration is invalid: %v", err))
	}
	return s
}
