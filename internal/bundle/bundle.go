package bundle

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/solatis/qualify/internal/compiled"
	"github.com/solatis/qualify/internal/ctxtoken"
	"github.com/solatis/qualify/internal/resources"
	"github.com/solatis/qualify/internal/types"
)

// Type distinguishes export kinds.
type Type string

const (
	// TypePlain is the collection in declaration order.
	TypePlain Type = "plain"
	// TypeFiltered is normalized after filtering for a context.
	TypeFiltered Type = "filtered"
	// TypeBundle is normalized for distribution.
	TypeBundle Type = "bundle"
)

// Metadata describes an export. Unknown keys are ignored on load.
type Metadata struct {
	ExportedAt    time.Time        `json:"exportedAt"`
	Type          Type             `json:"type"`
	Version       string           `json:"version,omitempty"`
	Description   string           `json:"description,omitempty"`
	Normalized    bool             `json:"normalized"`
	Checksum      string           `json:"checksum"`
	FilterContext ctxtoken.Context `json:"filterContext,omitempty"`
}

// Bundle is a compiled collection with configuration and metadata.
type Bundle struct {
	compiled.Collection
	Config   *types.SystemConfig `json:"config"`
	Metadata Metadata            `json:"metadata"`
}

// Options control Build.
type Options struct {
	// Type defaults to TypeBundle, or TypeFiltered with a FilterContext.
	Type        Type
	Version     string
	Description string
	// FilterContext clones the manager filtered for the context first.
	FilterContext    ctxtoken.Context
	ReduceQualifiers bool
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Build exports m. The manager is never modified.
func Build(m *resources.Manager, opts Options) (*Bundle, error) {
	kind := opts.Type
	if kind == "" {
		kind = TypeBundle
		if opts.FilterContext != nil {
			kind = TypeFiltered
		}
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	src := m
	var filter ctxtoken.Context
	if opts.FilterContext != nil {
		var err error
		if filter, err = ctxtoken.Validate(m.Qualifiers(), opts.FilterContext); err != nil {
			return nil, fmt.Errorf("filter context: %w", err)
		}
		if src, err = m.Clone(resources.CloneOptions{FilterForContext: filter, ReduceQualifiers: opts.ReduceQualifiers}); err != nil {
			return nil, err
		}
	}

	var (
		collection *compiled.Collection
		err        error
	)
	switch kind {
	case TypePlain:
		collection, err = src.CompiledCollection(resources.CompileOptions{})
	case TypeFiltered, TypeBundle:
		collection, err = Normalize(src)
	default:
		return nil, fmt.Errorf("%w: unknown bundle type %q", types.ErrValidation, kind)
	}
	if err != nil {
		return nil, err
	}

	cfg, err := collection.SystemConfig()
	if err != nil {
		return nil, err
	}
	orig := m.Config()
	cfg.Name, cfg.Description = orig.Name, orig.Description

	checksum, err := Checksum(collection)
	if err != nil {
		return nil, err
	}
	return &Bundle{
		Collection: *collection,
		Config:     cfg,
		Metadata: Metadata{
			ExportedAt:    clock().UTC(),
			Type:          kind,
			Version:       opts.Version,
			Description:   opts.Description,
			Normalized:    kind != TypePlain,
			Checksum:      checksum,
			FilterContext: filter,
		},
	}, nil
}

// Checksum is the CRC32 of the compact JSON encoding of c.
func Checksum(c *compiled.Collection) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode collection: %w", err)
	}
	return compiled.HashString(data), nil
}

// Marshal encodes b as indented JSON.
func Marshal(b *Bundle) ([]byte, error) {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode bundle: %w", err)
	}
	return data, nil
}

// Load decodes and verifies a bundle.
func Load(data []byte) (*Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrInvalidBundle, err)
	}
	if err := b.Collection.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrInvalidBundle, err)
	}
	if b.Metadata.Checksum != "" {
		sum, err := Checksum(&b.Collection)
		if err != nil {
			return nil, err
		}
		if sum != b.Metadata.Checksum {
			return nil, fmt.Errorf("%w: checksum %s, content hashes to %s", types.ErrInvalidBundle, b.Metadata.Checksum, sum)
		}
	}
	return &b, nil
}

// Manager rebuilds a live manager from b.
func Manager(b *Bundle) (*resources.Manager, error) {
	return resources.FromCompiled(&b.Collection)
}
