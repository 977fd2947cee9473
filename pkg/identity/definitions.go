package identity

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrDefinitionNotFound is returned when no attribute definition is
// registered for a name.
var ErrDefinitionNotFound = errors.New("attribute definition not found")

// AttributeDefinition fixes the value kind of one attribute name. The kind
// is resolved once at this boundary; reconciliation never inspects runtime
// types.
type AttributeDefinition struct {
	Name string
	Kind ValueKind
}

// DefinitionSource looks up attribute definitions, typically from the
// attribute-definition registry owned by the surrounding platform.
type DefinitionSource interface {
	AttributeDefinition(ctx context.Context, name string) (AttributeDefinition, error)
}

// DefinitionRegistry caches attribute definitions in front of a
// DefinitionSource. Definitions are immutable once created, so cached
// entries never expire.
type DefinitionRegistry struct {
	source DefinitionSource
	cache  *lru.Cache[string, AttributeDefinition]
}

const definitionCacheSize = 1024

// NewDefinitionRegistry wraps a definition source with an LRU cache.
func NewDefinitionRegistry(source DefinitionSource) (*DefinitionRegistry, error) {
	cache, err := lru.New[string, AttributeDefinition](definitionCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create definition cache: %w", err)
	}
	return &DefinitionRegistry{source: source, cache: cache}, nil
}

// Resolve returns the definition for an attribute name.
func (r *DefinitionRegistry) Resolve(ctx context.Context, name string) (AttributeDefinition, error) {
	if def, ok := r.cache.Get(name); ok {
		return def, nil
	}
	def, err := r.source.AttributeDefinition(ctx, name)
	if err != nil {
		return AttributeDefinition{}, err
	}
	r.cache.Add(name, def)
	return def, nil
}
