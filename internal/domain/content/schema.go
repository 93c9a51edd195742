package content

import (
	"fmt"
	"sort"
)

// Kind names an entity type. History entries record it as the entity type.
type Kind string

const (
	KindProject  Kind = "project"
	KindPhoto    Kind = "photo"
	KindPage     Kind = "page"
	KindSettings Kind = "settings"
)

// SettingsID is the fixed id of the global settings record.
const SettingsID = "global"

// Schema describes how the store treats one entity kind.
type Schema struct {
	Kind       Kind
	Collection string
	// Fields is the set of type-specific fields a write may carry.
	Fields []string
	// NaturalKey, when set, lets a write without an id update the record whose
	// NaturalKey field has the same value.
	NaturalKey string
	// SingletonID pins every record of the kind to one id.
	SingletonID string
	// Normalize adjusts a stored entity for readers. It must not have side effects.
	Normalize func(Entity) (Entity, error)
	// Prepare rewrites an incoming write given the prior state (nil on create).
	Prepare func(prior *Entity, incoming Entity) (Entity, error)
}

// Allows reports whether field may be written for this kind.
func (s Schema) Allows(field string) bool {
	for _, f := range s.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// Validate rejects unknown fields and invalid statuses.
func (s Schema) Validate(e Entity) error {
	if !e.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, e.Status)
	}
	var unknown []string
	for k := range e.Fields {
		if !s.Allows(k) {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("%w: %s %v", ErrUnknownField, s.Kind, unknown)
	}
	return nil
}

// ForRead applies Normalize, if any.
func (s Schema) ForRead(e Entity) (Entity, error) {
	if s.Normalize == nil {
		return e, nil
	}
	return s.Normalize(e)
}

// Registry resolves collections to schemas.
type Registry struct {
	byName map[string]Schema
	order  []string
}

// NewRegistry builds a registry. Each schema is reachable by collection and by kind.
func NewRegistry(schemas ...Schema) *Registry {
	r := &Registry{byName: make(map[string]Schema, len(schemas)*2)}
	for _, s := range schemas {
		r.byName[s.Collection] = s
		r.byName[string(s.Kind)] = s
		r.order = append(r.order, s.Collection)
	}
	return r
}

// DefaultRegistry returns the schemas of the portfolio site.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Schema{
			Kind:       KindProject,
			Collection: "projects",
			Fields: []string{
				"title", "slug", "summary", "description", "tags", "cover",
				"gallery", "links", "year", "role", "featured", "order",
			},
			NaturalKey: "slug",
		},
		Schema{
			Kind:       KindPhoto,
			Collection: "photos",
			Fields: []string{
				"title", "src", "alt", "caption", "width", "height",
				"tags", "takenAt", "location", "order",
			},
		},
		Schema{
			Kind:       KindPage,
			Collection: "pages",
			Fields:     []string{"slug", "title", PageContentField, "seo"},
			NaturalKey: "slug",
			Normalize:  NormalizePage,
			Prepare:    PreparePageWrite,
		},
		Schema{
			Kind:        KindSettings,
			Collection:  "settings",
			Fields:      []string{"siteTitle", "tagline", "navigation", "social", "theme", "contact", "seo"},
			SingletonID: SettingsID,
		},
	)
}

// Lookup returns the schema for a collection name or kind.
func (r *Registry) Lookup(name string) (Schema, error) {
	s, ok := r.byName[name]
	if !ok {
		return Schema{}, fmt.Errorf("%w: %q", ErrUnknownCollection, name)
	}
	return s, nil
}

// Collections lists collection names in registration order.
func (r *Registry) Collections() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
