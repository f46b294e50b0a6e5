package entity

import (
	"strings"
	"unicode"
)

// Association describes a relation field of an entity.
type Association struct {
	// Entity is the target entity name.
	Entity string
	// ToMany marks collection valued associations.
	ToMany bool
}

// Definition is an optional field descriptor set for one entity name. The
// data layer only uses it for hydration and change tracking; full schema
// validation belongs to the server.
type Definition struct {
	Name         string
	Associations map[string]Association
	ReadOnly     []string
}

// Association returns the association declared for field.
func (d *Definition) Association(field string) (Association, bool) {
	if d == nil {
		return Association{}, false
	}

	assoc, ok := d.Associations[field]

	return assoc, ok
}

// IsReadOnly reports whether field is never written back.
func (d *Definition) IsReadOnly(field string) bool {
	if d == nil {
		return false
	}

	for _, ro := range d.ReadOnly {
		if ro == field {
			return true
		}
	}

	return false
}

// Schema holds definitions by entity name. Build it before sharing it
// between goroutines; lookups do not lock.
type Schema struct {
	definitions map[string]*Definition
}

// NewSchema creates a schema from definitions.
func NewSchema(definitions ...Definition) *Schema {
	s := &Schema{definitions: make(map[string]*Definition, len(definitions))}
	for _, def := range definitions {
		s.Register(def)
	}

	return s
}

// Register adds or replaces a definition.
func (s *Schema) Register(def Definition) {
	d := def
	s.definitions[def.Name] = &d
}

// Definition returns the definition for entityName or nil. A nil schema has
// no definitions.
func (s *Schema) Definition(entityName string) *Definition {
	if s == nil {
		return nil
	}

	return s.definitions[entityName]
}

// EntitySource returns the default collection endpoint of an entity name:
// "order_line_item" maps to "/order-line-item".
func EntitySource(entityName string) string {
	return "/" + strings.ReplaceAll(entityName, "_", "-")
}

// kebabCase converts a field name such as "accessKeys" to "access-keys".
func kebabCase(field string) string {
	return strings.ReplaceAll(snakeCase(field), "_", "-")
}

// snakeCase converts "accessKeys" to "access_keys".
func snakeCase(field string) string {
	var b strings.Builder

	for i, r := range field {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}

			b.WriteRune(unicode.ToLower(r))

			continue
		}

		b.WriteRune(r)
	}

	return b.String()
}

// singular is a best effort guess used when no definition names the target
// entity of a to-many field.
func singular(name string) string {
	switch {
	case strings.HasSuffix(name, "ies"):
		return strings.TrimSuffix(name, "ies") + "y"
	case strings.HasSuffix(name, "sses"), strings.HasSuffix(name, "xes"),
		strings.HasSuffix(name, "ches"), strings.HasSuffix(name, "shes"):
		return strings.TrimSuffix(name, "es")
	case strings.HasSuffix(name, "ss"):
		return name
	case strings.HasSuffix(name, "s"):
		return strings.TrimSuffix(name, "s")
	}

	return name
}
