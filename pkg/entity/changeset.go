package entity

// BuildChangeset returns the payload that persisting e transmits.
//
// A new entity sends every writable field plus its id. A persisted entity
// sends only fields whose value differs from the loaded snapshot; removed
// fields are sent as null. Nested entities and collection items contribute
// a payload only when they are new or changed themselves, and always carry
// their id. Read-only fields declared in schema are never sent.
func BuildChangeset(e *Entity, schema *Schema) map[string]interface{} {
	if e == nil {
		return nil
	}

	def := schema.Definition(e.name)
	changes := make(map[string]interface{})

	for field, value := range e.fields {
		if def.IsReadOnly(field) {
			continue
		}

		switch v := value.(type) {
		case *Entity:
			if payload, ok := nestedPayload(e, field, v, schema); ok {
				changes[field] = payload
			}
		case *EntityCollection:
			if v == nil {
				if e.isNew || e.IsChanged(field) {
					changes[field] = nil
				}

				continue
			}

			if items := collectionPayload(v, schema); len(items) > 0 {
				changes[field] = items
			}
		default:
			if e.isNew || e.IsChanged(field) {
				changes[field] = cloneJSONValue(value)
			}
		}
	}

	if !e.isNew {
		for field := range e.origin {
			if _, ok := e.fields[field]; !ok && !def.IsReadOnly(field) {
				changes[field] = nil
			}
		}

		if len(changes) == 0 {
			return changes
		}
	}

	changes[fieldID] = e.id

	return changes
}

// nestedPayload decides what a to-one association contributes.
func nestedPayload(parent *Entity, field string, child *Entity, schema *Schema) (interface{}, bool) {
	if child == nil {
		if parent.isNew || parent.IsChanged(field) {
			return nil, true
		}

		return nil, false
	}

	payload := BuildChangeset(child, schema)

	if child.isNew || len(payload) > 0 {
		return payload, true
	}

	// The parent points at a different persisted entity now.
	if parent.isNew || parent.IsChanged(field) {
		return map[string]interface{}{fieldID: child.id}, true
	}

	return nil, false
}

func collectionPayload(c *EntityCollection, schema *Schema) []interface{} {
	var items []interface{}

	for _, item := range c.items {
		payload := BuildChangeset(item, schema)
		if item.isNew || len(payload) > 0 {
			items = append(items, payload)
		}
	}

	return items
}
