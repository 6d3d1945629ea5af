package jsondoc

import (
	"strconv"
	"strings"
)

// parsePathPart splits a path segment such as "relatedMaterial[0]" into its
// key and optional array index. Segments without a well-formed numeric index
// are treated as plain keys.
func parsePathPart(part string) (string, int, bool) {
	open := strings.LastIndex(part, "[")
	if open <= 0 || !strings.HasSuffix(part, "]") {
		return part, 0, false
	}
	index, err := strconv.Atoi(part[open+1 : len(part)-1])
	if err != nil || index < 0 {
		return part, 0, false
	}
	return part[:open], index, true
}

// GetPath resolves a dotted path such as "record.scopeContent.description"
// or "record.relatedMaterial[0].description" against an object. It returns
// false when any segment is missing or of the wrong shape.
func GetPath(object *Object, path string) (any, bool) {
	var current any = object
	for _, part := range strings.Split(path, ".") {
		key, index, hasIndex := parsePathPart(part)

		parent, ok := current.(*Object)
		if !ok {
			return nil, false
		}
		value, exists := parent.Get(key)
		if !exists {
			return nil, false
		}
		current = value

		if hasIndex {
			elements, ok := current.([]any)
			if !ok || index >= len(elements) {
				return nil, false
			}
			current = elements[index]
		}
	}
	return current, true
}

// SetPath stores a value at a dotted path. Intermediate segments must
// already exist; the final key is created on its parent object if absent.
// It reports whether the value was stored.
func SetPath(object *Object, path string, value any) bool {
	parts := strings.Split(path, ".")
	var current any = object
	for i, part := range parts {
		key, index, hasIndex := parsePathPart(part)
		last := i == len(parts)-1

		parent, ok := current.(*Object)
		if !ok {
			return false
		}

		if last {
			if !hasIndex {
				parent.Set(key, value)
				return true
			}
			existing, exists := parent.Get(key)
			if !exists {
				return false
			}
			elements, ok := existing.([]any)
			if !ok || index >= len(elements) {
				return false
			}
			elements[index] = value
			return true
		}

		next, exists := parent.Get(key)
		if !exists || next == nil {
			return false
		}
		current = next
		if hasIndex {
			elements, ok := current.([]any)
			if !ok || index >= len(elements) {
				return false
			}
			current = elements[index]
		}
	}
	return false
}
