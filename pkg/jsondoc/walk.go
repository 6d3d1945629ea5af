package jsondoc

import "encoding/json"

// WalkStrings applies fn to every string value reachable from value,
// rewriting objects and arrays in place, and returns the possibly replaced
// value. Non-string scalars are returned unchanged.
func WalkStrings(value any, fn func(string) string) any {
	switch typed := value.(type) {
	case *Object:
		for _, key := range typed.keys {
			typed.values[key] = WalkStrings(typed.values[key], fn)
		}
		return typed
	case []any:
		for i, element := range typed {
			typed[i] = WalkStrings(element, fn)
		}
		return typed
	case string:
		return fn(typed)
	default:
		return value
	}
}

// Prune removes null values and containers that become empty, working bottom
// up. It returns nil when the value itself prunes away entirely. Scalars
// other than nil always survive, including false, zero, and empty strings.
func Prune(value any) any {
	switch typed := value.(type) {
	case nil:
		return nil
	case *Object:
		pruned := NewObject()
		for _, key := range typed.keys {
			cleaned := Prune(typed.values[key])
			if cleaned == nil || isEmptyContainer(cleaned) {
				continue
			}
			pruned.Set(key, cleaned)
		}
		if pruned.Len() == 0 {
			return nil
		}
		return pruned
	case []any:
		pruned := []any{}
		for _, element := range typed {
			cleaned := Prune(element)
			if cleaned == nil || isEmptyContainer(cleaned) {
				continue
			}
			pruned = append(pruned, cleaned)
		}
		if len(pruned) == 0 {
			return nil
		}
		return pruned
	default:
		return value
	}
}

// isEmptyContainer reports whether value is an object or array with no
// elements.
func isEmptyContainer(value any) bool {
	switch typed := value.(type) {
	case *Object:
		return typed.Len() == 0
	case []any:
		return len(typed) == 0
	default:
		return false
	}
}

// FindInt locates key like Find and coerces the value to an int. Numbers
// survive the search whether they are native ints or values decoded from
// JSON.
func FindInt(value any, key string) (int, bool) {
	found, ok := Find(value, key)
	if !ok {
		return 0, false
	}
	switch typed := found.(type) {
	case int:
		return typed, true
	case int64:
		return int(typed), true
	case json.Number:
		parsed, err := typed.Int64()
		if err != nil {
			return 0, false
		}
		return int(parsed), true
	case float64:
		return int(typed), true
	}
	return 0, false
}

// Find returns the first value stored under key anywhere in the structure,
// searching objects depth first in key order.
func Find(value any, key string) (any, bool) {
	switch typed := value.(type) {
	case *Object:
		for _, existing := range typed.keys {
			if existing == key {
				return typed.values[existing], true
			}
			if found, ok := Find(typed.values[existing], key); ok {
				return found, ok
			}
		}
	case []any:
		for _, element := range typed {
			if found, ok := Find(element, key); ok {
				return found, ok
			}
		}
	}
	return nil, false
}
