// Package jsondoc provides insertion-ordered JSON documents for building
// catalogue records whose key order is part of the output contract.
package jsondoc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Object is a JSON object that preserves key insertion order when marshaled.
type Object struct {
	keys   []string
	values map[string]any
}

// NewObject creates an empty ordered object.
func NewObject() *Object {
	return &Object{
		values: make(map[string]any),
	}
}

// Set stores a value under key, appending the key if it is new.
func (object *Object) Set(key string, value any) {
	if _, exists := object.values[key]; !exists {
		object.keys = append(object.keys, key)
	}
	object.values[key] = value
}

// Get returns the value stored under key.
func (object *Object) Get(key string) (any, bool) {
	value, exists := object.values[key]
	return value, exists
}

// Has reports whether key is present.
func (object *Object) Has(key string) bool {
	_, exists := object.values[key]
	return exists
}

// Delete removes key and its value, reporting whether it was present.
func (object *Object) Delete(key string) bool {
	if _, exists := object.values[key]; !exists {
		return false
	}
	delete(object.values, key)
	for i, existing := range object.keys {
		if existing == key {
			object.keys = append(object.keys[:i], object.keys[i+1:]...)
			break
		}
	}
	return true
}

// InsertAt stores a value under key at the given position in the key order.
// The position is clamped to the current bounds. If the key already exists
// its value is replaced and its position is unchanged.
func (object *Object) InsertAt(position int, key string, value any) {
	if _, exists := object.values[key]; exists {
		object.values[key] = value
		return
	}
	if position < 0 {
		position = 0
	}
	if position > len(object.keys) {
		position = len(object.keys)
	}
	object.keys = append(object.keys, "")
	copy(object.keys[position+1:], object.keys[position:])
	object.keys[position] = key
	object.values[key] = value
}

// Keys returns the keys in insertion order.
func (object *Object) Keys() []string {
	keys := make([]string, len(object.keys))
	copy(keys, object.keys)
	return keys
}

// Clone returns a deep copy of the object. Nested objects and arrays
// are duplicated; scalar values are shared.
func (object *Object) Clone() *Object {
	duplicate := NewObject()
	for _, key := range object.keys {
		duplicate.Set(key, cloneValue(object.values[key]))
	}
	return duplicate
}

func cloneValue(value any) any {
	switch typed := value.(type) {
	case *Object:
		return typed.Clone()
	case []any:
		items := make([]any, len(typed))
		for index, item := range typed {
			items[index] = cloneValue(item)
		}
		return items
	default:
		return value
	}
}

// Len returns the number of keys.
func (object *Object) Len() int {
	return len(object.keys)
}

// MarshalJSON encodes the object with keys in insertion order. String values
// are written without HTML escaping so markup such as "<p>" survives intact.
func (object *Object) MarshalJSON() ([]byte, error) {
	var buffer bytes.Buffer
	buffer.WriteByte('{')
	for i, key := range object.keys {
		if i > 0 {
			buffer.WriteByte(',')
		}
		if err := encodeValue(&buffer, key); err != nil {
			return nil, err
		}
		buffer.WriteByte(':')
		if err := encodeValue(&buffer, object.values[key]); err != nil {
			return nil, err
		}
	}
	buffer.WriteByte('}')
	return buffer.Bytes(), nil
}

// encodeValue writes a single compact JSON value without HTML escaping.
func encodeValue(buffer *bytes.Buffer, value any) error {
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(value); err != nil {
		return err
	}
	// Encode appends a newline after every value; drop it.
	buffer.Truncate(buffer.Len() - 1)
	return nil
}

// UnmarshalJSON decodes a JSON object preserving its key order. Nested
// objects decode to *Object, arrays to []any, and numbers to json.Number.
func (object *Object) UnmarshalJSON(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	token, err := decoder.Token()
	if err != nil {
		return fmt.Errorf("failed to read JSON token: %w", err)
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected JSON object, got %v", token)
	}

	decoded, err := decodeObject(decoder)
	if err != nil {
		return err
	}
	*object = *decoded
	return nil
}

// Parse decodes data into an ordered object. The top-level value must be a
// JSON object.
func Parse(data []byte) (*Object, error) {
	object := NewObject()
	if err := object.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return object, nil
}

// decodeObject reads object members after the opening brace has been consumed.
func decodeObject(decoder *json.Decoder) (*Object, error) {
	object := NewObject()
	for decoder.More() {
		keyToken, err := decoder.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to read object key: %w", err)
		}
		key, ok := keyToken.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", keyToken)
		}
		value, err := decodeValue(decoder)
		if err != nil {
			return nil, err
		}
		object.Set(key, value)
	}
	if _, err := decoder.Token(); err != nil {
		return nil, fmt.Errorf("failed to read object end: %w", err)
	}
	return object, nil
}

// decodeArray reads array elements after the opening bracket has been consumed.
func decodeArray(decoder *json.Decoder) ([]any, error) {
	values := []any{}
	for decoder.More() {
		value, err := decodeValue(decoder)
		if err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	if _, err := decoder.Token(); err != nil {
		return nil, fmt.Errorf("failed to read array end: %w", err)
	}
	return values, nil
}

// decodeValue reads a single value of any JSON type.
func decodeValue(decoder *json.Decoder) (any, error) {
	token, err := decoder.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to read JSON value: %w", err)
	}
	if delim, ok := token.(json.Delim); ok {
		switch delim {
		case '{':
			return decodeObject(decoder)
		case '[':
			return decodeArray(decoder)
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", delim)
		}
	}
	return token, nil
}

// Encode renders a value as two-space-indented JSON without HTML escaping
// and without a trailing newline, the format published record files use.
func Encode(value any) ([]byte, error) {
	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(value); err != nil {
		return nil, fmt.Errorf("failed to encode JSON: %w", err)
	}
	return bytes.TrimRight(buffer.Bytes(), "\n"), nil
}
