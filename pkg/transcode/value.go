package transcode

import "strings"

// Kind identifies the shape of a Value.
type Kind int

const (
	KindScalar Kind = iota
	KindMapping
	KindArray
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindMapping:
		return "mapping"
	case KindArray:
		return "array"
	default:
		return "invalid"
	}
}

// Value is a generic structured value: a Scalar, an ordered Mapping or an Array.
//
// Accessors are nil-safe so consumers can navigate permissively:
// v.Field("a").Field("b").Text() yields "" when any step is missing.
type Value struct {
	kind   Kind
	text   string
	keys   []string
	fields map[string]*Value
	items  []*Value
}

// Scalar returns a scalar holding text.
func Scalar(text string) *Value {
	return &Value{kind: KindScalar, text: text}
}

// NewMapping returns an empty mapping.
func NewMapping() *Value {
	return &Value{kind: KindMapping, fields: map[string]*Value{}}
}

// NewArray returns an array of items.
func NewArray(items ...*Value) *Value {
	return &Value{kind: KindArray, items: items}
}

// Kind returns the value's kind. A nil Value reports KindScalar.
func (v *Value) Kind() Kind {
	if v == nil {
		return KindScalar
	}
	return v.kind
}

// IsScalar, IsMapping and IsArray are false for a nil Value.
func (v *Value) IsScalar() bool  { return v != nil && v.kind == KindScalar }
func (v *Value) IsMapping() bool { return v != nil && v.kind == KindMapping }
func (v *Value) IsArray() bool   { return v != nil && v.kind == KindArray }

// Text returns the scalar text, or "" for any other kind.
func (v *Value) Text() string {
	if !v.IsScalar() {
		return ""
	}
	return v.text
}

// Keys returns mapping keys in insertion order.
func (v *Value) Keys() []string {
	if !v.IsMapping() {
		return nil
	}
	return append([]string(nil), v.keys...)
}

// Get returns the mapping entry for key.
func (v *Value) Get(key string) (*Value, bool) {
	if !v.IsMapping() {
		return nil, false
	}
	child, ok := v.fields[key]
	return child, ok
}

// Field returns the mapping entry for key, or nil.
func (v *Value) Field(key string) *Value {
	child, _ := v.Get(key)
	return child
}

// Path follows a chain of mapping keys.
func (v *Value) Path(keys ...string) *Value {
	cur := v
	for _, k := range keys {
		cur = cur.Field(k)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// Items returns the array elements, or nil for any other kind.
func (v *Value) Items() []*Value {
	if !v.IsArray() {
		return nil
	}
	return v.items
}

// List normalizes single-or-repeated shapes into a sequence.
//
// A nil Value yields no items, an Array yields its elements, and any other
// value yields a one-element slice. Consumers of transcoded documents should
// read repeatable elements through List.
func (v *Value) List() []*Value {
	switch {
	case v == nil:
		return nil
	case v.kind == KindArray:
		return v.items
	default:
		return []*Value{v}
	}
}

// Len returns the number of mapping entries, array items or scalar bytes.
func (v *Value) Len() int {
	switch {
	case v == nil:
		return 0
	case v.kind == KindMapping:
		return len(v.keys)
	case v.kind == KindArray:
		return len(v.items)
	default:
		return len(v.text)
	}
}

// Set inserts or replaces a mapping entry. New keys are appended to the
// insertion order; replaced keys keep their position.
func (v *Value) Set(key string, child *Value) {
	if !v.IsMapping() {
		panic("transcode: Set on " + v.Kind().String())
	}
	if _, ok := v.fields[key]; !ok {
		v.keys = append(v.keys, key)
	}
	v.fields[key] = child
}

// Append adds an element to an array.
func (v *Value) Append(child *Value) {
	if !v.IsArray() {
		panic("transcode: Append on " + v.Kind().String())
	}
	v.items = append(v.items, child)
}

// Equal reports whether two values have the same structure and content,
// including mapping key order.
func (v *Value) Equal(o *Value) bool {
	if v == nil || o == nil {
		return v == o
	}
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindScalar:
		return v.text == o.text
	case KindArray:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	default:
		if len(v.keys) != len(o.keys) {
			return false
		}
		for i, k := range v.keys {
			if o.keys[i] != k || !v.fields[k].Equal(o.fields[k]) {
				return false
			}
		}
		return true
	}
}

// String renders the value as compact JSON.
func (v *Value) String() string {
	var b strings.Builder
	writeJSON(&b, v)
	return b.String()
}
