package identity

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ValueKind selects the variant of an attribute value.
type ValueKind int

const (
	KindScalar ValueKind = iota
	KindList
	KindMap
)

// String implements fmt.Stringer for log output.
func (k ValueKind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return fmt.Sprintf("ValueKind(%d)", int(k))
	}
}

// ParseValueKind parses the kind name used in attribute definitions.
func ParseValueKind(s string) (ValueKind, error) {
	switch s {
	case "scalar", "string":
		return KindScalar, nil
	case "list":
		return KindList, nil
	case "map":
		return KindMap, nil
	default:
		return KindScalar, fmt.Errorf("unknown attribute value kind %q", s)
	}
}

// Value is a tagged attribute value: a plain scalar, an ordered list of
// strings or a string-keyed mapping. The zero Value is an empty scalar.
type Value struct {
	kind   ValueKind
	scalar string
	list   []string
	dict   map[string]string
}

// ScalarValue wraps a plain string.
func ScalarValue(s string) Value {
	return Value{kind: KindScalar, scalar: s}
}

// ListValue wraps a list of strings. The slice is copied.
func ListValue(items ...string) Value {
	return Value{kind: KindList, list: append([]string(nil), items...)}
}

// MapValue wraps a string mapping. The map is copied.
func MapValue(m map[string]string) Value {
	d := make(map[string]string, len(m))
	for k, v := range m {
		d[k] = v
	}
	return Value{kind: KindMap, dict: d}
}

// Kind reports the variant of the value.
func (v Value) Kind() ValueKind { return v.kind }

// Scalar returns the scalar payload; empty for non-scalar values.
func (v Value) Scalar() string { return v.scalar }

// List returns a copy of the list payload.
func (v Value) List() []string { return append([]string(nil), v.list...) }

// Map returns a copy of the mapping payload.
func (v Value) Map() map[string]string {
	m := make(map[string]string, len(v.dict))
	for k, val := range v.dict {
		m[k] = val
	}
	return m
}

// IsEmpty reports whether the value carries no payload.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case KindScalar:
		return v.scalar == ""
	case KindList:
		return len(v.list) == 0
	case KindMap:
		return len(v.dict) == 0
	}
	return true
}

// Equal compares two values by content. Values of different kinds are never
// equal; list order is significant, map key order is not.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindScalar:
		return v.scalar == o.scalar
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if v.list[i] != o.list[i] {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.dict) != len(o.dict) {
			return false
		}
		for k, val := range v.dict {
			other, ok := o.dict[k]
			if !ok || other != val {
				return false
			}
		}
		return true
	}
	return false
}

// Merge unions another value of the same kind into this one and returns the
// result. For lists the receiver's elements come first and duplicates from
// the other value are dropped. For mappings the receiver's entries win on
// key conflicts. Scalar values do not merge; the receiver is returned.
func (v Value) Merge(o Value) Value {
	if v.kind != o.kind {
		return v
	}
	switch v.kind {
	case KindList:
		merged := append([]string(nil), v.list...)
		seen := make(map[string]struct{}, len(merged))
		for _, item := range merged {
			seen[item] = struct{}{}
		}
		for _, item := range o.list {
			if _, ok := seen[item]; !ok {
				merged = append(merged, item)
				seen[item] = struct{}{}
			}
		}
		return Value{kind: KindList, list: merged}
	case KindMap:
		merged := make(map[string]string, len(v.dict)+len(o.dict))
		for k, val := range o.dict {
			merged[k] = val
		}
		for k, val := range v.dict {
			merged[k] = val
		}
		return Value{kind: KindMap, dict: merged}
	default:
		return v
	}
}

// ParseValue decodes a string-encoded attribute value of the given kind.
// Scalars are the raw string, lists are JSON arrays and mappings are JSON
// objects.
func ParseValue(kind ValueKind, raw string) (Value, error) {
	switch kind {
	case KindScalar:
		return ScalarValue(raw), nil
	case KindList:
		if raw == "" {
			return Value{kind: KindList}, nil
		}
		var items []string
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			return Value{}, fmt.Errorf("invalid list value %q: %w", raw, err)
		}
		return Value{kind: KindList, list: items}, nil
	case KindMap:
		if raw == "" {
			return Value{kind: KindMap}, nil
		}
		var m map[string]string
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return Value{}, fmt.Errorf("invalid map value %q: %w", raw, err)
		}
		return Value{kind: KindMap, dict: m}, nil
	default:
		return Value{}, fmt.Errorf("unknown attribute value kind %v", kind)
	}
}

// Encode renders the value back to its string encoding. Maps are encoded
// with sorted keys so equal values always encode identically.
func (v Value) Encode() string {
	switch v.kind {
	case KindScalar:
		return v.scalar
	case KindList:
		if v.list == nil {
			return "[]"
		}
		b, _ := json.Marshal(v.list)
		return string(b)
	case KindMap:
		keys := make([]string, 0, len(v.dict))
		for k := range v.dict {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make([]byte, 0, 16)
		ordered = append(ordered, '{')
		for i, k := range keys {
			if i > 0 {
				ordered = append(ordered, ',')
			}
			kb, _ := json.Marshal(k)
			vb, _ := json.Marshal(v.dict[k])
			ordered = append(ordered, kb...)
			ordered = append(ordered, ':')
			ordered = append(ordered, vb...)
		}
		ordered = append(ordered, '}')
		return string(ordered)
	}
	return ""
}
