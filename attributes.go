package spanz

import (
	"strconv"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// AttributeType tags the variant held by an AttributeValue.
type AttributeType int

// Attribute value variants.
const (
	AttributeTypeInvalid AttributeType = iota
	AttributeTypeString
	AttributeTypeBool
	AttributeTypeInt64
	AttributeTypeFloat64
)

// String returns the variant name.
func (t AttributeType) String() string {
	switch t {
	case AttributeTypeString:
		return "string"
	case AttributeTypeBool:
		return "bool"
	case AttributeTypeInt64:
		return "int64"
	case AttributeTypeFloat64:
		return "float64"
	default:
		return "invalid"
	}
}

// AttributeValue is an immutable typed value attached to spans, annotations and links.
//
//nolint:govet // Field order keeps the tag first for readability
type AttributeValue struct {
	typ AttributeType
	s   string
	i   int64
	f   float64
	b   bool
}

// StringAttribute wraps a string value.
func StringAttribute(v string) AttributeValue {
	return AttributeValue{typ: AttributeTypeString, s: v}
}

// BoolAttribute wraps a bool value.
func BoolAttribute(v bool) AttributeValue {
	return AttributeValue{typ: AttributeTypeBool, b: v}
}

// Int64Attribute wraps an int64 value.
func Int64Attribute(v int64) AttributeValue {
	return AttributeValue{typ: AttributeTypeInt64, i: v}
}

// Float64Attribute wraps a float64 value.
func Float64Attribute(v float64) AttributeValue {
	return AttributeValue{typ: AttributeTypeFloat64, f: v}
}

// Type returns the held variant.
func (v AttributeValue) Type() AttributeType { return v.typ }

// AsString returns the string variant, or "" for other variants.
func (v AttributeValue) AsString() string { return v.s }

// AsBool returns the bool variant, or false for other variants.
func (v AttributeValue) AsBool() bool { return v.b }

// AsInt64 returns the int64 variant, or 0 for other variants.
func (v AttributeValue) AsInt64() int64 { return v.i }

// AsFloat64 returns the float64 variant, or 0 for other variants.
func (v AttributeValue) AsFloat64() float64 { return v.f }

// Interface returns the held value as an untyped Go value.
func (v AttributeValue) Interface() any {
	switch v.typ {
	case AttributeTypeString:
		return v.s
	case AttributeTypeBool:
		return v.b
	case AttributeTypeInt64:
		return v.i
	case AttributeTypeFloat64:
		return v.f
	default:
		return nil
	}
}

// String formats the value for logs and tags.
func (v AttributeValue) String() string {
	switch v.typ {
	case AttributeTypeString:
		return v.s
	case AttributeTypeBool:
		return strconv.FormatBool(v.b)
	case AttributeTypeInt64:
		return strconv.FormatInt(v.i, 10)
	case AttributeTypeFloat64:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	default:
		return ""
	}
}

// attributesWithCapacity is an access-ordered map that evicts the least
// recently touched key once capacity is exceeded. Not safe for concurrent use.
type attributesWithCapacity struct {
	lru           *simplelru.LRU[string, AttributeValue]
	totalRecorded int
}

func newAttributesWithCapacity(capacity int) *attributesWithCapacity {
	if capacity < 1 {
		capacity = 1
	}
	// NewLRU only fails for a non-positive size.
	lru, _ := simplelru.NewLRU[string, AttributeValue](capacity, nil)
	return &attributesWithCapacity{lru: lru}
}

// put inserts or touches key. Only new keys count towards totalRecorded, so
// rewriting a retained key never shows up as a drop.
func (a *attributesWithCapacity) put(key string, value AttributeValue) {
	if !a.lru.Contains(key) {
		a.totalRecorded++
	}
	a.lru.Add(key, value)
}

func (a *attributesWithCapacity) putAll(attrs map[string]AttributeValue) {
	for k, v := range attrs {
		a.put(k, v)
	}
}

func (a *attributesWithCapacity) len() int {
	return a.lru.Len()
}

func (a *attributesWithCapacity) dropped() int {
	return a.totalRecorded - a.lru.Len()
}

// keys returns keys from least to most recently touched.
func (a *attributesWithCapacity) keys() []string {
	return a.lru.Keys()
}

func (a *attributesWithCapacity) snapshot() map[string]AttributeValue {
	out := make(map[string]AttributeValue, a.lru.Len())
	for _, k := range a.lru.Keys() {
		if v, ok := a.lru.Peek(k); ok {
			out[k] = v
		}
	}
	return out
}

// boundedAttributes copies at most capacity entries of attrs, counting the
// rest as dropped. Used for link attributes, which are fixed at creation.
func boundedAttributes(attrs map[string]AttributeValue, capacity int) (map[string]AttributeValue, int) {
	if len(attrs) == 0 {
		return nil, 0
	}
	a := newAttributesWithCapacity(capacity)
	a.putAll(attrs)
	return a.snapshot(), a.dropped()
}
