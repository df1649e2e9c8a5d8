package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = "::"

// MaxKeyLength bounds the derived key length. Keys longer than this are
// truncated to a safe prefix and suffixed with a digest of the full
// pre-truncation string, so distinct inputs keep distinct keys while
// respecting backend key-length limits.
const MaxKeyLength = 172

// BuildKey derives a cache key from a type tag plus variadic string
// components. Empty components are dropped, the rest are joined with
// KeySeparator. The mapping is pure and deterministic: identical inputs
// always produce the same key, and any differing input produces a
// different key (modulo xxhash collision on over-length keys).
func BuildKey(typ string, components ...string) string {
	parts := make([]string, 0, len(components)+1)
	if typ != "" {
		parts = append(parts, typ)
	}
	for _, c := range components {
		if c == "" {
			continue
		}
		parts = append(parts, c)
	}

	key := strings.Join(parts, KeySeparator)
	if len(key) <= MaxKeyLength {
		return key
	}

	digest := Digest(key)
	cut := MaxKeyLength - len(KeySeparator) - len(digest)
	return key[:cut] + KeySeparator + digest
}

// Digest returns a short stable content hash of s, used for key
// truncation and for folding free-text components (search terms,
// filter maps) into listing keys.
func Digest(s string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(s))
}

// ValueSerializer turns arbitrary filter values into deterministic
// strings so they can participate in key derivation. Maps are rendered
// with sorted keys, slices recursively, structs by exported field. It
// prioritizes stability over fidelity: when JSON marshaling fails it
// falls back to type information rather than erroring.
type ValueSerializer struct{}

// NewValueSerializer creates the default value serializer.
func NewValueSerializer() *ValueSerializer {
	return &ValueSerializer{}
}

// SerializeFilters renders a filter map as a single deterministic
// string, suitable for hashing into a listing cache key.
func (s *ValueSerializer) SerializeFilters(filters map[string]any) string {
	if len(filters) == 0 {
		return ""
	}
	return s.Serialize(filters)
}

// Serialize renders a single value deterministically.
func (s *ValueSerializer) Serialize(v any) string {
	if v == nil {
		return "nil"
	}

	rv := reflect.ValueOf(v)
	rt := reflect.TypeOf(v)

	switch rt.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return "nil"
		}
		return s.Serialize(rv.Elem().Interface())

	case reflect.Slice:
		if rv.IsNil() {
			return "slice:nil"
		}
		return s.serializeList(rv)

	case reflect.Array:
		return s.serializeList(rv)

	case reflect.Map:
		if rv.IsNil() {
			return "map:nil"
		}
		return s.serializeMap(rv)

	case reflect.Struct:
		return s.serializeStruct(rv, rt)

	case reflect.Interface:
		if rv.IsNil() {
			return "interface:nil"
		}
		return s.Serialize(rv.Elem().Interface())
	}

	if isBasicKind(rt.Kind()) {
		return fmt.Sprintf("%v", v)
	}

	return s.jsonFallback(v)
}

func (s *ValueSerializer) serializeList(rv reflect.Value) string {
	length := rv.Len()
	parts := make([]string, length)
	for i := 0; i < length; i++ {
		parts[i] = s.Serialize(rv.Index(i).Interface())
	}
	return fmt.Sprintf("list[%d]:{%s}", length, strings.Join(parts, ","))
}

// serializeMap renders key-value pairs in sorted key order so the same
// map always produces the same string.
func (s *ValueSerializer) serializeMap(rv reflect.Value) string {
	keys := rv.MapKeys()

	type pair struct {
		key   string
		value reflect.Value
	}
	pairs := make([]pair, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, pair{key: s.Serialize(k.Interface()), value: rv.MapIndex(k)})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })

	rendered := make([]string, len(pairs))
	for i, p := range pairs {
		rendered[i] = fmt.Sprintf("%s=%s", p.key, s.Serialize(p.value.Interface()))
	}
	return fmt.Sprintf("map[%d]:{%s}", len(rendered), strings.Join(rendered, ","))
}

func (s *ValueSerializer) serializeStruct(rv reflect.Value, rt reflect.Type) string {
	parts := make([]string, 0, rv.NumField())
	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		fv := rv.Field(i)
		if !fv.CanInterface() {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s:%s", field.Name, s.Serialize(fv.Interface())))
	}
	return fmt.Sprintf("struct:{%s}", strings.Join(parts, ","))
}

func (s *ValueSerializer) jsonFallback(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("fallback:%s", reflect.TypeOf(v).String())
	}
	return fmt.Sprintf("json:%s", string(data))
}

func isBasicKind(kind reflect.Kind) bool {
	switch kind {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.String:
		return true
	default:
		return false
	}
}
