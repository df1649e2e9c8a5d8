package cache

import (
	"fmt"
	"strings"
	"testing"
)

func joinWithSeparator(parts ...string) string {
	return strings.Join(parts, KeySeparator)
}

func TestBuildKey_Deterministic(t *testing.T) {
	tests := []struct {
		name       string
		typ        string
		components []string
		want       string
	}{
		{
			name: "type only",
			typ:  "listing",
			want: "listing",
		},
		{
			name:       "joins components",
			typ:        "listing",
			components: []string{"customers", "scope-1", "0", "10"},
			want:       joinWithSeparator("listing", "customers", "scope-1", "0", "10"),
		},
		{
			name:       "drops empty components",
			typ:        "entity",
			components: []string{"customers", "", "id", "", "42"},
			want:       joinWithSeparator("entity", "customers", "id", "42"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildKey(tt.typ, tt.components...)
			if got != tt.want {
				t.Errorf("BuildKey() = %v, want %v", got, tt.want)
			}
			if again := BuildKey(tt.typ, tt.components...); again != got {
				t.Errorf("BuildKey() not deterministic: %v then %v", got, again)
			}
		})
	}
}

func TestBuildKey_ComponentChangeChangesKey(t *testing.T) {
	base := BuildKey("listing", "customers", "scope", "0", "10", "asc")

	variants := [][]string{
		{"orders", "scope", "0", "10", "asc"},
		{"customers", "other", "0", "10", "asc"},
		{"customers", "scope", "5", "10", "asc"},
		{"customers", "scope", "0", "25", "asc"},
		{"customers", "scope", "0", "10", "desc"},
	}
	for _, components := range variants {
		if got := BuildKey("listing", components...); got == base {
			t.Errorf("BuildKey(%v) collided with base key %q", components, base)
		}
	}
}

func TestBuildKey_TruncatesOverLengthKeys(t *testing.T) {
	long := strings.Repeat("x", 300)

	key := BuildKey("listing", "customers", long)
	if len(key) > MaxKeyLength {
		t.Fatalf("key length = %d, want <= %d", len(key), MaxKeyLength)
	}
	if !strings.HasPrefix(key, "listing"+KeySeparator+"customers") {
		t.Errorf("truncated key lost its prefix: %q", key)
	}
}

func TestBuildKey_OverLengthKeysStayUnique(t *testing.T) {
	seen := make(map[string]string)
	for i := 0; i < 200; i++ {
		component := strings.Repeat("v", 250) + fmt.Sprintf("-%03d", i)
		key := BuildKey("listing", "customers", component)
		if len(key) > MaxKeyLength {
			t.Fatalf("key length = %d, want <= %d", len(key), MaxKeyLength)
		}
		if prev, ok := seen[key]; ok {
			t.Fatalf("distinct inputs collided: %q and %q both map to %q", prev, component, key)
		}
		seen[key] = component
	}
}

func TestDigest_Stable(t *testing.T) {
	if Digest("hello") != Digest("hello") {
		t.Error("Digest is not stable for identical input")
	}
	if Digest("hello") == Digest("hellp") {
		t.Error("Digest collided for different inputs")
	}
	if len(Digest("hello")) != 16 {
		t.Errorf("Digest length = %d, want 16", len(Digest("hello")))
	}
}

func TestValueSerializer_MapsAreOrderIndependent(t *testing.T) {
	s := NewValueSerializer()

	a := map[string]any{"city": "lisbon", "status": "active", "min_age": 21}
	b := map[string]any{"min_age": 21, "status": "active", "city": "lisbon"}

	if s.SerializeFilters(a) != s.SerializeFilters(b) {
		t.Error("equal maps serialized differently")
	}

	c := map[string]any{"city": "porto", "status": "active", "min_age": 21}
	if s.SerializeFilters(a) == s.SerializeFilters(c) {
		t.Error("different maps serialized identically")
	}
}

func TestValueSerializer_Values(t *testing.T) {
	s := NewValueSerializer()

	tests := []struct {
		name  string
		value any
		want  string
	}{
		{name: "nil", value: nil, want: "nil"},
		{name: "string", value: "hello", want: "hello"},
		{name: "int", value: 42, want: "42"},
		{name: "bool", value: true, want: "true"},
		{name: "slice", value: []string{"a", "b"}, want: "list[2]:{a,b}"},
		{name: "nil slice", value: []string(nil), want: "slice:nil"},
		{name: "empty filters", value: map[string]any{}, want: "map[0]:{}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Serialize(tt.value); got != tt.want {
				t.Errorf("Serialize(%v) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}
