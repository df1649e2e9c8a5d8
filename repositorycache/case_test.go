package repositorycache

import "testing"

func TestToSnake(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"Device", "device"},
		{"DeviceGroup", "device_group"},
		{"HTTPServer", "http_server"},
		{"userID", "user_id"},
		{"already_snake", "already_snake"},
		{"kebab-case", "kebab_case"},
		{"With Space", "with_space"},
		{"V2Config", "v2_config"},
		{"*ptr.Name[T]", "ptr_name_t"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := toSnake(tt.in); got != tt.want {
				t.Errorf("toSnake(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDedupeStrings(t *testing.T) {
	got := dedupeStrings([]string{"a", "", "b", "a", "c", "b"})
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("dedupeStrings = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("dedupeStrings[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
