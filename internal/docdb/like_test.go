package docdb

import "testing"

func TestLike(t *testing.T) {
	tests := []struct {
		text    any
		pattern any
		want    bool
	}{
		{"Alice", "A%", true},
		{"Anna", "A%", true},
		{"Bob", "A%", false},
		{"Alice", "A_ice", true},
		{"Aice", "A_ice", false},
		{"Alicee", "A_ice", false},
		{"", "", true},
		{"", "%", true},
		{"", "%%", true},
		{"", "_", false},
		{"a", "", false},
		{"abc", "%c", true},
		{"abc", "%b%", true},
		{"abc", "a%b%c", true},
		{"abcbc", "a%bc", true},
		{"abcbd", "a%bc", false},
		{"mississippi", "%iss%ppi", true},
		{"mississippi", "m%s_s%i", true},
		{"alice", "A%", false},
		{"100%", "100%", true},
		{"%ab", "%b", true},
		{"a%bc", "a%c", true},
		{"%x", "%", true},
		{"%", "%%", true},
		{"A", "___", false},
		{"abc", "___", true},
		{42, "4%", false},
		{"42", 4, false},
		{nil, "%", false},
	}
	for _, tt := range tests {
		if got := Like(tt.text, tt.pattern); got != tt.want {
			t.Errorf("Like(%v, %v) = %v, want %v", tt.text, tt.pattern, got, tt.want)
		}
	}
}
