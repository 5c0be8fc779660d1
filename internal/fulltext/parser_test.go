package fulltext

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain words", "Hello World", "hello world"},
		{"html tags stripped", "<p>Hello <b>bold</b> world</p>", "hello bold world"},
		{"entities unescaped", "fish &amp; chips", "fish chips"},
		{"punctuation split", "one,two;three.four", "one two three four"},
		{"digits kept", "report 2025 v2", "report 2025 v2"},
		{"collapsed whitespace", "  a \t b\n\nc ", "a b c"},
		{"unicode letters", "Café résumé", "café résumé"},
		{"empty", "", ""},
		{"only markup", "<br/><hr/>", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Parse(tt.raw); got != tt.want {
				t.Errorf("Parse(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}
