package security

import "testing"

func TestEscapeMarkdown(t *testing.T) {
	tests := map[string]string{
		"":             "",
		"\t\t":         " ",
		"\n":           " ",
		"text":         "text",
		"_text_":       `\_text\_`,
		"*text_":       `\*text\_`,
		"**text**":     `\*\*text\*\*`,
		"a*b_c":        `a\*b\_c`,
		"*_*~*_":       `\*\_\*\~\*\_`,
		"~~||text||~~": `\~\~\|\|text\|\|\~\~`,
		"[a](xx)":      `\[a\]\(xx\)`,
		`\_\_`:         `\\\_\\\_`,
		"`code`":       "\\`code\\`",
		"a  b\n\nc":    "a b c",
	}

	for input, want := range tests {
		if got := EscapeMarkdown(input); got != want {
			t.Errorf("EscapeMarkdown(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestTextSanitizer_PlainText(t *testing.T) {
	s := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"空文字列", "", ""},
		{"タグなし", "Intro to Computer Science", "Intro to Computer Science"},
		{"タグを除去", "<p>Data Structures <b>and</b> Algorithms</p>", "Data Structures and Algorithms"},
		{"scriptを除去", "Safe<script>alert(1)</script>", "Safe"},
		{"実体参照を復元", "Math &amp; Physics", "Math & Physics"},
		{"前後の空白を除去", "  <br>Title  ", "Title"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.PlainText(tt.input); got != tt.want {
				t.Errorf("PlainText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
