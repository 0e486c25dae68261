package sanitize

import "testing"

func TestText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"plain", "plain"},
		{"Fish & Chips", "Fish & Chips"},
		{"<b>bold</b> move", "bold move"},
		{`<script>alert("x")</script>dinner`, "dinner"},
		{`<a href="javascript:alert(1)">link</a>`, "link"},
	}
	for _, tt := range tests {
		if got := Text(tt.in); got != tt.want {
			t.Errorf("Text(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLine(t *testing.T) {
	if got := Line("  Road\ntrip  "); got != "Road trip" {
		t.Errorf("Line = %q, want %q", got, "Road trip")
	}
}
