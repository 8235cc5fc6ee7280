package feed

import "testing"

func TestSlugify(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected string
	}{
		{"simple", "Launch Notes", "launch-notes"},
		{"punctuation collapsed", "What's new?! (v2)", "what-s-new-v2"},
		{"leading and trailing junk", "  --Hello--  ", "hello"},
		{"already clean", "hello", "hello"},
		{"empty", "", ""},
		{"only junk", "!!!", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Slugify(tt.in); got != tt.expected {
				t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.expected)
			}
		})
	}
}

func TestPostParamRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		title string
		id    string
	}{
		{"normal title", "Launch Notes", "D_abc123"},
		{"title with hyphens", "re-use -- everywhere", "D_x"},
		{"empty title", "", "D_y"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			param := BuildPostParam(tt.title, tt.id)
			if got := ParsePostParam(param); got != tt.id {
				t.Errorf("ParsePostParam(BuildPostParam()) = %q, want %q (param %q)", got, tt.id, param)
			}
		})
	}
}

func TestParsePostParamBareID(t *testing.T) {
	if got := ParsePostParam("D_abc123"); got != "D_abc123" {
		t.Errorf("ParsePostParam() = %q, want bare id passthrough", got)
	}
}
