package job

import "testing"

func strPtr(s string) *string { return &s }

func TestHasText(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		rec  *Record
		want bool
	}{
		{"nil record", nil, false},
		{"absent text", &Record{FileID: "a"}, false},
		{"empty text", &Record{FileID: "a", ExtractedText: strPtr("")}, false},
		{"present text", &Record{FileID: "a", ExtractedText: strPtr("hello")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.rec.HasText(); got != tt.want {
				t.Errorf("HasText() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClone_DoesNotAliasText(t *testing.T) {
	t.Parallel()
	r := &Record{FileID: "a", ExtractedText: strPtr("one")}
	c := r.Clone()
	*c.ExtractedText = "two"
	if got, _ := r.Text(); got != "one" {
		t.Errorf("original text = %q after mutating clone, want %q", got, "one")
	}
}

func TestChangeFileID(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		change Change
		want   string
	}{
		{"after", Change{After: &Record{FileID: "x"}}, "x"},
		{"before only", Change{Before: &Record{FileID: "y"}}, "y"},
		{"empty", Change{}, ""},
	}
	for _, tt := range tests {
		if got := tt.change.FileID(); got != tt.want {
			t.Errorf("%s: FileID() = %q, want %q", tt.name, got, tt.want)
		}
	}
}
