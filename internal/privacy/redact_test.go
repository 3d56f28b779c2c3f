package privacy

import (
	"testing"
	"time"

	"github.com/ppiankov/feedcast/internal/source"
)

func TestCompile_Valid(t *testing.T) {
	r, err := Compile([]string{`(?i)token`, `\bsecret\b`})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if r.Len() != 2 {
		t.Errorf("got %d patterns, want 2", r.Len())
	}
}

func TestCompile_Invalid(t *testing.T) {
	_, err := Compile([]string{`[invalid`})
	if err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestRedact(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		input    string
		want     string
	}{
		{"single", []string{`(?i)token`}, "My API Token is abc123", "My API [REDACTED] is abc123"},
		{"multiple", []string{`\d{3}-\d{4}`, `[\w.]+@[\w.]+`}, "call 555-1234 or a.b@example.com", "call [REDACTED] or [REDACTED]"},
		{"no match", []string{`secret`}, "nothing here", "nothing here"},
		{"no patterns", nil, "unchanged", "unchanged"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Compile(tt.patterns)
			if err != nil {
				t.Fatalf("compile: %v", err)
			}
			if got := r.Redact(tt.input); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRedact_NilRedactor(t *testing.T) {
	var r *Redactor
	if got := r.Redact("keep me"); got != "keep me" {
		t.Errorf("got %q", got)
	}
	if r.Len() != 0 {
		t.Errorf("len = %d, want 0", r.Len())
	}
}

func TestRedactPosts_CopiesInput(t *testing.T) {
	r, _ := Compile([]string{`hunter2`})
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	in := []source.Post{{ID: "1", Text: "pw is hunter2", PostedAt: at}}

	out := r.Posts(in)

	if out[0].Text != "pw is [REDACTED]" {
		t.Errorf("redacted text = %q", out[0].Text)
	}
	if out[0].ID != "1" || !out[0].PostedAt.Equal(at) {
		t.Errorf("other fields changed: %+v", out[0])
	}
	if in[0].Text != "pw is hunter2" {
		t.Errorf("input modified: %q", in[0].Text)
	}
}
