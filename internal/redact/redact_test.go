package redact

import (
	"testing"
)

var decreePatterns = []string{`\bD\.\s*871-2020\b`, `\b871-2020\b`, `\ba\.\s*\d+\b`}

func TestCompile_Valid(t *testing.T) {
	patterns, err := Compile(decreePatterns)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if len(patterns) != 3 {
		t.Errorf("got %d patterns, want 3", len(patterns))
	}
}

func TestCompile_Invalid(t *testing.T) {
	_, err := Compile([]string{`[invalid`})
	if err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestCompile_Empty(t *testing.T) {
	patterns, err := Compile(nil)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if len(patterns) != 0 {
		t.Errorf("got %d patterns, want 0", len(patterns))
	}
}

func TestApply_DecreeCitation(t *testing.T) {
	patterns, _ := Compile(decreePatterns)
	result := Apply("Article 12 D. 871-2020, a. 12.", patterns)
	want := "Article 12 , ."
	if result != want {
		t.Errorf("got %q, want %q", result, want)
	}
}

func TestApply_BareNumber(t *testing.T) {
	patterns, _ := Compile(decreePatterns)
	result := Apply("voir 871-2020 et D.871-2020", patterns)
	want := "voir  et "
	if result != want {
		t.Errorf("got %q, want %q", result, want)
	}
}

func TestApply_PatternOrder(t *testing.T) {
	// The full citation must go before the bare number, otherwise "D. " survives.
	patterns, _ := Compile([]string{`\b871-2020\b`, `\bD\.\s*871-2020\b`})
	result := Apply("D. 871-2020", patterns)
	if result != "D. " {
		t.Errorf("got %q, want %q", result, "D. ")
	}
}

func TestApply_NoMatch(t *testing.T) {
	patterns, _ := Compile(decreePatterns)
	text := "nothing to redact here"
	result := Apply(text, patterns)
	if result != text {
		t.Errorf("got %q, want unchanged", result)
	}
}

func TestApply_EmptyPatterns(t *testing.T) {
	text := "should not change"
	result := Apply(text, nil)
	if result != text {
		t.Errorf("got %q, want unchanged", result)
	}
}

func TestReplace_Placeholder(t *testing.T) {
	patterns, _ := Compile([]string{`(?i)secret`})
	result := Replace("Secret and secret", patterns, "[REDACTED]")
	want := "[REDACTED] and [REDACTED]"
	if result != want {
		t.Errorf("got %q, want %q", result, want)
	}
}

func TestApply_BoundedKeepsAccentedWords(t *testing.T) {
	patterns, err := Compile([]string{Bounded(`D\.\s*871-2020`), Bounded(`871-2020`), Bounded(`a\.\s*\d+`)})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"accented word", "Il faut ça. 12 mois.", "Il faut ça. 12 mois."},
		{"citation", "Référence D. 871-2020, a. 12.", "Référence , ."},
		{"start and end of text", "a. 3", ""},
		{"adjacent matches share a space", "871-2020 871-2020", " "},
		{"digit glued to a letter", "a. 12é", "a. 12é"},
		{"accented letter before citation", "éD. 871-2020", "éD. "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Apply(tt.in, patterns); got != tt.want {
				t.Errorf("Apply(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestReplace_BoundedPlaceholder(t *testing.T) {
	patterns, _ := Compile([]string{Bounded(`a\.\s*\d+`)})
	got := Replace("voir a. 4 et ça. 5", patterns, "[art]")
	if got != "voir [art] et ça. 5" {
		t.Errorf("got %q", got)
	}
}
