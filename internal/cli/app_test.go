package cli

import (
	"strings"
	"testing"

	"github.com/ppiankov/regwatch/internal/config"
	"github.com/ppiankov/regwatch/internal/extract"
)

func TestExtractorsBuildEveryVariant(t *testing.T) {
	a := &app{
		cfg: &config.Config{Extract: config.ExtractConfig{
			Variant: "regulation",
			Variants: map[string]config.VariantConfig{
				"regulation": {Redactions: extract.DefaultRedactions},
				"bulletin":   {Selector: "#content", HeadingKeywords: []string{"ARTICLE"}},
			},
		}},
		logger: discardLogger(),
	}

	reg, err := a.extractors()
	if err != nil {
		t.Fatalf("extractors: %v", err)
	}
	if len(reg) != 2 {
		t.Fatalf("registry has %d variants, want 2", len(reg))
	}
	ex, err := reg.Get("bulletin")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	page, ok := ex.(*extract.RegulationPage)
	if !ok {
		t.Fatalf("extractor type %T", ex)
	}
	got, err := page.ExtractText(strings.NewReader(`<main id="content"><p>Article 4</p></main>`))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got != "# Article 4" {
		t.Errorf("bulletin options not applied: %q", got)
	}
}

func TestExtractorsRejectBadVariant(t *testing.T) {
	a := &app{
		cfg: &config.Config{Extract: config.ExtractConfig{
			Variants: map[string]config.VariantConfig{"broken": {Redactions: []string{"[bad"}}},
		}},
		logger: discardLogger(),
	}
	if _, err := a.extractors(); err == nil || !strings.Contains(err.Error(), "variant broken") {
		t.Fatalf("err = %v, want variant error", err)
	}
}
