package enrich

import (
	"reflect"
	"strings"
	"testing"
)

func TestFallbackTagsKeywordMatching(t *testing.T) {
	tests := []struct {
		title string
		want  []string
	}{
		{"Opioid Prescribing Update", []string{"pain management", "opioid", "prescribing"}},
		{"Hypertension Guideline 2023", []string{"hypertension"}},
		{"Management of Type 2 Diabetes in Children", []string{"endocrinology", "pediatrics", "diabetes", "management"}},
		{"COVID-19 Vaccination Schedule", []string{"covid-19", "vaccination"}},
		{"Annual Report on Workforce", []string{DefaultTag}},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			got := FallbackTags(tt.title)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected tags %v, got %v", tt.want, got)
			}
		})
	}
}

func TestFallbackTagsWordBoundaries(t *testing.T) {
	// "tb" and "flu" must not match inside other words
	got := FallbackTags("Stable Fluid Therapy Protocols")
	for _, tag := range got {
		if tag == "tuberculosis" || tag == "influenza" {
			t.Errorf("Unexpected tag %q for title without the keyword", tag)
		}
	}
}

func TestFallbackTagsLimit(t *testing.T) {
	got := FallbackTags("Cardiac, Renal, Pulmonary and Neurological Screening in Pregnancy and Cancer Treatment")
	if len(got) != maxFallbackTags {
		t.Errorf("Expected %d tags, got %d: %v", maxFallbackTags, len(got), got)
	}
}

func TestFallbackSummaryFromSnippet(t *testing.T) {
	summary := FallbackSummary(Request{
		Title:   "Asthma Management",
		Snippet: "Inhaled corticosteroids remain first-line therapy. Ok. Step-up treatment is advised when control is poor! Review inhaler technique at every visit? Extra sentence beyond the limit goes away.",
		Bullets: 3,
	})

	lines := strings.Split(summary, "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected 3 bullets, got %d: %q", len(lines), summary)
	}
	if lines[0] != "• Inhaled corticosteroids remain first-line therapy." {
		t.Errorf("Unexpected first bullet %q", lines[0])
	}
	if strings.Contains(summary, "Ok.") {
		t.Error("Expected very short sentences to be skipped")
	}
	if strings.Contains(summary, "Extra sentence") {
		t.Error("Expected sentences beyond the bullet count to be dropped")
	}
}

func TestFallbackSummaryTemplated(t *testing.T) {
	summary := FallbackSummary(Request{Title: "Opioid Prescribing Update"})

	if summary == "" {
		t.Fatal("Expected non-empty templated summary")
	}
	lines := strings.Split(summary, "\n")
	if len(lines) > DefaultBullets {
		t.Errorf("Expected at most %d bullets, got %d", DefaultBullets, len(lines))
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, bulletPrefix) {
			t.Errorf("Expected bullet prefix in %q", line)
		}
	}
	if !strings.Contains(summary, "opioid prescribing") {
		t.Errorf("Expected opioid-specific point, got %q", summary)
	}
}

func TestFallbackSummaryGeneric(t *testing.T) {
	summary := FallbackSummary(Request{Title: "Annual Report on Workforce"})

	want := "• Evidence-based clinical practice guideline\n• Designed for healthcare professionals"
	if summary != want {
		t.Errorf("Expected generic summary %q, got %q", want, summary)
	}
}

func TestFallbackDeterministic(t *testing.T) {
	req := Request{Title: "Sepsis Recognition in Emergency Departments", Snippet: "Early antibiotics reduce mortality in septic shock."}
	first := Fallback(req)
	second := Fallback(req)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("Expected identical results, got %+v and %+v", first, second)
	}
	if first.Method != MethodFallback {
		t.Errorf("Expected method %s, got %s", MethodFallback, first.Method)
	}
}

func TestNormalizeTags(t *testing.T) {
	got := NormalizeTags([]string{"Cardiovascular", "Heart Failure", "heart failure", "  ", "Guideline Implementation Science In Primary Care Settings", "Telehealth"})
	want := []string{"cardiology", "heart failure", "telehealth"}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}
