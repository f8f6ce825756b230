package note

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func newTestParser() *Parser {
	return NewParser(zerolog.Nop())
}

func TestParse_SOAPScenario(t *testing.T) {
	text := "**SUBJECTIVE:**\nPatient reports pain.\n\n**PLAN:**\nFollow-up in 1 week."
	sections := newTestParser().Parse(text)

	if len(sections) != 2 {
		t.Fatalf("expected 2 sections, got %d: %+v", len(sections), sections)
	}
	if sections[0].Name != "SUBJECTIVE" || sections[0].Body != "Patient reports pain." {
		t.Errorf("section[0] = %+v", sections[0])
	}
	if sections[1].Name != "PLAN" || sections[1].Body != "Follow-up in 1 week." {
		t.Errorf("section[1] = %+v", sections[1])
	}
}

func TestParse_PreservesHeadingOrder(t *testing.T) {
	names := []string{"PLAN", "ASSESSMENT", "OBJECTIVE", "SUBJECTIVE", "HISTORY OF PRESENT ILLNESS"}
	var b strings.Builder
	for _, n := range names {
		b.WriteString("**" + n + ":**\n")
		b.WriteString("body of " + n + "\n\n")
	}

	sections := newTestParser().Parse(b.String())
	if len(sections) != len(names) {
		t.Fatalf("expected %d sections, got %d", len(names), len(sections))
	}
	for i, n := range names {
		if sections[i].Name != n {
			t.Errorf("sections[%d].Name = %q, want %q", i, sections[i].Name, n)
		}
		if sections[i].Body != "body of "+n {
			t.Errorf("sections[%d].Body = %q", i, sections[i].Body)
		}
	}
}

func TestParse_EmptyBodyKept(t *testing.T) {
	sections := newTestParser().Parse("**SUBJECTIVE:**\n**OBJECTIVE:**\nVitals stable.")
	if len(sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(sections))
	}
	if sections[0].Body != "" {
		t.Errorf("expected empty body, got %q", sections[0].Body)
	}
}

func TestParse_RuleEndsSection(t *testing.T) {
	text := "**ASSESSMENT:**\nViral pharyngitis.\n---\nGenerated by an AI assistant. Review before signing."
	sections := newTestParser().Parse(text)
	if len(sections) != 1 {
		t.Fatalf("expected 1 section, got %d", len(sections))
	}
	if sections[0].Body != "Viral pharyngitis." {
		t.Errorf("body = %q, want text before rule only", sections[0].Body)
	}
}

func TestParse_HeadingVariants(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
		ok   bool
	}{
		{"colon inside", "**PLAN:**", "PLAN", true},
		{"colon outside", "**PLAN**:", "PLAN", true},
		{"no colon", "**PLAN**", "PLAN", true},
		{"underscore markers", "__REVIEW OF SYSTEMS:__", "REVIEW OF SYSTEMS", true},
		{"surrounding space", "   **A/P:**  ", "A/P", true},
		{"lower case", "**Plan:**", "", false},
		{"unpaired", "**PLAN:", "", false},
		{"digits only", "**123**", "", false},
		{"rule", "***", "", false},
		{"inline text", "**PLAN:** rest", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := headingName(tt.line)
			if ok != tt.ok || got != tt.want {
				t.Errorf("headingName(%q) = (%q, %v), want (%q, %v)", tt.line, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestParse_FallbackSingleSection(t *testing.T) {
	inputs := []string{
		"Patient seen for follow-up. **Stable** overall.",
		"",
		"plain text\nacross lines\n",
		"**Subjective:** lower-case heading is not a heading",
	}
	for _, in := range inputs {
		res := newTestParser().ParseReport(in)
		if len(res.Sections) != 1 {
			t.Fatalf("ParseReport(%q) returned %d sections, want 1", in, len(res.Sections))
		}
		if !res.Fallback {
			t.Errorf("ParseReport(%q) expected fallback flag", in)
		}
		if res.Sections[0].Name != FallbackSectionName {
			t.Errorf("fallback name = %q", res.Sections[0].Name)
		}
	}
}

func TestParse_FallbackStripsEmphasisAndRuleTail(t *testing.T) {
	res := newTestParser().ParseReport("Patient **stable**.\n\n---\nDisclaimer text")
	if got := res.Sections[0].Body; got != "Patient stable." {
		t.Errorf("fallback body = %q, want %q", got, "Patient stable.")
	}
}

func TestParse_CRLF(t *testing.T) {
	sections := newTestParser().Parse("**SUBJECTIVE:**\r\nCough.\r\n**PLAN:**\r\nRest.")
	if len(sections) != 2 || sections[0].Body != "Cough." || sections[1].Body != "Rest." {
		t.Errorf("unexpected sections: %+v", sections)
	}
}

func TestParse_IgnoresPreamble(t *testing.T) {
	sections := newTestParser().Parse("Clinical note draft\n\n**PLAN:**\nRest.")
	if len(sections) != 1 || sections[0].Name != "PLAN" {
		t.Errorf("unexpected sections: %+v", sections)
	}
}

func TestIsRule(t *testing.T) {
	for _, s := range []string{"---", "***", "___", "- - -", "  -----  "} {
		if !isRule(s) {
			t.Errorf("isRule(%q) = false, want true", s)
		}
	}
	for _, s := range []string{"--", "-*-", "text", ""} {
		if isRule(s) {
			t.Errorf("isRule(%q) = true, want false", s)
		}
	}
}

func TestCountWords(t *testing.T) {
	if got := CountWords("**PLAN:**\nFollow-up in 1 week.\n---"); got != 5 {
		t.Errorf("CountWords = %d, want 5", got)
	}
}
