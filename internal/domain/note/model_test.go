package note

import (
	"math"
	"testing"
)

func TestConfidencePercent(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{0.87, 87},
		{0.875, 88},
		{0, 0},
		{1, 100},
		{-0.3, 0},
		{1.7, 100},
		{42, 100},
		{0.004, 0},
		{0.005, 1},
		{math.NaN(), 0},
		{math.Inf(1), 100},
		{math.Inf(-1), 0},
	}
	for _, tt := range tests {
		if got := ConfidencePercent(tt.in); got != tt.want {
			t.Errorf("ConfidencePercent(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestCodeEntry_Percent(t *testing.T) {
	c := CodeEntry{Code: "J02.9", Description: "Acute pharyngitis", Confidence: 0.87}
	if c.Percent() != 87 {
		t.Errorf("Percent() = %d, want 87", c.Percent())
	}
}

func TestPatientInfo_Identifier(t *testing.T) {
	var nilPatient *PatientInfo
	if nilPatient.Identifier() != "" {
		t.Error("expected empty identifier for nil patient")
	}
	p := &PatientInfo{ID: "p-1"}
	if p.Identifier() != "p-1" {
		t.Errorf("Identifier() = %q, want p-1", p.Identifier())
	}
	p.MedicalRecordNumber = "MRN-9"
	if p.Identifier() != "MRN-9" {
		t.Errorf("Identifier() = %q, want MRN-9", p.Identifier())
	}
}

func TestDocument_CodeGroupsOrder(t *testing.T) {
	d := &Document{
		DiagnosticCodes: []CodeEntry{{Code: "J02.9"}},
		MiscCodes:       []CodeEntry{{Code: "G0008"}},
	}
	groups := d.CodeGroups()
	if len(groups) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(groups))
	}
	if groups[0].System != CodeSystemICD10 || groups[1].System != CodeSystemCPT || groups[2].System != CodeSystemHCPCS {
		t.Errorf("unexpected group order: %v %v %v", groups[0].System, groups[1].System, groups[2].System)
	}
	if !d.HasCodes() {
		t.Error("expected HasCodes() true")
	}
	if (&Document{}).HasCodes() {
		t.Error("expected HasCodes() false for empty document")
	}
}
