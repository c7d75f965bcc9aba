package testutil

import (
	"context"
	"testing"
)

func TestKappaPair(t *testing.T) {
	m, tr := KappaPair(t, "05_SD_zcut01_B0")

	if m.Name != "h_kappa_JetPt_R0.4_05_SD_zcut01_B0_Rmax0.25" {
		t.Errorf("measured name = %s", m.Name)
	}
	if tr.Name != "h_kappa_JetPt_Truth_R0.4_05_SD_zcut01_B0" {
		t.Errorf("truth name = %s", tr.Name)
	}
	// sum over k of sum over flags (k+flag) = 6*10 + 5*21
	if got := m.Integral(); got != 165 {
		t.Errorf("measured integral = %g, want 165", got)
	}
	// sum over k of (k+2)
	if got := tr.Integral(); got != 20 {
		t.Errorf("truth integral = %g, want 20", got)
	}
}

func TestKappaSource(t *testing.T) {
	src := KappaSource(t, "a", "b")
	for _, name := range []string{
		"h_kappa_JetPt_R0.4_a_Rmax0.25", "h_kappa_JetPt_Truth_R0.4_a",
		"h_kappa_JetPt_R0.4_b_Rmax0.25", "h_kappa_JetPt_Truth_R0.4_b",
	} {
		if _, err := src.Histogram(context.Background(), name); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
}
