package metar

import "testing"

func TestDecode(t *testing.T) {
	obs := Decode("EPWA", epwaLine, "K")

	if obs.Wind != "27008KT" || obs.Altimeter != "Q1013" {
		t.Errorf("wind/altimeter = %q/%q", obs.Wind, obs.Altimeter)
	}
	if obs.VisibilityM == nil || *obs.VisibilityM != 9999 {
		t.Errorf("visibility = %v, want 9999", obs.VisibilityM)
	}
	if obs.CeilingFt == nil || *obs.CeilingFt != 3500 {
		t.Errorf("ceiling = %v, want 3500", obs.CeilingFt)
	}
	if obs.Category != CategoryVFR {
		t.Errorf("category = %s, want VFR", obs.Category)
	}
	if obs.Summary != "EPWA 27008KT Q1013 K" {
		t.Errorf("summary = %q", obs.Summary)
	}
	if obs.Detail != "9999 FEW020 BKN035 18/12 NOSIG" {
		t.Errorf("detail = %q", obs.Detail)
	}
}

func TestDecodeLowVisibility(t *testing.T) {
	obs := Decode("EPKK", epkkLine, "")

	if obs.Category != CategoryIFR {
		t.Errorf("category = %s, want IFR", obs.Category)
	}
	if obs.Summary != "EPKK VRB02KT Q0998" {
		t.Errorf("summary = %q", obs.Summary)
	}
}

func TestDecodeEmptyReport(t *testing.T) {
	obs := Decode("EPWA", "", "K")

	if obs.Category != CategoryUnknown {
		t.Errorf("category = %s, want Unknown", obs.Category)
	}
	if obs.Summary != "EPWA —" {
		t.Errorf("summary = %q, want %q", obs.Summary, "EPWA —")
	}
	if obs.Detail != NoDataPlaceholder {
		t.Errorf("detail = %q, want placeholder", obs.Detail)
	}
}

func TestDecodeInchesAltimeter(t *testing.T) {
	obs := Decode("KJFK", kjfkLine, "B")

	// A-form altimeters never populate the summary
	if obs.Summary != "KJFK —" {
		t.Errorf("summary = %q", obs.Summary)
	}
	if obs.Category != CategoryVFR {
		t.Errorf("category = %s, want VFR", obs.Category)
	}
	if obs.Detail != "10SM FEW250 M02/M13" {
		t.Errorf("detail = %q", obs.Detail)
	}
}

func TestDecodeCAVOK(t *testing.T) {
	obs := Decode("EPRZ", "EPRZ 161200Z 09004KT CAVOK OVC002 0500 FG 21/09 Q1018", "")
	if obs.Category != CategoryVFR {
		t.Errorf("category = %s, want VFR", obs.Category)
	}
}

func TestFormatSummary(t *testing.T) {
	tests := []struct {
		wind, altim, atis string
		want              string
	}{
		{"27008KT", "Q1013", "", "EPWA 27008KT Q1013"},
		{"27008KT", "Q1013", "C", "EPWA 27008KT Q1013 C"},
		{"", "Q1013", "C", "EPWA —"},
		{"27008KT", "", "", "EPWA —"},
	}

	for _, tt := range tests {
		if got := FormatSummary("EPWA", tt.wind, tt.altim, tt.atis); got != tt.want {
			t.Errorf("FormatSummary(%q, %q, %q) = %q, want %q", tt.wind, tt.altim, tt.atis, got, tt.want)
		}
	}
}
