package metar

import "strings"

// NoDataPlaceholder is shown in place of an empty detail text
const NoDataPlaceholder = "(no data)"

// Observation is everything derived from one raw report and the current
// ATIS code of a station. It is always recomputed as a whole.
type Observation struct {
	Wind        string   `json:"wind,omitempty"`
	Altimeter   string   `json:"altimeter,omitempty"`
	VisibilityM *int     `json:"visibility_m,omitempty"`
	CeilingFt   *int     `json:"ceiling_ft,omitempty"`
	Category    Category `json:"category"`
	Summary     string   `json:"summary"`
	Detail      string   `json:"detail"`
}

// Decode derives an Observation from a raw METAR line. raw may be empty,
// in which case the observation carries placeholders and CategoryUnknown.
func Decode(icao, raw, atisCode string) Observation {
	obs := Observation{Category: CategoryUnknown}

	if raw != "" {
		obs.VisibilityM, obs.CeilingFt = ExtractVisibilityCeiling(raw, icao)
		obs.Category = Classify(obs.VisibilityM, obs.CeilingFt)
	}

	wind, altimeter, ok := ExtractWindAltimeter(raw, icao)
	if ok {
		obs.Wind, obs.Altimeter = wind, altimeter
	}
	obs.Summary = FormatSummary(icao, obs.Wind, obs.Altimeter, atisCode)

	obs.Detail = ExtractDetailText(raw, icao)
	if obs.Detail == "" {
		obs.Detail = NoDataPlaceholder
	}

	return obs
}

// FormatSummary renders the one-line station summary, e.g.
// "EPWA 27008KT Q1013 K". Without both wind and altimeter the summary
// collapses to "EPWA —".
func FormatSummary(icao, wind, altimeter, atisCode string) string {
	if wind == "" || altimeter == "" {
		return icao + " —"
	}

	var b strings.Builder
	b.WriteString(icao)
	b.WriteByte(' ')
	b.WriteString(wind)
	b.WriteByte(' ')
	b.WriteString(altimeter)
	if atisCode != "" {
		b.WriteByte(' ')
		b.WriteString(atisCode)
	}
	return b.String()
}
