package metar

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	// CAVOK implies visibility of at least 10 km and no cloud below 5000 ft
	cavokVisibilityM = 10000
	cavokCeilingFt   = 5000

	// Reports without any BKN/OVC/VV layer are treated as unlimited ceiling
	defaultCeilingFt = 5000

	// The P (greater-than) prefix on a statute mile group is floored at this value
	plusVisibilityMinMiles = 6

	metersPerStatuteMile = 1609.34
)

var (
	windRegex       = regexp.MustCompile(`^(?:VRB|[0-3]\d{2})\d{2,3}(?:G\d{2,3})?KT$`)
	qnhRegex        = regexp.MustCompile(`^Q\d{4}$`)
	pressureRegex   = regexp.MustCompile(`^(?:Q|A)\d{4}$`)
	timestampRegex  = regexp.MustCompile(`^\d{6}Z$`)
	visMilesRegex   = regexp.MustCompile(`^(P)?(\d+)SM$`)
	visFractRegex   = regexp.MustCompile(`^(\d+)?\s?(\d)/(\d)SM$`)
	wholeMilesRegex = regexp.MustCompile(`^\d{1,2}$`)
)

// ExtractWindAltimeter returns the first wind group and the first Q-form
// altimeter group of a report. ok is false unless the first token is icao
// and both groups are present. A-form (inches) altimeter groups are never
// accepted here.
func ExtractWindAltimeter(line, icao string) (wind, altimeter string, ok bool) {
	parts := strings.Fields(line)
	if len(parts) == 0 || parts[0] != icao {
		return "", "", false
	}

	for _, p := range parts[1:] {
		if wind == "" && windRegex.MatchString(p) {
			wind = p
		}
		if altimeter == "" && qnhRegex.MatchString(p) {
			altimeter = p
		}
	}

	if wind == "" || altimeter == "" {
		return "", "", false
	}
	return wind, altimeter, true
}

// ExtractVisibilityCeiling returns visibility in meters and ceiling in feet.
// Either value is nil when it cannot be determined. Both are nil when the
// line is empty or does not start with icao.
func ExtractVisibilityCeiling(line, icao string) (visibilityM, ceilingFt *int) {
	if line == "" || !strings.HasPrefix(line, icao) {
		return nil, nil
	}
	parts := strings.Fields(line)

	for _, p := range parts {
		if p == "CAVOK" {
			return intPtr(cavokVisibilityM), intPtr(cavokCeilingFt)
		}
	}

	visibilityM = scanVisibility(parts)
	ceilingFt = scanCeiling(parts)
	return visibilityM, ceilingFt
}

// scanVisibility walks tokens left to right and stops at the first token
// matching a meters group, a whole statute mile group or a fractional
// statute mile group, in that order of precedence.
func scanVisibility(parts []string) *int {
	for i, p := range parts {
		if (len(p) == 4 || len(p) == 5) && isDigits(p) {
			v, err := strconv.Atoi(p)
			if err == nil {
				return intPtr(v)
			}
		}

		if strings.HasSuffix(p, "SM") {
			if m := visMilesRegex.FindStringSubmatch(p); m != nil {
				miles, err := strconv.Atoi(m[2])
				if err == nil {
					if m[1] == "P" && miles < plusVisibilityMinMiles {
						miles = plusVisibilityMinMiles
					}
					return intPtr(milesToMeters(float64(miles)))
				}
			}
		}

		if m := visFractRegex.FindStringSubmatch(p); m != nil {
			num, _ := strconv.Atoi(m[2])
			den, _ := strconv.Atoi(m[3])
			if den == 0 {
				continue
			}
			miles := float64(num) / float64(den)
			if m[1] != "" {
				whole, _ := strconv.Atoi(m[1])
				miles += float64(whole)
			} else if i > 1 && wholeMilesRegex.MatchString(parts[i-1]) {
				// "1 1/2SM" arrives as two tokens
				whole, _ := strconv.Atoi(parts[i-1])
				miles += float64(whole)
			}
			return intPtr(milesToMeters(miles))
		}
	}
	return nil
}

// scanCeiling returns the lowest BKN, OVC or VV layer height. Without any
// such layer the ceiling is unlimited and defaults to defaultCeilingFt.
func scanCeiling(parts []string) *int {
	ceiling := -1
	for _, p := range parts {
		height, ok := layerHeight(p)
		if !ok {
			continue
		}
		if ceiling < 0 || height < ceiling {
			ceiling = height
		}
	}

	if ceiling < 0 {
		return intPtr(defaultCeilingFt)
	}
	return intPtr(ceiling)
}

// layerHeight decodes a ceiling layer such as BKN035, OVC004 or VV002 into feet.
// Layers with a missing height (BKN///) do not count.
func layerHeight(token string) (int, bool) {
	var digits string
	switch {
	case strings.HasPrefix(token, "BKN"), strings.HasPrefix(token, "OVC"):
		digits = token[3:]
	case strings.HasPrefix(token, "VV"):
		digits = token[2:]
	default:
		return 0, false
	}

	if len(digits) < 3 || !isDigits(digits[:3]) {
		return 0, false
	}
	hundreds, err := strconv.Atoi(digits[:3])
	if err != nil {
		return 0, false
	}
	return hundreds * 100, true
}

// ExtractDetailText returns the part of the report after the observation
// time with every wind and pressure group removed.
func ExtractDetailText(line, icao string) string {
	if line == "" || !strings.HasPrefix(line, icao) {
		return ""
	}
	parts := strings.Fields(line)

	start := 1
	for i := 1; i < len(parts); i++ {
		if timestampRegex.MatchString(parts[i]) {
			start = i + 1
			break
		}
	}
	kept := make([]string, 0, len(parts)-start)
	for _, p := range parts[start:] {
		if windRegex.MatchString(p) || pressureRegex.MatchString(p) {
			continue
		}
		kept = append(kept, p)
	}
	return strings.Join(kept, " ")
}

func milesToMeters(miles float64) int {
	return int(math.Round(miles * metersPerStatuteMile))
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func intPtr(v int) *int {
	return &v
}
