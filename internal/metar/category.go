package metar

// Category is a flight-rules classification
type Category string

const (
	CategoryVFR     Category = "VFR"
	CategorySVFR    Category = "SVFR"
	CategoryIFR     Category = "IFR"
	CategoryUnknown Category = "Unknown"
)

// Lower bounds, inclusive
const (
	vfrMinVisibilityM  = 5000
	vfrMinCeilingFt    = 1500
	svfrMinVisibilityM = 1500
	svfrMinCeilingFt   = 600
)

// Classify maps visibility and ceiling to a flight category.
// A nil input yields CategoryUnknown.
func Classify(visibilityM, ceilingFt *int) Category {
	if visibilityM == nil || ceilingFt == nil {
		return CategoryUnknown
	}

	vis, ceil := *visibilityM, *ceilingFt
	switch {
	case vis >= vfrMinVisibilityM && ceil >= vfrMinCeilingFt:
		return CategoryVFR
	case vis >= svfrMinVisibilityM && ceil >= svfrMinCeilingFt:
		return CategorySVFR
	default:
		return CategoryIFR
	}
}

// Rank orders categories from most to least restrictive. Unknown ranks lowest.
func (c Category) Rank() int {
	switch c {
	case CategoryVFR:
		return 3
	case CategorySVFR:
		return 2
	case CategoryIFR:
		return 1
	default:
		return 0
	}
}

// Known reports whether c is one of the concrete flight-rule categories
func (c Category) Known() bool {
	return c.Rank() > 0
}
