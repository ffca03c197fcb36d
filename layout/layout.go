// Package layout computes the pixel corrections that keep variable-length
// text balanced inside the fixed-size ticket template.
//
// Station names, Latin-script station labels and the currency glyph after
// the price are the only slots that move. Every function here is pure:
// the same text always yields the same offset, and the empty string never
// moves anything (except PriceUnitLeft, which is an absolute position).
//
// Lengths are counted in Unicode code points.
package layout

import (
	"fmt"
	"unicode/utf8"
)

// Role says which side of the route a station slot belongs to.
type Role int

const (
	Departure Role = iota
	Arrival
)

func (r Role) String() string {
	if r == Arrival {
		return "arrival"
	}
	return "departure"
}

// StationTier returns the tier offset in px for a local-script station name.
func StationTier(name string) int {
	switch n := utf8.RuneCountInString(name); {
	case n >= 6:
		return 300
	case n >= 5:
		return 220
	case n >= 4:
		return 150
	case n >= 3:
		return 90
	case n >= 2:
		return 50
	}
	return 0
}

// StationShift returns the signed horizontal shift for a station container.
// Departure stations move left by half the tier so the name grows toward
// the centre divider; arrival stations move right by the full tier.
func StationShift(name string, role Role) int {
	tier := StationTier(name)
	if role == Departure {
		return -(tier / 2)
	}
	return tier
}

// LabelTier returns the tier offset in px for a Latin-script station label.
// Labels of twelve characters or fewer stay where the template put them.
func LabelTier(label string) int {
	switch n := utf8.RuneCountInString(label); {
	case n > 25:
		return 80
	case n > 20:
		return 60
	case n > 15:
		return 40
	case n > 12:
		return 20
	}
	return 0
}

// LabelShift returns the signed horizontal shift for a station label.
func LabelShift(label string, role Role) int {
	tier := LabelTier(label)
	if role == Departure {
		return -tier
	}
	return tier
}

// Price unit placement, in px.
const (
	PriceBaseLeft  = 150
	PriceDotWidth  = 15
	PriceCharWidth = 30
	PriceUnitGap   = -2
)

// PriceUnitLeft returns the absolute left position of the currency glyph
// that follows price.
func PriceUnitLeft(price string) int {
	w := 0
	for _, c := range price {
		if c == '.' {
			w += PriceDotWidth
		} else {
			w += PriceCharWidth
		}
	}
	return PriceBaseLeft + w + PriceUnitGap
}

// TranslateX returns a CSS transform declaration for a horizontal shift,
// or "" when px is zero.
func TranslateX(px int) string {
	if px == 0 {
		return ""
	}
	return fmt.Sprintf("translateX(%dpx)", px)
}

// Left returns a CSS length for an absolute left position.
func Left(px int) string {
	return fmt.Sprintf("%dpx", px)
}
