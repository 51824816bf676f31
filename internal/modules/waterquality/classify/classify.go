// Package classify maps readings to qualitative water-quality tiers.
package classify

import (
	"math"

	"khamriver-server/internal/modules/waterquality/types"
)

type Tier string

const (
	Good     Tier = "Good"
	Moderate Tier = "Moderate"
	Poor     Tier = "Poor"
	Unknown  Tier = "Unknown"
)

// PH classifies a pH value. A nil or NaN value is Unknown.
func PH(ph *float64) Tier {
	if ph == nil || math.IsNaN(*ph) {
		return Unknown
	}
	v := *ph
	switch {
	case v >= 6.5 && v <= 8.0:
		return Good
	case (v >= 6.0 && v < 6.5) || (v > 8.0 && v <= 8.5):
		return Moderate
	default:
		return Poor
	}
}

// ForReading classifies the latest reading of a station; nil means the
// station has no readings yet.
func ForReading(r *types.Reading) Tier {
	if r == nil {
		return Unknown
	}
	return PH(&r.PH)
}

// CSSClass is the badge class used by the HTML views.
func (t Tier) CSSClass() string {
	switch t {
	case Good:
		return "tier-good"
	case Moderate:
		return "tier-moderate"
	case Poor:
		return "tier-poor"
	default:
		return "tier-unknown"
	}
}

// ReferenceRange is informational only and never affects the tier.
type ReferenceRange struct {
	Parameter string   `json:"parameter"`
	Unit      string   `json:"unit,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	Label     string   `json:"label"`
}

func bound(v float64) *float64 { return &v }

var referenceRanges = []ReferenceRange{
	{Parameter: "pH", Min: bound(6.5), Max: bound(8.5), Label: "6.5 - 8.5"},
	{Parameter: "Temperature", Unit: "°C", Min: bound(20), Max: bound(30), Label: "20 - 30 °C"},
	{Parameter: "Turbidity", Unit: "NTU", Max: bound(5), Label: "< 5 NTU"},
	{Parameter: "TDS", Unit: "mg/L", Max: bound(500), Label: "< 500 mg/L"},
	{Parameter: "Conductivity", Unit: "µS/cm", Min: bound(100), Max: bound(2000), Label: "100 - 2000 µS/cm"},
	{Parameter: "Dissolved Oxygen", Unit: "mg/L", Min: bound(6), Label: "> 6 mg/L"},
}

// ReferenceRanges returns a copy of the ranges shown next to a station's readings.
func ReferenceRanges() []ReferenceRange {
	out := make([]ReferenceRange, len(referenceRanges))
	copy(out, referenceRanges)
	return out
}
