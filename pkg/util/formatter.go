package util

import (
	"fmt"
	"math"
)

// FormatValueFactor renders value with an SI magnitude prefix, the way the
// original formatted any measured quantity for a human-readable log line.
// Grid quantities commonly run into the kW/MW range, so unlike a component
// measurement this also covers the large-magnitude prefixes.
func FormatValueFactor(value float64, unit string) string {
	absValue := math.Abs(value)
	switch {
	case absValue >= 1e9:
		return fmt.Sprintf("%.3f G%s", value*1e-9, unit)
	case absValue >= 1e6:
		return fmt.Sprintf("%.3f M%s", value*1e-6, unit)
	case absValue >= 1e3:
		return fmt.Sprintf("%.3f k%s", value*1e-3, unit)
	case absValue >= 1:
		return fmt.Sprintf("%.3f %s", value, unit)
	case absValue >= 1e-3:
		return fmt.Sprintf("%.3f m%s", value*1e3, unit)
	case absValue >= 1e-6:
		return fmt.Sprintf("%.3f u%s", value*1e6, unit)
	case absValue >= 1e-9:
		return fmt.Sprintf("%.3f n%s", value*1e9, unit)
	case absValue >= 1e-12:
		return fmt.Sprintf("%.3f p%s", value*1e12, unit)
	default:
		return fmt.Sprintf("%.3e %s", value, unit)
	}
}

// FormatVoltage renders a voltage for diagnostic output.
func FormatVoltage(v float64) string { return FormatValueFactor(v, "V") }

// FormatCurrent renders a current for diagnostic output.
func FormatCurrent(a float64) string { return FormatValueFactor(a, "A") }

// FormatPower renders a power for diagnostic output.
func FormatPower(w float64) string { return FormatValueFactor(w, "W") }

// FormatEnergy renders a stored energy (battery charge) for diagnostic
// output.
func FormatEnergy(wh float64) string { return FormatValueFactor(wh, "Wh") }
