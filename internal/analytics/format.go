package analytics

import (
	"fmt"
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// NotAvailable is rendered for values the provider did not report.
const NotAvailable = "N/A"

var volumePrinter = message.NewPrinter(language.English)

// FormatLargeNumber renders v with a T/B/M/K suffix chosen on |v| and two
// decimals, e.g. 2.5e12 -> "2.50T", -3.2e9 -> "-3.20B", 999 -> "999.00".
func FormatLargeNumber(v *float64) string {
	if v == nil || math.IsNaN(*v) {
		return NotAvailable
	}
	value := *v
	abs := math.Abs(value)
	switch {
	case abs >= 1e12:
		return fmt.Sprintf("%.2fT", value/1e12)
	case abs >= 1e9:
		return fmt.Sprintf("%.2fB", value/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("%.2fM", value/1e6)
	case abs >= 1e3:
		return fmt.Sprintf("%.2fK", value/1e3)
	default:
		return fmt.Sprintf("%.2f", value)
	}
}

// FormatOptional renders v with the given number of decimals, or "N/A".
func FormatOptional(v *float64, decimals int) string {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return NotAvailable
	}
	return fmt.Sprintf("%.*f", decimals, *v)
}

// FormatVolume renders a share count with thousands separators.
func FormatVolume(v float64) string {
	if math.IsNaN(v) {
		return NotAvailable
	}
	return volumePrinter.Sprintf("%.0f", v)
}
