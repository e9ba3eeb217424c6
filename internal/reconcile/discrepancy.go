package reconcile

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Severity tiers a discrepancy.
type Severity string

const (
	SeverityOK       Severity = "ok"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Thresholds bound the ok and warning tiers, in percent, inclusive.
type Thresholds struct {
	WarningPercent  decimal.Decimal
	CriticalPercent decimal.Decimal
}

// DefaultThresholds returns the 5% / 10% tolerance bands.
func DefaultThresholds() Thresholds {
	return Thresholds{
		WarningPercent:  decimal.NewFromInt(5),
		CriticalPercent: decimal.NewFromInt(10),
	}
}

func (t Thresholds) orDefault() Thresholds {
	if t.WarningPercent.IsZero() && t.CriticalPercent.IsZero() {
		return DefaultThresholds()
	}
	return t
}

// sentinelPercent is reported when nothing was expected but something was used.
var sentinelPercent = decimal.NewFromInt(100)

var hundred = decimal.NewFromInt(100)

// Classification is the tier and rounded percentage of one comparison.
type Classification struct {
	Severity    Severity
	DiffPercent decimal.Decimal
}

// Classify compares actual and expected usage. diff_percent is
// |actual - expected| / expected * 100, rounded to two decimals before the
// tier rules are applied, so the tier always matches the reported figure.
func Classify(actual, expected decimal.Decimal, t Thresholds) Classification {
	t = t.orDefault()
	if expected.IsZero() {
		if actual.IsZero() {
			return Classification{Severity: SeverityOK, DiffPercent: decimal.Zero}
		}
		return Classification{Severity: SeverityCritical, DiffPercent: sentinelPercent}
	}
	diff := actual.Sub(expected).Abs().Div(expected.Abs()).Mul(hundred).Round(2)
	switch {
	case diff.LessThanOrEqual(t.WarningPercent):
		return Classification{Severity: SeverityOK, DiffPercent: diff}
	case diff.LessThanOrEqual(t.CriticalPercent):
		return Classification{Severity: SeverityWarning, DiffPercent: diff}
	default:
		return Classification{Severity: SeverityCritical, DiffPercent: diff}
	}
}

// newAlert builds the alert record for a non-ok classification.
func newAlert(line UsageLine, actual, expected decimal.Decimal, c Classification) Alert {
	sign := "+"
	if actual.LessThan(expected) {
		sign = "-"
	}
	msg := fmt.Sprintf("%s: usage %s%s%% vs expected (actual %s %s, expected %s %s)",
		line.Name, sign, c.DiffPercent.StringFixed(2),
		actual.StringFixed(2), line.UnitLabel,
		expected.StringFixed(2), line.UnitLabel)
	return Alert{
		IngredientID: line.IngredientID,
		Name:         line.Name,
		Actual:       actual,
		Expected:     expected,
		DiffPercent:  c.DiffPercent,
		Severity:     c.Severity,
		Message:      msg,
	}
}
