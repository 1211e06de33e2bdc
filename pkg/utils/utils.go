package utils

import (
	"math"
	"time"

	"github.com/segyhp/collections-engine/internal/domain"

	"github.com/shopspring/decimal"
)

// Days per period for the day-based frequencies. Biweekly follows the
// lenders' "quincena" convention of 15 days.
const (
	daysDaily    = 1
	daysWeekly   = 7
	daysBiweekly = 15
)

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DateIn reads the calendar date of t as written and returns that date's
// midnight in loc. Stored dates come back in whatever zone the driver picks.
func DateIn(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// Today is the current calendar date in loc.
func Today(now time.Time, loc *time.Location) time.Time {
	return DateIn(now.In(loc), loc)
}

// AddPeriods advances start by n periods of the given frequency.
// Monthly periods are computed from start so that day-of-month does not
// drift; days past the end of a shorter month clamp to its last day.
func AddPeriods(start time.Time, freq domain.Frequency, n int) time.Time {
	switch freq {
	case domain.FrequencyDaily:
		return start.AddDate(0, 0, daysDaily*n)
	case domain.FrequencyWeekly:
		return start.AddDate(0, 0, daysWeekly*n)
	case domain.FrequencyBiweekly:
		return start.AddDate(0, 0, daysBiweekly*n)
	case domain.FrequencyMonthly:
		return addMonths(start, n)
	}
	return start
}

func addMonths(start time.Time, n int) time.Time {
	y, m, d := start.Date()
	first := time.Date(y, m+time.Month(n), 1, start.Hour(), start.Minute(), start.Second(), start.Nanosecond(), start.Location())
	last := first.AddDate(0, 1, -1).Day()
	return first.AddDate(0, 0, min(d, last)-1)
}

// CalculateDueDate returns the due date of installment number (1-based):
// installment 1 falls one period after the start date.
func CalculateDueDate(loanStartDate time.Time, freq domain.Frequency, number int) time.Time {
	return AddPeriods(loanStartDate, freq, number)
}

// DaysBetween counts whole calendar days from a to b (negative when b is before a).
func DaysBetween(a, b time.Time) int {
	a = StartOfDay(a)
	b = StartOfDay(b.In(a.Location()))
	// Rounding absorbs DST shifts of one hour.
	return int(math.Round(b.Sub(a).Hours() / 24))
}

// ElapsedPeriods counts whole periods elapsed from start until asOf.
func ElapsedPeriods(start, asOf time.Time, freq domain.Frequency) int {
	if !asOf.After(start) {
		return 0
	}
	switch freq {
	case domain.FrequencyDaily:
		return DaysBetween(start, asOf) / daysDaily
	case domain.FrequencyWeekly:
		return DaysBetween(start, asOf) / daysWeekly
	case domain.FrequencyBiweekly:
		return DaysBetween(start, asOf) / daysBiweekly
	case domain.FrequencyMonthly:
		n := 0
		for !AddPeriods(start, freq, n+1).After(asOf) {
			n++
		}
		return n
	}
	return 0
}

// PeriodsPerMonth is the fixed ratio used to express a term in months.
func PeriodsPerMonth(freq domain.Frequency) decimal.Decimal {
	switch freq {
	case domain.FrequencyDaily:
		return decimal.NewFromInt(30)
	case domain.FrequencyWeekly:
		return decimal.RequireFromString("4.33")
	case domain.FrequencyBiweekly:
		return decimal.NewFromInt(2)
	default:
		return decimal.NewFromInt(1)
	}
}

// FormatMoney renders an amount with two decimals and a currency sign.
func FormatMoney(amount decimal.Decimal) string {
	return "$" + amount.StringFixed(2)
}
