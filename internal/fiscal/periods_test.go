package fiscal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestGenerateMonthlyPeriodsFullYear(t *testing.T) {
	spans := GeneratePeriods(date(2024, 1, 1), date(2024, 12, 31), PeriodTypeMonthly)
	require.Len(t, spans, 12)

	assert.Equal(t, date(2024, 1, 1), spans[0].StartDate)
	assert.Equal(t, date(2024, 12, 31), spans[11].EndDate)
	assert.Equal(t, "Jan 2024", spans[0].Name)
	assert.Equal(t, "Dec 2024", spans[11].Name)

	for i, span := range spans {
		assert.Equal(t, i+1, span.Number)
		assert.False(t, span.EndDate.Before(span.StartDate))
		if i > 0 {
			// Each period starts the day after the previous ends.
			assert.Equal(t, spans[i-1].EndDate.AddDate(0, 0, 1), span.StartDate)
		}
	}
}

func TestGenerateQuarterlyPeriods(t *testing.T) {
	spans := GeneratePeriods(date(2024, 1, 1), date(2024, 12, 31), PeriodTypeQuarterly)
	require.Len(t, spans, 4)
	assert.Equal(t, "Q1 2024", spans[0].Name)
	assert.Equal(t, date(2024, 3, 31), spans[0].EndDate)
	assert.Equal(t, date(2024, 4, 1), spans[1].StartDate)
	assert.Equal(t, date(2024, 12, 31), spans[3].EndDate)
}

func TestGeneratePeriodsAbsorbsRemainder(t *testing.T) {
	// A year that is not a whole number of months: the tail is folded into
	// the final span rather than producing a stub period.
	spans := GeneratePeriods(date(2024, 1, 1), date(2024, 12, 20), PeriodTypeMonthly)
	require.Len(t, spans, 11)
	last := spans[len(spans)-1]
	assert.Equal(t, date(2024, 11, 1), last.StartDate)
	assert.Equal(t, date(2024, 12, 20), last.EndDate)
}

func TestGeneratePeriodsNonCalendarYear(t *testing.T) {
	// Fiscal year offset from the calendar year.
	spans := GeneratePeriods(date(2024, 4, 1), date(2025, 3, 31), PeriodTypeMonthly)
	require.Len(t, spans, 12)
	assert.Equal(t, date(2024, 4, 1), spans[0].StartDate)
	assert.Equal(t, date(2024, 4, 30), spans[0].EndDate)
	assert.Equal(t, date(2025, 3, 31), spans[11].EndDate)
}

func TestCreateYearInputValidate(t *testing.T) {
	ok := CreateYearInput{Name: "FY2024", StartDate: date(2024, 1, 1), EndDate: date(2024, 12, 31), PeriodType: PeriodTypeMonthly}
	assert.NoError(t, ok.Validate())

	bad := ok
	bad.Name = " "
	assert.Error(t, bad.Validate())

	bad = ok
	bad.EndDate = date(2023, 12, 31)
	assert.Error(t, bad.Validate())

	bad = ok
	bad.PeriodType = PeriodType("weekly")
	assert.Error(t, bad.Validate())
}
