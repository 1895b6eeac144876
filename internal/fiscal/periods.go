package fiscal

import (
	"fmt"
	"time"
)

// PeriodSpan is one generated partition slice before persistence.
type PeriodSpan struct {
	Number    int
	Name      string
	StartDate time.Time
	EndDate   time.Time
}

// GeneratePeriods partitions [start, end] into consecutive, gap-free spans.
// Monthly steps one calendar month, quarterly three. When the tail left
// after a full step is shorter than a step, the final span absorbs it so
// the partition covers the range exactly with no stub period.
func GeneratePeriods(start, end time.Time, periodType PeriodType) []PeriodSpan {
	step := 1
	if periodType == PeriodTypeQuarterly {
		step = 3
	}
	var spans []PeriodSpan
	cursor := start
	for number := 1; !cursor.After(end); number++ {
		spanEnd := cursor.AddDate(0, step, 0).AddDate(0, 0, -1)
		if spanEnd.After(end) {
			spanEnd = end
		} else {
			nextStart := spanEnd.AddDate(0, 0, 1)
			nextEnd := nextStart.AddDate(0, step, 0).AddDate(0, 0, -1)
			if !nextStart.After(end) && nextEnd.After(end) {
				// Short tail: stretch this span to the end of the year.
				spanEnd = end
			}
		}
		spans = append(spans, PeriodSpan{
			Number:    number,
			Name:      periodName(periodType, number, cursor),
			StartDate: cursor,
			EndDate:   spanEnd,
		})
		cursor = spanEnd.AddDate(0, 0, 1)
	}
	return spans
}

func periodName(periodType PeriodType, number int, start time.Time) string {
	if periodType == PeriodTypeQuarterly {
		return fmt.Sprintf("Q%d %d", number, start.Year())
	}
	return start.Format("Jan 2006")
}
