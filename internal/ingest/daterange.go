package ingest

import (
	"iter"
	"regexp"
	"time"

	"github.com/lox/wdqms/internal/models"
)

const dateLayout = "2006-01-02"

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ParseDate parses a YYYY-MM-DD calendar date as midnight UTC. field names
// the offending input in the returned *models.InvalidDateFormatError.
func ParseDate(field, s string) (time.Time, error) {
	if !datePattern.MatchString(s) {
		return time.Time{}, &models.InvalidDateFormatError{Field: field, Value: s}
	}
	d, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, &models.InvalidDateFormatError{Field: field, Value: s}
	}
	return d, nil
}

// DateRange is an inclusive span of calendar days.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange truncates both bounds to their UTC calendar date and rejects
// ranges whose start falls after the end.
func NewDateRange(start, end time.Time) (DateRange, error) {
	start = truncateDay(start)
	end = truncateDay(end)
	if start.After(end) {
		return DateRange{}, &models.InvalidRangeError{
			Start: start.Format(dateLayout),
			End:   end.Format(dateLayout),
		}
	}
	return DateRange{Start: start, End: end}, nil
}

// Days yields every date in the range in ascending order. The sequence can be
// iterated any number of times.
func (r DateRange) Days() iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
			if !yield(d) {
				return
			}
		}
	}
}

// Len is the number of days in the range.
func (r DateRange) Len() int {
	if r.Start.IsZero() && r.End.IsZero() {
		return 0
	}
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

func (r DateRange) String() string {
	return r.Start.Format(dateLayout) + ".." + r.End.Format(dateLayout)
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
