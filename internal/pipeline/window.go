package pipeline

import (
	"strconv"
	"strings"
	"time"

	"mail-archivist/internal/model"
)

// Params selects the fetch window of a sync run. The first set form wins:
// After and Before together, then Month (YYYY-MM), then Year.
type Params struct {
	After  string
	Before string
	Year   string
	Month  string
}

// IsZero reports whether no window field is set.
func (p Params) IsZero() bool {
	return p.After == "" && p.Before == "" && p.Year == "" && p.Month == ""
}

// ParseWindow resolves p into a half-open window in UTC. Empty params
// yield the calendar month of now.
func ParseWindow(p Params, now time.Time) (model.DateWindow, error) {
	p.After = strings.TrimSpace(p.After)
	p.Before = strings.TrimSpace(p.Before)
	p.Year = strings.TrimSpace(p.Year)
	p.Month = strings.TrimSpace(p.Month)

	switch {
	case p.After != "" || p.Before != "":
		if p.After == "" || p.Before == "" {
			return model.DateWindow{}, &ValidationError{Field: "window", Msg: "after and before must be given together"}
		}
		after, err := time.Parse(model.DateLayout, p.After)
		if err != nil {
			return model.DateWindow{}, &ValidationError{Field: "after", Msg: "expected YYYY/MM/DD"}
		}
		before, err := time.Parse(model.DateLayout, p.Before)
		if err != nil {
			return model.DateWindow{}, &ValidationError{Field: "before", Msg: "expected YYYY/MM/DD"}
		}
		if !before.After(after) {
			return model.DateWindow{}, &ValidationError{Field: "before", Msg: "must be later than after"}
		}
		return model.DateWindow{After: after, Before: before}, nil

	case p.Month != "":
		start, err := time.Parse("2006-01", p.Month)
		if err != nil {
			return model.DateWindow{}, &ValidationError{Field: "month", Msg: "expected YYYY-MM"}
		}
		return MonthWindow(start.Year(), start.Month()), nil

	case p.Year != "":
		year, err := strconv.Atoi(p.Year)
		if err != nil || year < 1970 || year > 9999 {
			return model.DateWindow{}, &ValidationError{Field: "year", Msg: "expected a four digit year"}
		}
		return model.DateWindow{
			After:  time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
			Before: time.Date(year+1, time.January, 1, 0, 0, 0, 0, time.UTC),
		}, nil
	}

	now = now.UTC()
	return MonthWindow(now.Year(), now.Month()), nil
}

// MonthWindow returns [Y/M/01, next month/01).
func MonthWindow(year int, month time.Month) model.DateWindow {
	after := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return model.DateWindow{After: after, Before: after.AddDate(0, 1, 0)}
}
