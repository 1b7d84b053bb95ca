package starlark

import (
	"fmt"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// DateLayout is the ISO date format used by the dates module.
const DateLayout = "2006-01-02"

func newDatesModule(maxElements int) *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: ModuleDates,
		Members: starlark.StringDict{
			"month_ends": starlark.NewBuiltin("month_ends", datesMonthEnds(maxElements)),
			"month_end":  starlark.NewBuiltin("month_end", datesMonthEnd),
		},
	}
}

// MonthEnds returns periods consecutive month-end dates, the first being the
// end of start's month.
func MonthEnds(start time.Time, periods int) []time.Time {
	out := make([]time.Time, periods)
	y, m, _ := start.Date()
	for i := range out {
		// Day 0 of the following month is the last day of this one.
		out[i] = time.Date(y, m+time.Month(i)+1, 0, 0, 0, 0, 0, time.UTC)
	}
	return out
}

func parseDate(fn, s string) (time.Time, error) {
	for _, layout := range []string{DateLayout, "2006-01"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%s: invalid date %q, want YYYY-MM-DD or YYYY-MM", fn, s)
}

func datesMonthEnds(maxElements int) builtinFunc {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var start string
		var periods int
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "start", &start, "periods", &periods); err != nil {
			return nil, err
		}
		if err := checkLength(b.Name(), periods, maxElements); err != nil {
			return nil, err
		}
		t, err := parseDate(b.Name(), start)
		if err != nil {
			return nil, err
		}
		ends := MonthEnds(t, periods)
		elems := make([]starlark.Value, len(ends))
		for i, d := range ends {
			elems[i] = starlark.String(d.Format(DateLayout))
		}
		return starlark.NewList(elems), nil
	}
}

func datesMonthEnd(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var date string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "date", &date); err != nil {
		return nil, err
	}
	t, err := parseDate(b.Name(), date)
	if err != nil {
		return nil, err
	}
	return starlark.String(MonthEnds(t, 1)[0].Format(DateLayout)), nil
}
