package timeline

import (
	"math"
	"sort"
	"time"
)

type unit int

const (
	unitMillisecond unit = iota
	unitSecond
	unitMinute
	unitHour
	unitDay
	unitWeek
	unitMonth
	unitYear
)

const (
	durSecond = 1000.0
	durMinute = 60 * durSecond
	durHour   = 60 * durMinute
	durDay    = 24 * durHour
	durWeek   = 7 * durDay
	durMonth  = 30 * durDay
	durYear   = 365 * durDay

	maxTicks = 10000
)

type tickInterval struct {
	unit unit
	step int
	dur  float64
}

var tickIntervals = []tickInterval{
	{unitSecond, 1, durSecond},
	{unitSecond, 5, 5 * durSecond},
	{unitSecond, 15, 15 * durSecond},
	{unitSecond, 30, 30 * durSecond},
	{unitMinute, 1, durMinute},
	{unitMinute, 5, 5 * durMinute},
	{unitMinute, 15, 15 * durMinute},
	{unitMinute, 30, 30 * durMinute},
	{unitHour, 1, durHour},
	{unitHour, 3, 3 * durHour},
	{unitHour, 6, 6 * durHour},
	{unitHour, 12, 12 * durHour},
	{unitDay, 1, durDay},
	{unitDay, 2, 2 * durDay},
	{unitWeek, 1, durWeek},
	{unitMonth, 1, durMonth},
	{unitMonth, 3, 3 * durMonth},
	{unitYear, 1, durYear},
}

// Ticks returns about count calendar-aligned ticks covering [start, stop]
// (epoch ms, both inclusive) in loc.
func Ticks(start, stop float64, count int, loc *time.Location) []time.Time {
	if loc == nil {
		loc = time.UTC
	}
	if count <= 0 || math.IsNaN(start) || math.IsNaN(stop) {
		return nil
	}
	start, stop = math.Trunc(start), math.Trunc(stop)
	reverse := stop < start
	if reverse {
		start, stop = stop, start
	}

	var out []time.Time
	target := (stop - start) / float64(count)
	i := sort.Search(len(tickIntervals), func(i int) bool { return tickIntervals[i].dur > target })
	switch {
	case i == len(tickIntervals):
		step := math.Floor(tickStep(start/durYear, stop/durYear, count))
		if step >= 1 {
			out = yearRange(int(step), start, stop, loc)
		}
	case i == 0:
		step := math.Floor(math.Max(tickStep(start, stop, count), 1))
		out = millisecondRange(int64(step), start, stop, loc)
	default:
		iv := tickIntervals[i]
		if target/tickIntervals[i-1].dur < tickIntervals[i].dur/target {
			iv = tickIntervals[i-1]
		}
		out = fieldRange(iv, start, stop, loc)
	}

	if reverse {
		for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
			out[l], out[r] = out[r], out[l]
		}
	}
	return out
}

var (
	e10 = math.Sqrt(50)
	e5  = math.Sqrt(10)
	e2  = math.Sqrt(2)
)

// tickStep returns a 1, 2 or 5 times power-of-ten step splitting
// [start, stop] into about count parts.
func tickStep(start, stop float64, count int) float64 {
	step := (stop - start) / math.Max(0, float64(count))
	power := math.Floor(math.Log10(step))
	e := step / math.Pow(10, power)
	factor := 1.0
	switch {
	case e >= e10:
		factor = 10
	case e >= e5:
		factor = 5
	case e >= e2:
		factor = 2
	}
	if power < 0 {
		return factor / math.Pow(10, -power)
	}
	return factor * math.Pow(10, power)
}

func millisecondRange(step int64, start, stop float64, loc *time.Location) []time.Time {
	if step < 1 {
		return nil
	}
	s := int64(start)
	first := floorDiv(s, step) * step
	if first < s {
		first += step
	}
	var out []time.Time
	for v := first; float64(v) < stop+1 && len(out) < maxTicks; v += step {
		out = append(out, time.UnixMilli(v).In(loc))
	}
	return out
}

func yearRange(step int, start, stop float64, loc *time.Location) []time.Time {
	s := time.UnixMilli(int64(start)).In(loc)
	y := int(floorDiv(int64(s.Year()), int64(step))) * step
	t := time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
	if ms(t) < start {
		t = time.Date(y+step, time.January, 1, 0, 0, 0, 0, loc)
	}
	var out []time.Time
	for ms(t) < stop+1 && len(out) < maxTicks {
		out = append(out, t)
		t = time.Date(t.Year()+step, time.January, 1, 0, 0, 0, 0, loc)
	}
	return out
}

func fieldRange(iv tickInterval, start, stop float64, loc *time.Location) []time.Time {
	t := floorUnit(iv.unit, time.UnixMilli(int64(start)).In(loc))
	if ms(t) < start {
		t = offsetUnit(iv.unit, t)
	}
	var out []time.Time
	for n := 0; ms(t) < stop+1 && n < maxTicks; n++ {
		if iv.step <= 1 || field(iv.unit, t)%iv.step == 0 {
			out = append(out, t)
		}
		t = offsetUnit(iv.unit, t)
	}
	return out
}

func floorUnit(u unit, t time.Time) time.Time {
	loc := t.Location()
	switch u {
	case unitSecond:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc)
	case unitMinute:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, loc)
	case unitHour:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, loc)
	case unitDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	case unitWeek:
		return time.Date(t.Year(), t.Month(), t.Day()-int(t.Weekday()), 0, 0, 0, 0, loc)
	case unitMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
	case unitYear:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, loc)
	}
	return t
}

func offsetUnit(u unit, t time.Time) time.Time {
	loc := t.Location()
	switch u {
	case unitSecond:
		return t.Add(time.Second)
	case unitMinute:
		return t.Add(time.Minute)
	case unitHour:
		return t.Add(time.Hour)
	case unitDay:
		return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, loc)
	case unitWeek:
		return time.Date(t.Year(), t.Month(), t.Day()+7, 0, 0, 0, 0, loc)
	case unitMonth:
		return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, loc)
	case unitYear:
		return time.Date(t.Year()+1, time.January, 1, 0, 0, 0, 0, loc)
	}
	return t.Add(time.Millisecond)
}

// field is the calendar field a stepped interval is aligned on.
func field(u unit, t time.Time) int {
	switch u {
	case unitSecond:
		return t.Second()
	case unitMinute:
		return t.Minute()
	case unitHour:
		return t.Hour()
	case unitDay:
		return t.Day() - 1
	case unitMonth:
		return int(t.Month()) - 1
	case unitYear:
		return t.Year()
	}
	return 0
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
