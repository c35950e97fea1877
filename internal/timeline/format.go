package timeline

import "time"

// FormatTick labels a tick. The layout depends on how many hours the visible
// span covers; ticks landing on a day or year boundary get the long form.
func FormatTick(t time.Time, spanHours float64) string {
	onTheHour := t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
	onTheDay := onTheHour && t.Hour() == 0
	onTheYear := onTheDay && t.Day() == 1 && t.Month() == time.January

	var layout string
	switch {
	case spanHours < 5:
		layout = pick(onTheDay, "2006 Jan 2 15:04:05", "15:04:05")
	case spanHours < 7*24:
		layout = pick(onTheDay, "2006 Jan 2", "3PM")
	case spanHours < 5*30*24:
		layout = pick(onTheYear, "2006 Jan 2", "Jan 2")
	case spanHours < 5*365.25*24:
		layout = pick(onTheYear, "Jan 2006", "Jan")
	default:
		layout = "2006"
	}
	return t.Format(layout)
}

func pick(cond bool, a, b string) string {
	if cond {
		return a
	}
	return b
}
