package epoch

import "math"

// J2000 is the Julian Date of 2000-01-01 12:00:00.
const J2000 = 2451545.0

// DaysPerCentury is the number of days in a Julian century.
const DaysPerCentury = 36525.0

// DateTime holds broken-down calendar fields with a fractional second.
type DateTime struct {
	Year   int
	Month  int
	Day    int
	Hour   int
	Minute int
	Second float64
}

// JulianDate converts the calendar fields of i to a Julian Date.
// January and February are treated as months 13 and 14 of the previous year.
func JulianDate(i Instant) float64 {
	t := i.Time()
	y := t.Year()
	m := int(t.Month())
	d := t.Day()
	h, min, sec := t.Clock()

	if m < 3 {
		y--
		m += 12
	}

	fy := float64(y)
	jd := math.Floor(365.25*fy) +
		math.Floor(fy/400.0) -
		math.Floor(fy/100.0) +
		math.Floor(30.59*float64(m-2)) +
		float64(d) +
		1721088.5

	jd += (float64(sec)/3600.0 + float64(min)/60.0 + float64(h)) / 24.0
	jd += float64(i.Nsec) / 1e9 / 86400.0

	return jd
}

// JulianCentury returns the Julian centuries elapsed since J2000 for jd.
func JulianCentury(jd float64) float64 {
	return (jd - J2000) / DaysPerCentury
}

// DaysToCalendar converts a year and a 1-based fractional day of year to
// calendar fields. February has 29 days whenever year%4 == 0; the century
// exceptions of the Gregorian rule are not applied.
func DaysToCalendar(year int, days float64) DateTime {
	lmonth := [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}
	if year%4 == 0 {
		lmonth[1] = 29
	}

	dayOfYear := int(days)

	i := 0
	inttemp := 0
	for i < 11 && dayOfYear > inttemp+lmonth[i] {
		inttemp += lmonth[i]
		i++
	}

	dt := DateTime{
		Year:  year,
		Month: i + 1,
		Day:   dayOfYear - inttemp,
	}

	temp := (days - float64(dayOfYear)) * 24.0
	dt.Hour = int(temp)
	temp = (temp - float64(dt.Hour)) * 60.0
	dt.Minute = int(temp)
	dt.Second = (temp - float64(dt.Minute)) * 60.0

	return dt
}

// CalendarToJulianDate converts calendar fields to a Julian Date with the
// closed form from Vallado, valid for years 1900 through 2100.
func CalendarToJulianDate(dt DateTime) float64 {
	y := float64(dt.Year)
	m := float64(dt.Month)
	return 367.0*y -
		math.Floor(7.0*(y+math.Floor((m+9.0)/12.0))*0.25) +
		math.Floor(275.0*m/9.0) +
		float64(dt.Day) + 1721013.5 +
		((dt.Second/60.0+float64(dt.Minute))/60.0+float64(dt.Hour))/24.0
}
