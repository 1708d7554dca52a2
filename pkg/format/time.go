package format

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// Layouts accepted by ParseTimestamp. The backend serializes naive
// datetimes without a zone designator; those are read in the formatter's
// location.
var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

type words struct {
	justNow string
	ago     func(n int, unit string) string
	units   map[string][2]string
}

func wordsFor(tag language.Tag) words {
	if isSpanish(tag) {
		return words{
			justNow: "Hace unos segundos",
			ago: func(n int, unit string) string {
				return fmt.Sprintf("Hace %d %s", n, unit)
			},
			units: map[string][2]string{
				"minute": {"minuto", "minutos"},
				"hour":   {"hora", "horas"},
				"day":    {"día", "días"},
			},
		}
	}
	return words{
		justNow: "a few seconds ago",
		ago: func(n int, unit string) string {
			return fmt.Sprintf("%d %s ago", n, unit)
		},
		units: map[string][2]string{
			"minute": {"minute", "minutes"},
			"hour":   {"hour", "hours"},
			"day":    {"day", "days"},
		},
	}
}

type calendar struct {
	months      [12]string
	shortMonths [12]string
	weekdays    [7]string
	spanish     bool
}

func calendarFor(tag language.Tag) calendar {
	if isSpanish(tag) {
		return calendar{
			months: [12]string{"enero", "febrero", "marzo", "abril", "mayo", "junio",
				"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre"},
			shortMonths: [12]string{"ene", "feb", "mar", "abr", "may", "jun",
				"jul", "ago", "sept", "oct", "nov", "dic"},
			weekdays: [7]string{"dom", "lun", "mar", "mié", "jue", "vie", "sáb"},
			spanish:  true,
		}
	}
	return calendar{
		months: [12]string{"January", "February", "March", "April", "May", "June",
			"July", "August", "September", "October", "November", "December"},
		shortMonths: [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun",
			"Jul", "Aug", "Sep", "Oct", "Nov", "Dec"},
		weekdays: [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"},
	}
}

// ParseTimestamp parses an ISO-8601 timestamp. Timestamps without a zone
// are interpreted in the formatter's location.
func (f *Formatter) ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, f.location); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// RelativeTime renders timestamp relative to the formatter's clock.
// Unparseable input is returned unchanged.
func (f *Formatter) RelativeTime(timestamp string) string {
	t, err := f.ParseTimestamp(timestamp)
	if err != nil {
		return timestamp
	}
	return f.RelativeTimeAt(t, f.now())
}

// RelativeTimeAt renders t relative to now. Under a minute (including
// future instants) reads as "a few seconds ago"; under a week counts whole
// minutes, hours or days; anything older falls back to the long date.
func (f *Formatter) RelativeTimeAt(t, now time.Time) string {
	seconds := int(now.Sub(t) / time.Second)
	if seconds < 60 {
		return f.words.justNow
	}

	minutes := seconds / 60
	if minutes < 60 {
		return f.ago(minutes, "minute")
	}

	hours := minutes / 60
	if hours < 24 {
		return f.ago(hours, "hour")
	}

	days := hours / 24
	if days < 7 {
		return f.ago(days, "day")
	}

	return f.Date(t)
}

func (f *Formatter) ago(n int, unit string) string {
	forms := f.words.units[unit]
	if n == 1 {
		return f.words.ago(n, forms[0])
	}
	return f.words.ago(n, forms[1])
}

// Date renders t as a long date: "15 de enero de 2024" or "January 15, 2024".
func (f *Formatter) Date(t time.Time) string {
	t = t.In(f.location)
	month := f.cal.months[t.Month()-1]
	if f.cal.spanish {
		return fmt.Sprintf("%d de %s de %d", t.Day(), month, t.Year())
	}
	return fmt.Sprintf("%s %d, %d", month, t.Day(), t.Year())
}

// DateTime renders t as a short date with a 24h time: "15 ene 2024, 10:30".
func (f *Formatter) DateTime(t time.Time) string {
	t = t.In(f.location)
	month := f.cal.shortMonths[t.Month()-1]
	if f.cal.spanish {
		return fmt.Sprintf("%d %s %d, %02d:%02d", t.Day(), month, t.Year(), t.Hour(), t.Minute())
	}
	return fmt.Sprintf("%s %d, %d, %02d:%02d", month, t.Day(), t.Year(), t.Hour(), t.Minute())
}

// DayLabel renders a chart axis label: weekday abbreviation and day of month.
func (f *Formatter) DayLabel(t time.Time) string {
	return fmt.Sprintf("%s %d", f.cal.weekdays[t.Weekday()], t.Day())
}

// DateString is Date over an ISO-8601 string; unparseable input is returned unchanged.
func (f *Formatter) DateString(timestamp string) string {
	t, err := f.ParseTimestamp(timestamp)
	if err != nil {
		return timestamp
	}
	return f.Date(t)
}

// DateTimeString is DateTime over an ISO-8601 string; unparseable input is returned unchanged.
func (f *Formatter) DateTimeString(timestamp string) string {
	t, err := f.ParseTimestamp(timestamp)
	if err != nil {
		return timestamp
	}
	return f.DateTime(t)
}
