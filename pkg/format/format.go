// Package format converts raw bot backend fields (ISO timestamps, phone
// strings, counters and rates) into display strings. Every function is pure
// and total: malformed input degrades to a best-effort rendering, never a
// panic or an error.
package format

import (
	"time"

	"golang.org/x/text/language"
)

// Number is any numeric type accepted by the generic helpers.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// SpanishSpain is the locale the dashboards render numbers and dates in.
var SpanishSpain = language.MustParse("es-ES")

var supported = []language.Tag{language.English, language.Spanish}

var matcher = language.NewMatcher(supported)

// Formatter renders values for one locale. Numbers and dates follow the
// locale tag; relative-time sentences follow the phrase tag.
type Formatter struct {
	locale   language.Tag
	phrases  language.Tag
	location *time.Location
	now      func() time.Time

	symbols symbols
	words   words
	cal     calendar
}

// Option configures a Formatter.
type Option func(*Formatter)

// WithLocale sets the locale for numbers and absolute dates.
func WithLocale(tag language.Tag) Option {
	return func(f *Formatter) {
		f.locale = tag
	}
}

// WithPhrases sets the language for relative-time sentences.
func WithPhrases(tag language.Tag) Option {
	return func(f *Formatter) {
		f.phrases = tag
	}
}

// WithLocation sets the time zone used to interpret naive timestamps and to
// render dates. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(f *Formatter) {
		if loc != nil {
			f.location = loc
		}
	}
}

// WithClock overrides the clock used by RelativeTime.
func WithClock(now func() time.Time) Option {
	return func(f *Formatter) {
		if now != nil {
			f.now = now
		}
	}
}

// New builds a Formatter. Without options it renders es-ES numbers and
// dates with English relative-time sentences.
func New(opts ...Option) *Formatter {
	f := &Formatter{
		locale:   SpanishSpain,
		phrases:  language.English,
		location: time.Local,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}

	f.symbols = symbolsFor(f.locale)
	f.cal = calendarFor(f.locale)
	f.words = wordsFor(f.phrases)
	return f
}

// ParseLocale parses a BCP 47 tag, falling back to es-ES.
func ParseLocale(s string) language.Tag {
	if s == "" {
		return SpanishSpain
	}
	tag, err := language.Parse(s)
	if err != nil {
		return SpanishSpain
	}
	return tag
}

// Locale returns the number/date locale.
func (f *Formatter) Locale() language.Tag {
	return f.locale
}

// Location returns the time zone dates are rendered in.
func (f *Formatter) Location() *time.Location {
	return f.location
}

func isSpanish(tag language.Tag) bool {
	_, idx, _ := matcher.Match(tag)
	return supported[idx] == language.Spanish
}

var defaultFormatter = New()

// Default returns the package-level formatter.
func Default() *Formatter {
	return defaultFormatter
}

// FormatRelativeTime renders an ISO-8601 timestamp relative to now.
func FormatRelativeTime(timestamp string) string {
	return defaultFormatter.RelativeTime(timestamp)
}

// FormatPhoneNumber strips the "whatsapp:" transport tag and guarantees a
// leading "+". The digits are not validated.
func FormatPhoneNumber(raw string) string {
	return PhoneNumber(raw)
}

// FormatNumber renders n with es-ES digit grouping.
func FormatNumber[N Number](n N) string {
	return defaultFormatter.Number(float64(n))
}

// FormatPercentage renders n (already a percentage) with one decimal in the
// es-ES default form, so 89.5 becomes "89,5 %" with a non-breaking space.
// New(WithLocale(language.English)).Percentage(89.5) renders "89.5%".
func FormatPercentage[N Number](n N) string {
	return defaultFormatter.Percentage(float64(n))
}

// FormatDate renders an ISO-8601 timestamp as a long es-ES date.
func FormatDate(timestamp string) string {
	return defaultFormatter.DateString(timestamp)
}

// FormatDateTime renders an ISO-8601 timestamp as a short es-ES date and time.
func FormatDateTime(timestamp string) string {
	return defaultFormatter.DateTimeString(timestamp)
}

// FormatDayLabel renders a chart axis label such as "lun 15".
func FormatDayLabel(t time.Time) string {
	return defaultFormatter.DayLabel(t.In(defaultFormatter.location))
}

// FormatFileSize renders a byte count such as "1.5 KB".
func FormatFileSize(bytes int64) string {
	return FileSize(bytes)
}
