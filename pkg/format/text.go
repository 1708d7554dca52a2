package format

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const whatsappPrefix = "whatsapp:"

// PhoneNumber strips a literal "whatsapp:" prefix and prepends "+" when the
// remainder does not already start with one.
func PhoneNumber(raw string) string {
	clean := strings.TrimPrefix(raw, whatsappPrefix)
	if strings.HasPrefix(clean, "+") {
		return clean
	}
	return "+" + clean
}

// TruncateText shortens text to maxLength runes followed by "...".
func TruncateText(text string, maxLength int) string {
	if maxLength < 0 {
		maxLength = 0
	}
	if utf8.RuneCountInString(text) <= maxLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxLength]) + "..."
}

// CapitalizeFirst upper-cases the first rune of text.
func CapitalizeFirst(text string) string {
	r, size := utf8.DecodeRuneInString(text)
	if r == utf8.RuneError {
		return text
	}
	return string(unicode.ToUpper(r)) + text[size:]
}

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// FileSize renders a byte count with binary units and at most two decimals.
func FileSize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}

	i := 0
	value := float64(bytes)
	for value >= 1024 && i < len(sizeUnits)-1 {
		value /= 1024
		i++
	}

	s := strconv.FormatFloat(value, 'f', 2, 64)
	if whole, frac, ok := strings.Cut(s, "."); ok {
		frac = strings.TrimRight(frac, "0")
		s = whole
		if frac != "" {
			s = whole + "." + frac
		}
	}
	return s + " " + sizeUnits[i]
}

// FileExtension returns the lower-cased text after the last dot of filename.
// A name without a dot is returned whole, lower-cased.
func FileExtension(filename string) string {
	return strings.ToLower(filename[strings.LastIndex(filename, ".")+1:])
}

// Tone is a UI color family for a status badge.
type Tone string

const (
	ToneSuccess Tone = "success"
	ToneWarning Tone = "warning"
	ToneDanger  Tone = "danger"
	ToneNeutral Tone = "neutral"
)

// StatusTone maps a contact status to its badge tone.
func StatusTone(status string) Tone {
	switch status {
	case "active":
		return ToneSuccess
	case "paused":
		return ToneWarning
	case "blocked":
		return ToneDanger
	default:
		return ToneNeutral
	}
}
