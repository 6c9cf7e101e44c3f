package utils

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Locale carries the number conventions used when quantities are written out.
// Parsing always goes through ParseNumber; a Locale only decides how numbers
// look on the way out.
type Locale struct {
	Tag     language.Tag
	Decimal string
	Group   string
	printer *message.Printer
}

// DefaultLocale is German: comma decimal mark, dot grouping.
var DefaultLocale = NewLocale(language.German)

// ParseLocale resolves a BCP 47 tag such as "de", "de-CH" or "en-GB".
func ParseLocale(s string) (Locale, error) {
	if strings.TrimSpace(s) == "" {
		return DefaultLocale, nil
	}
	tag, err := language.Parse(s)
	if err != nil {
		return Locale{}, fmt.Errorf("parse locale %q: %w", s, err)
	}
	return NewLocale(tag), nil
}

// NewLocale derives decimal and grouping marks from the CLDR data behind
// golang.org/x/text.
func NewLocale(tag language.Tag) Locale {
	p := message.NewPrinter(tag)
	loc := Locale{Tag: tag, Decimal: ".", Group: ",", printer: p}

	if mark := strings.Trim(p.Sprint(number.Decimal(1.5)), "0123456789"); mark != "" && len(mark) <= 3 {
		loc.Decimal = mark
	}
	if mark := strings.Trim(p.Sprint(number.Decimal(1234567)), "0123456789"); mark != "" {
		// "1.234.567" -> ".234.", the separator is the first rune
		r := []rune(mark)
		loc.Group = string(r[0])
	}
	return loc
}

// FormatPlain renders f without grouping, using the locale decimal mark. This
// is the form delimited-text exports use.
func (l Locale) FormatPlain(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if l.Decimal != "." {
		s = strings.Replace(s, ".", l.Decimal, 1)
	}
	return s
}

// FormatDisplay renders f with grouping and at most maxFraction decimals.
func (l Locale) FormatDisplay(f float64, maxFraction int) string {
	p := l.printer
	if p == nil {
		p = message.NewPrinter(l.Tag)
	}
	return p.Sprint(number.Decimal(f, number.MaxFractionDigits(maxFraction)))
}

// ParseDisplay reads a number produced by FormatDisplay or FormatPlain back.
func (l Locale) ParseDisplay(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if l.Group != "" && l.Group != l.Decimal {
		s = strings.ReplaceAll(s, l.Group, "")
	}
	if l.Decimal != "." {
		s = strings.Replace(s, l.Decimal, ".", 1)
	}
	if !looksNumeric(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}
