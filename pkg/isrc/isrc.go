package isrc

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Length is the number of characters in a canonical ISRC.
const Length = 12

// centuryPivot splits two-digit year codes between 19xx and 20xx.
const centuryPivot = 50

var canonicalPattern = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]{3}[0-9]{7}$`)

// ISRC is a parsed, validated recording code.
type ISRC struct {
	Country     string
	Registrant  string
	Year        string
	Designation string
}

// Parse validates s and splits it into its four segments.
func Parse(s string) (ISRC, bool) {
	n := Normalize(s)
	if !isCanonical(n) {
		return ISRC{}, false
	}
	return ISRC{
		Country:     n[0:2],
		Registrant:  n[2:5],
		Year:        n[5:7],
		Designation: n[7:12],
	}, true
}

// String returns the canonical twelve-character form.
func (c ISRC) String() string {
	return c.Country + c.Registrant + c.Year + c.Designation
}

// Display returns the hyphenated CC-XXX-YY-NNNNN form.
func (c ISRC) Display() string {
	return c.Country + "-" + c.Registrant + "-" + c.Year + "-" + c.Designation
}

// FullYear maps the two-digit year code to a four-digit year.
func (c ISRC) FullYear() int {
	yy, err := strconv.Atoi(c.Year)
	if err != nil {
		return 0
	}
	if yy > centuryPivot {
		return 1900 + yy
	}
	return 2000 + yy
}

// Validate reports whether s is an ISRC once hyphens and whitespace are
// removed and letters are uppercased.
func Validate(s string) bool {
	if s == "" {
		return false
	}
	return isCanonical(Normalize(s))
}

// Normalize strips hyphens and whitespace and uppercases the rest. The result
// is not validated.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '-' || unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToUpper(b.String())
}

// Format returns the display form of s. Input that does not normalize to a
// valid ISRC is returned unchanged.
func Format(s string) string {
	if s == "" {
		return ""
	}
	code, ok := Parse(s)
	if !ok {
		return s
	}
	return code.Display()
}

// CountryOf returns the two-letter country segment of a valid ISRC.
func CountryOf(s string) (string, bool) {
	code, ok := Parse(s)
	if !ok {
		return "", false
	}
	return code.Country, true
}

// YearOf returns the four-digit reference year of a valid ISRC. Codes above
// 50 are read as 19xx, the rest as 20xx.
func YearOf(s string) (int, bool) {
	code, ok := Parse(s)
	if !ok {
		return 0, false
	}
	return code.FullYear(), true
}

func isCanonical(n string) bool {
	return len(n) == Length && canonicalPattern.MatchString(n)
}
