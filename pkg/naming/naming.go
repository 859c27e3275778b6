// Package naming converts RAPI field titles such as "Acquisition Start Date"
// into the key style used for flattened records.
package naming

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Convention selects a key style.
type Convention string

const (
	// Camel produces lower camel case: "acquisitionStartDate".
	Camel Convention = "camel"
	// Words produces space separated capitalised words: "Acquisition Start Date".
	Words Convention = "words"
	// Upper produces upper snake case: "ACQUISITION_START_DATE".
	Upper Convention = "upper"
)

// Parse maps a user supplied name to a Convention. The empty string is Camel.
func Parse(s string) (Convention, error) {
	switch c := Convention(strings.ToLower(strings.TrimSpace(s))); c {
	case "", Camel:
		return Camel, nil
	case Words, Upper:
		return c, nil
	}
	return "", fmt.Errorf("naming: unknown convention %q", s)
}

var (
	bracketed = regexp.MustCompile(`\([^()]*\)`)
	titler    = cases.Title(language.Und)
)

// Convert renders field in the convention. Unknown conventions behave like
// Camel.
func (c Convention) Convert(field string) string {
	switch c {
	case Words:
		return strings.Join(words(field), " ")
	case Upper:
		field = strings.TrimSpace(bracketed.ReplaceAllString(field, ""))
		ws := words(field)
		for i, w := range ws {
			ws[i] = strings.ToUpper(w)
		}
		return strings.Join(ws, "_")
	default:
		return camel(field)
	}
}

// Func returns Convert as a plain function, the form rapi.Record.Flatten
// takes.
func (c Convention) Func() func(string) string {
	return c.Convert
}

func camel(s string) string {
	s = strings.TrimSpace(bracketed.ReplaceAllString(s, ""))
	if s == "" {
		return s
	}

	var parts []string
	switch {
	case strings.Contains(s, " "):
		parts = strings.Fields(s)
	case strings.Contains(s, "_"):
		parts = strings.Split(s, "_")
	default:
		r := []rune(s)
		r[0] = unicode.ToLower(r[0])
		return string(r)
	}

	var b strings.Builder
	b.WriteString(strings.ToLower(parts[0]))
	for _, p := range parts[1:] {
		b.WriteString(titler.String(p))
	}
	return b.String()
}

// words splits on spaces, or on camel case boundaries when there are none,
// and capitalises the first letter of each camel case word.
func words(s string) []string {
	if strings.Contains(s, " ") {
		return strings.Split(s, " ")
	}

	r := []rune(s)
	var out []string
	start := 0
	for i := 1; i < len(r); i++ {
		lowerToUpper := unicode.IsLower(r[i-1]) && unicode.IsUpper(r[i])
		acronymEnd := unicode.IsUpper(r[i-1]) && unicode.IsUpper(r[i]) &&
			i+1 < len(r) && unicode.IsLower(r[i+1])
		if lowerToUpper || acronymEnd {
			out = append(out, string(r[start:i]))
			start = i
		}
	}
	if start < len(r) {
		out = append(out, string(r[start:]))
	}
	for i, w := range out {
		wr := []rune(w)
		wr[0] = unicode.ToUpper(wr[0])
		out[i] = string(wr)
	}
	return out
}
