// Package extractor finds a labeled reading such as "FR1:041.09 m3/Hr" in
// recognized text and normalizes it.
package extractor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/anime-shed/meter-reader-go/pkg/models"
)

// Field names a register on the meter display by its label and unit.
type Field struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Unit  string `json:"unit"`
}

// Known registers
var (
	FlowRate  = Field{Name: "flow_rate", Label: "FR1", Unit: "m3/Hr"}
	Totalizer = Field{Name: "totalizer", Label: "T1", Unit: "m3"}
)

// Extractor matches one field. It is immutable and safe for concurrent use.
type Extractor struct {
	field Field
	re    *regexp.Regexp
}

// New compiles the pattern for field. Label and unit match case-insensitively;
// a "/" or "\" in the unit matches either separator or none.
func New(field Field) (*Extractor, error) {
	if strings.TrimSpace(field.Label) == "" {
		return nil, fmt.Errorf("field %q has no label", field.Name)
	}
	src := `(?i)` + regexp.QuoteMeta(field.Label) + `[:\s]*([0-9]+(?:\.[0-9]+)?)`
	if unit := unitPattern(field.Unit); unit != "" {
		src += `[^\d]*` + unit
	}
	re, err := regexp.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("compile pattern for %q: %w", field.Name, err)
	}
	return &Extractor{field: field, re: re}, nil
}

// MustNew is New for package-level fields known to be valid.
func MustNew(field Field) *Extractor {
	x, err := New(field)
	if err != nil {
		panic(err)
	}
	return x
}

func unitPattern(unit string) string {
	unit = strings.TrimSpace(unit)
	if unit == "" {
		return ""
	}
	parts := strings.FieldsFunc(unit, func(r rune) bool { return r == '/' || r == '\\' })
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return strings.Join(parts, `[/\\]?`)
}

// Field returns the field this extractor matches.
func (x *Extractor) Field() Field {
	return x.field
}

// Extract returns the first match in text. No match is not an error.
func (x *Extractor) Extract(text string) (models.ExtractedValue, bool) {
	if text == "" {
		return models.ExtractedValue{}, false
	}
	m := x.re.FindStringSubmatch(text)
	if m == nil {
		return models.ExtractedValue{}, false
	}
	normalized, ok := NormalizeReading(m[1])
	if !ok {
		return models.ExtractedValue{}, false
	}
	return models.ExtractedValue{Raw: m[1], Normalized: normalized}, true
}

// Source of a fallback match
const (
	SourceFiltered = "filtered"
	SourceRaw      = "raw"
)

// ExtractWithFallback tries the filtered text first, then the raw text, and
// reports which one matched.
func (x *Extractor) ExtractWithFallback(filtered, raw string) (models.ExtractedValue, string, bool) {
	if v, ok := x.Extract(filtered); ok {
		return v, SourceFiltered, true
	}
	if v, ok := x.Extract(raw); ok {
		return v, SourceRaw, true
	}
	return models.ExtractedValue{}, "", false
}

var (
	nonReading   = regexp.MustCompile(`[^0-9.]`)
	validReading = regexp.MustCompile(`^\d+(?:\.\d+)?$`)
)

// NormalizeReading keeps the first decimal point, drops every character
// other than digits and that point, and strips superfluous leading zeros
// from the integer part. Fractional digits are kept as given, so "041.090"
// becomes "41.090". ok is false when no valid number remains.
func NormalizeReading(s string) (string, bool) {
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i+1] + strings.ReplaceAll(s[i+1:], ".", "")
	}
	s = nonReading.ReplaceAllString(s, "")
	if !validReading.MatchString(s) {
		return "", false
	}

	intPart, frac, hasFrac := strings.Cut(s, ".")
	intPart = strings.TrimLeft(intPart, "0")
	if intPart == "" {
		intPart = "0"
	}
	if hasFrac {
		return intPart + "." + frac, true
	}
	return intPart, true
}

// DecimalPlaces counts the digits after the decimal point.
func DecimalPlaces(reading string) int {
	if _, frac, ok := strings.Cut(reading, "."); ok {
		return len(frac)
	}
	return 0
}

// ReadingFromCharacters assembles a reading from per-character recognizer
// output. The ROI is the union of all character boxes and the confidence is
// the mean character confidence.
func ReadingFromCharacters(chars []models.CharacterResult) models.Reading {
	if len(chars) == 0 {
		return models.Reading{}
	}

	var sb strings.Builder
	var sum float64
	roi := chars[0].BBox
	for _, c := range chars {
		sb.WriteString(c.Char)
		sum += c.Confidence
		roi = roi.Union(c.BBox)
	}

	value, _ := NormalizeReading(sb.String())
	return models.Reading{
		Value:         value,
		DecimalPlaces: DecimalPlaces(value),
		Confidence:    sum / float64(len(chars)),
		ROI:           &roi,
	}
}
