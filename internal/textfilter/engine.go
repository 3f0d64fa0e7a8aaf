// Package textfilter selects and categorizes lines of recognized text.
package textfilter

import (
	"regexp"
	"strings"
	"unicode/utf8"

	apperrors "github.com/anime-shed/meter-reader-go/internal/errors"
	"github.com/anime-shed/meter-reader-go/internal/logger"
	"github.com/sirupsen/logrus"
)

// Rejection reasons, in evaluation order
const (
	ReasonLength          = "Length filter"
	ReasonNumbers         = "Contains numbers"
	ReasonLetters         = "Contains letters"
	ReasonSymbols         = "Contains symbols"
	ReasonExcludedKeyword = "Excluded keyword"
	ReasonKeyword         = "Keyword filter"
	ReasonPattern         = "Pattern filter"
	ReasonLineFilter      = "Line filter mismatch"
)

var (
	lineSplit = regexp.MustCompile(`[\r\n]+`)
	hasDigit  = regexp.MustCompile(`\d`)
	hasLetter = regexp.MustCompile(`[a-zA-Z]`)
	hasSymbol = regexp.MustCompile(`[^a-zA-Z0-9\s]`)
)

// RejectedLine is a line that failed a filter, with the first failing reason.
type RejectedLine struct {
	Line   string `json:"line"`
	Reason string `json:"reason"`
}

// Result partitions the input lines. Every input line is in exactly one of
// MatchedLines and RejectedLines, both in input order.
type Result struct {
	FilteredText  string              `json:"filtered_text"`
	MatchedLines  []string            `json:"matched_lines"`
	RejectedLines []RejectedLine      `json:"rejected_lines"`
	Categories    map[string][]string `json:"categories"`
	TotalLines    int                 `json:"total_lines"`
	MatchCount    int                 `json:"match_count"`
}

// Engine is a compiled Config. It is immutable and safe for concurrent use.
type Engine struct {
	cfg         Config
	keywords    []string
	exclude     []string
	patterns    []*regexp.Regexp
	lineFilters []*regexp.Regexp
	log         *logrus.Entry
}

// Compile validates cfg once. Patterns that do not compile are dropped,
// which makes them never match, and reported as InvalidFilterPattern
// errors; compilation itself never fails.
func (c Config) Compile() (*Engine, []error) {
	e := &Engine{
		cfg:      c,
		keywords: foldAll(c.Keywords, c.CaseSensitive),
		exclude:  foldAll(c.ExcludeKeywords, c.CaseSensitive),
		log:      logger.Component("textfilter"),
	}

	var errs []error
	for _, p := range c.Patterns {
		src := p
		if !c.CaseSensitive {
			src = "(?i)" + p
		}
		re, err := regexp.Compile(src)
		if err != nil {
			e.log.WithFields(logrus.Fields{"pattern": p}).WithError(err).Warn("Ignoring invalid filter pattern")
			errs = append(errs, apperrors.NewInvalidFilterPatternError(p, err))
			continue
		}
		e.patterns = append(e.patterns, re)
	}

	for _, cat := range Categories {
		if cat.Enabled != nil && cat.Enabled(c.LineFilters) {
			e.lineFilters = append(e.lineFilters, cat.Pattern)
		}
	}
	return e, errs
}

// Config returns the configuration the engine was compiled from.
func (e *Engine) Config() Config {
	return e.cfg
}

// Filter splits text into trimmed non-empty lines and runs every line
// through the filters. Only matched lines feed the categories.
func (e *Engine) Filter(text string) Result {
	res := Result{
		MatchedLines:  []string{},
		RejectedLines: []RejectedLine{},
		Categories:    emptyCategories(),
	}

	for _, raw := range lineSplit.Split(text, -1) {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		res.TotalLines++
		if reason := e.reject(line); reason != "" {
			res.RejectedLines = append(res.RejectedLines, RejectedLine{Line: line, Reason: reason})
			continue
		}
		res.MatchedLines = append(res.MatchedLines, line)
	}

	for _, line := range res.MatchedLines {
		for _, cat := range Categories {
			res.Categories[cat.Name] = append(res.Categories[cat.Name], cat.Pattern.FindAllString(line, -1)...)
		}
	}

	res.MatchCount = len(res.MatchedLines)
	res.FilteredText = strings.Join(res.MatchedLines, "\n")
	return res
}

// reject returns the first failing reason, or "" when the line passes.
func (e *Engine) reject(line string) string {
	cfg := e.cfg
	if n := utf8.RuneCountInString(line); n < cfg.MinLength || n > cfg.MaxLength {
		return ReasonLength
	}
	if !cfg.IncludeNumbers && hasDigit.MatchString(line) {
		return ReasonNumbers
	}
	if !cfg.IncludeLetters && hasLetter.MatchString(line) {
		return ReasonLetters
	}
	if !cfg.IncludeSymbols && hasSymbol.MatchString(line) {
		return ReasonSymbols
	}

	cmp := line
	if !cfg.CaseSensitive {
		cmp = strings.ToLower(line)
	}
	if e.matchesAny(cmp, e.exclude) {
		return ReasonExcludedKeyword
	}
	if len(e.keywords) > 0 && !e.matchesAny(cmp, e.keywords) {
		return ReasonKeyword
	}
	if len(cfg.Patterns) > 0 && !anyRegexp(e.patterns, line) {
		return ReasonPattern
	}
	if len(e.lineFilters) > 0 && !anyRegexp(e.lineFilters, line) {
		return ReasonLineFilter
	}
	return ""
}

func (e *Engine) matchesAny(cmp string, keywords []string) bool {
	for _, k := range keywords {
		if e.cfg.ExactMatch {
			if cmp == k {
				return true
			}
		} else if strings.Contains(cmp, k) {
			return true
		}
	}
	return false
}

func anyRegexp(res []*regexp.Regexp, line string) bool {
	for _, re := range res {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

func foldAll(words []string, caseSensitive bool) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		if !caseSensitive {
			w = strings.ToLower(w)
		}
		out = append(out, w)
	}
	return out
}
