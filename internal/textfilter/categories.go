package textfilter

import "regexp"

// Category names
const (
	CategoryEmails  = "emails"
	CategoryPhones  = "phones"
	CategoryURLs    = "urls"
	CategoryDates   = "dates"
	CategoryPrices  = "prices"
	CategoryNumbers = "numbers"
)

// Category is one entry of the category table. The same pattern collects
// category matches and backs the corresponding line filter.
type Category struct {
	Name    string
	Pattern *regexp.Regexp
	// Enabled reports whether the line filter for this category is on;
	// nil when the category has no line filter.
	Enabled func(LineFilters) bool
}

// Categories is the single category table, in result order.
var Categories = []Category{
	{
		Name:    CategoryEmails,
		Pattern: regexp.MustCompile(`(?i)[\w.+-]+@[\w.-]+\.[a-z]{2,}`),
		Enabled: func(lf LineFilters) bool { return lf.ContainsEmail },
	},
	{
		Name:    CategoryPhones,
		Pattern: regexp.MustCompile(`\+?\d[\d\s\-()]{5,}\d`),
		Enabled: func(lf LineFilters) bool { return lf.ContainsPhone },
	},
	{
		Name:    CategoryURLs,
		Pattern: regexp.MustCompile(`(?i)https?://[^\s]+`),
		Enabled: func(lf LineFilters) bool { return lf.ContainsURL },
	},
	{
		Name:    CategoryDates,
		Pattern: regexp.MustCompile(`\d{1,2}[/-]\d{1,2}[/-]\d{2,4}`),
		Enabled: func(lf LineFilters) bool { return lf.ContainsDate },
	},
	{
		Name:    CategoryPrices,
		Pattern: regexp.MustCompile(`\$\s*\d+(?:\.\d+)?`),
		Enabled: func(lf LineFilters) bool { return lf.ContainsPrice },
	},
	{
		Name:    CategoryNumbers,
		Pattern: regexp.MustCompile(`\b\d+(?:\.\d+)?\b`),
	},
}

// emptyCategories returns a map with every category present.
func emptyCategories() map[string][]string {
	m := make(map[string][]string, len(Categories))
	for _, c := range Categories {
		m[c.Name] = []string{}
	}
	return m
}
