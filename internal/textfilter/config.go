package textfilter

import (
	"encoding/json"
	"math"
)

// LineFilters require a line to contain at least one of the enabled kinds of
// content. With none enabled every line passes.
type LineFilters struct {
	ContainsEmail bool `json:"contains_email"`
	ContainsPhone bool `json:"contains_phone"`
	ContainsURL   bool `json:"contains_url"`
	ContainsDate  bool `json:"contains_date"`
	ContainsPrice bool `json:"contains_price"`
}

// Any reports whether at least one line filter is enabled.
func (lf LineFilters) Any() bool {
	return lf.ContainsEmail || lf.ContainsPhone || lf.ContainsURL || lf.ContainsDate || lf.ContainsPrice
}

// Config selects which recognized lines are kept. Fields absent from a JSON
// document keep their defaults.
type Config struct {
	Keywords        []string    `json:"keywords"`
	ExcludeKeywords []string    `json:"exclude_keywords"`
	Patterns        []string    `json:"patterns"`
	IncludeNumbers  bool        `json:"include_numbers"`
	IncludeLetters  bool        `json:"include_letters"`
	IncludeSymbols  bool        `json:"include_symbols"`
	MinLength       int         `json:"min_length"`
	MaxLength       int         `json:"max_length"`
	CaseSensitive   bool        `json:"case_sensitive"`
	ExactMatch      bool        `json:"exact_match"`
	LineFilters     LineFilters `json:"line_filters"`
}

// DefaultConfig accepts every non-empty line.
func DefaultConfig() Config {
	return Config{
		Keywords:        []string{},
		ExcludeKeywords: []string{},
		Patterns:        []string{},
		IncludeNumbers:  true,
		IncludeLetters:  true,
		IncludeSymbols:  true,
		MinLength:       0,
		MaxLength:       math.MaxInt,
		CaseSensitive:   false,
		ExactMatch:      false,
	}
}

// MeterPreset keeps lines that look like a flow register readout.
func MeterPreset() Config {
	cfg := DefaultConfig()
	cfg.Keywords = []string{"FR1", "m3/Hr", "M3/Hr"}
	cfg.Patterns = []string{`FR1.*?m3/Hr`, `\d+\.\d+`}
	cfg.MinLength = 3
	cfg.MaxLength = 50
	return cfg
}

// Presets by name, for API callers.
var Presets = map[string]func() Config{
	"default": DefaultConfig,
	"meter":   MeterPreset,
}

// UnmarshalJSON overlays the document onto DefaultConfig.
func (c *Config) UnmarshalJSON(data []byte) error {
	type plain Config
	p := plain(DefaultConfig())
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = Config(p)
	return nil
}

// ParseConfig decodes raw, returning DefaultConfig for an empty document.
func ParseConfig(raw json.RawMessage) (Config, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return DefaultConfig(), nil
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
