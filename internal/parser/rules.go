package parser

import (
	"fmt"
	"io"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// ErrorRules defines the pattern lists for the error-classification
// filter levels. Each level carries its own independent list; the
// levels are not supersets of each other.
type ErrorRules struct {
	Known   []PatternRule `yaml:"known"`
	Errors  []PatternRule `yaml:"errors"`
	Verbose []PatternRule `yaml:"verbose"`
}

// PatternRule is one named regular expression.
type PatternRule struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`
}

// DefaultErrorRules returns the built-in pattern sets used when no
// rules file is configured.
func DefaultErrorRules() *ErrorRules {
	return &ErrorRules{
		Known: []PatternRule{
			{Name: "kernel_panic", Pattern: `(?i)kernel panic`},
			{Name: "oom_kill", Pattern: `(?i)out of memory|oom-killer`},
			{Name: "modem_reset", Pattern: `(?i)modem .* reset`},
			{Name: "link_down", Pattern: `(?i)link (went )?down`},
			{Name: "segfault", Pattern: `(?i)segfault|segmentation fault`},
		},
		Errors: []PatternRule{
			{Name: "error", Pattern: `(?i)\berror\b`},
			{Name: "failed", Pattern: `(?i)\bfail(ed|ure)?\b`},
			{Name: "critical", Pattern: `(?i)\bcritical\b`},
			{Name: "exception", Pattern: `(?i)\bexception\b`},
		},
		Verbose: []PatternRule{
			{Name: "error", Pattern: `(?i)\berror\b`},
			{Name: "failed", Pattern: `(?i)\bfail(ed|ure)?\b`},
			{Name: "critical", Pattern: `(?i)\bcritical\b`},
			{Name: "warning", Pattern: `(?i)\bwarn(ing)?\b`},
			{Name: "notice", Pattern: `(?i)\bnotice\b`},
			{Name: "retry", Pattern: `(?i)\bretry(ing)?\b`},
		},
	}
}

// LoadErrorRules reads a YAML rules file.
func LoadErrorRules(path string) (*ErrorRules, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseErrorRules(f)
}

// ParseErrorRules parses rules from a reader and validates every
// pattern compiles.
func ParseErrorRules(r io.Reader) (*ErrorRules, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var rules ErrorRules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parsing error rules: %w", err)
	}
	for _, set := range [][]PatternRule{rules.Known, rules.Errors, rules.Verbose} {
		for _, rule := range set {
			if _, err := regexp.Compile(rule.Pattern); err != nil {
				return nil, fmt.Errorf("rule %q: %w", rule.Name, err)
			}
		}
	}
	return &rules, nil
}

// compile builds the matcher list for one filter level. Level all needs
// no patterns.
func (r *ErrorRules) compile(level ErrorLevel) []compiledPattern {
	var set []PatternRule
	switch level {
	case ErrorLevelKnown:
		set = r.Known
	case ErrorLevelErrors:
		set = r.Errors
	case ErrorLevelVerbose:
		set = r.Verbose
	}
	out := make([]compiledPattern, 0, len(set))
	for _, rule := range set {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			continue
		}
		out = append(out, compiledPattern{category: rule.Name, re: re})
	}
	return out
}
