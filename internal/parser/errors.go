package parser

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/diaglog/backend/internal/models"
)

// ErrorLevel selects which error-classification filter runs. The four
// levels carry independent pattern lists; a stricter level is not
// assumed to be a subset of a looser one.
type ErrorLevel string

const (
	ErrorLevelKnown   ErrorLevel = "known"   // small set of known failure patterns
	ErrorLevelErrors  ErrorLevel = "errors"  // anything matching an error keyword
	ErrorLevelVerbose ErrorLevel = "verbose" // errors plus warnings and notices
	ErrorLevelAll     ErrorLevel = "all"     // every line
)

// ErrorLevels enumerates the filter levels in order of verbosity.
func ErrorLevels() []ErrorLevel {
	return []ErrorLevel{ErrorLevelKnown, ErrorLevelErrors, ErrorLevelVerbose, ErrorLevelAll}
}

// ParseErrorLevel resolves an error filter level, defaulting to known.
func ParseErrorLevel(s string) (ErrorLevel, error) {
	switch ErrorLevel(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return ErrorLevelKnown, nil
	case ErrorLevelKnown:
		return ErrorLevelKnown, nil
	case ErrorLevelErrors:
		return ErrorLevelErrors, nil
	case ErrorLevelVerbose:
		return ErrorLevelVerbose, nil
	case ErrorLevelAll:
		return ErrorLevelAll, nil
	}
	return "", fmt.Errorf("unknown error filter level: %q", s)
}

// errorsGrammar classifies log lines against the pattern list of one
// filter level.
type errorsGrammar struct {
	level      ErrorLevel
	patterns   []compiledPattern
	stampRegex *regexp.Regexp
	lines      []models.ErrorLine
	counts     map[string]int
}

type compiledPattern struct {
	category string
	re       *regexp.Regexp
}

func newErrorsGrammar(level ErrorLevel, rules *ErrorRules) *errorsGrammar {
	if level == "" {
		level = ErrorLevelKnown
	}
	if rules == nil {
		rules = DefaultErrorRules()
	}
	return &errorsGrammar{
		level:      level,
		patterns:   rules.compile(level),
		stampRegex: regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}:\d{2}(?:\.\d+)?)`),
		lines:      make([]models.ErrorLine, 0),
		counts:     make(map[string]int),
	}
}

func (g *errorsGrammar) line(s *sink, lineNum int, line string) {
	rec := models.ErrorLine{Raw: line}
	if m := g.stampRegex.FindStringSubmatch(line); m != nil {
		ts, err := s.parseStamp(m[1])
		if err == nil {
			if !s.inWindow(ts) {
				return
			}
			rec.Timestamp = ts
		}
	}

	if g.level == ErrorLevelAll {
		rec.Category = "all"
		g.lines = append(g.lines, rec)
		g.counts["all"]++
		return
	}

	for _, p := range g.patterns {
		if p.re.MatchString(line) {
			rec.Category = p.category
			g.lines = append(g.lines, rec)
			g.counts[p.category]++
			return
		}
	}
}

func (g *errorsGrammar) finish(s *sink) (interface{}, string, int) {
	var b strings.Builder
	fmt.Fprintf(&b, "filter level: %s\n", g.level)

	categories := make([]string, 0, len(g.counts))
	for c := range g.counts {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	for _, c := range categories {
		fmt.Fprintf(&b, "%s: %d\n", c, g.counts[c])
	}
	b.WriteString("\n")
	for _, l := range g.lines {
		fmt.Fprintf(&b, "[%s] %s\n", l.Category, l.Raw)
	}

	return map[string]interface{}{
		"level":  string(g.level),
		"counts": g.counts,
		"lines":  g.lines,
	}, b.String(), len(g.lines)
}
