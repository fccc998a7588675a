package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/diaglog/backend/internal/models"
)

// highUsageThreshold marks a sample as a warning even when the log did
// not carry an explicit warning form.
const highUsageThreshold = 90.0

// memoryGrammar handles memory usage lines for the VIC, corecard and
// server components. Three forms appear in the logs:
//
//	2025-01-01 10:00:00 VIC memory usage: 42%
//	2025-01-01 10:00:00 Corecard memory usage: 73% (1460 MB out of 2000 MB), cached - 250 MB
//	2025-01-01 10:00:00 WARNING: Server memory usage high: 91%
//
// Percent is always populated; the MB fields only when the detailed
// form was present.
type memoryGrammar struct {
	bareRegex     *regexp.Regexp
	detailedRegex *regexp.Regexp
	warningRegex  *regexp.Regexp
	samples       []models.MemorySample
}

func newMemoryGrammar() *memoryGrammar {
	stamp := `^(\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}:\d{2}(?:\.\d+)?)\s+`
	comp := `(VIC|Corecard|Server)`
	return &memoryGrammar{
		bareRegex:     regexp.MustCompile(stamp + comp + `\s+memory usage:\s*(\d+(?:\.\d+)?)%\s*$`),
		detailedRegex: regexp.MustCompile(stamp + comp + `\s+memory usage:\s*(\d+(?:\.\d+)?)%\s*\((\d+(?:\.\d+)?)\s*MB out of\s*(\d+(?:\.\d+)?)\s*MB\),\s*cached\s*-\s*(\d+(?:\.\d+)?)\s*MB\s*$`),
		warningRegex:  regexp.MustCompile(stamp + `WARNING:\s*` + comp + `\s+memory usage high:\s*(\d+(?:\.\d+)?)%\s*$`),
		samples:       make([]models.MemorySample, 0),
	}
}

func (g *memoryGrammar) line(s *sink, lineNum int, line string) {
	if !strings.Contains(line, "memory usage") {
		return
	}

	if m := g.detailedRegex.FindStringSubmatch(line); m != nil {
		sample, ok := g.base(s, lineNum, line, m[1], m[2], m[3])
		if !ok {
			return
		}
		sample.UsedMB = mustFloat(m[4])
		sample.TotalMB = mustFloat(m[5])
		sample.CachedMB = mustFloat(m[6])
		sample.Warning = sample.Percent >= highUsageThreshold
		g.samples = append(g.samples, sample)
		return
	}

	if m := g.warningRegex.FindStringSubmatch(line); m != nil {
		sample, ok := g.base(s, lineNum, line, m[1], m[2], m[3])
		if !ok {
			return
		}
		sample.Warning = true
		g.samples = append(g.samples, sample)
		return
	}

	if m := g.bareRegex.FindStringSubmatch(line); m != nil {
		sample, ok := g.base(s, lineNum, line, m[1], m[2], m[3])
		if !ok {
			return
		}
		sample.Warning = sample.Percent >= highUsageThreshold
		g.samples = append(g.samples, sample)
		return
	}

	s.fail(lineNum, line, "unrecognized memory usage form")
}

// base builds the common sample fields. ok is false when the line was
// filtered out by the time window or carried a bad timestamp.
func (g *memoryGrammar) base(s *sink, lineNum int, line, tsStr, compStr, pctStr string) (models.MemorySample, bool) {
	ts, err := s.parseStamp(tsStr)
	if err != nil {
		s.fail(lineNum, line, "invalid timestamp")
		return models.MemorySample{}, false
	}
	if !s.inWindow(ts) {
		return models.MemorySample{}, false
	}
	return models.MemorySample{
		Timestamp: ts,
		Component: models.Component(strings.ToLower(compStr)),
		Percent:   mustFloat(pctStr),
	}, true
}

func mustFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func (g *memoryGrammar) finish(s *sink) (interface{}, string, int) {
	var b strings.Builder
	b.WriteString("timestamp\tcomponent\tpercent\tused_mb\ttotal_mb\tcached_mb\twarning\n")
	for _, smp := range g.samples {
		fmt.Fprintf(&b, "%s\t%s\t%.1f\t%.0f\t%.0f\t%.0f\t%t\n",
			smp.Timestamp.Format("2006-01-02 15:04:05"), smp.Component,
			smp.Percent, smp.UsedMB, smp.TotalMB, smp.CachedMB, smp.Warning)
	}
	return g.samples, b.String(), len(g.samples)
}
