package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/diaglog/backend/internal/models"
)

// gradeThreshold separates good from bad quality metric pairs. Both
// values of a pair must reach it for the sample to be tagged good.
const gradeThreshold = 70.0

// gradingGrammar handles service-quality grading lines. Service level
// announcements interleave with paired quality metrics:
//
//	2025-01-01 10:00:00 ModemID 0 Full Service
//	2025-01-01 10:00:05 ModemID 0 quality: 87.5 92.1
//	2025-01-01 10:01:00 ModemID 0 Limited Service
//
// A service-change event is recorded once per transition; repeating the
// current level is not a transition.
type gradingGrammar struct {
	serviceRegex *regexp.Regexp
	metricRegex  *regexp.Regexp
	levels       map[string]models.ServiceLevel
	events       []models.GradingEvent
}

func newGradingGrammar() *gradingGrammar {
	stamp := `^(\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}:\d{2}(?:\.\d+)?)\s+`
	return &gradingGrammar{
		serviceRegex: regexp.MustCompile(stamp + `ModemID\s+(\S+)\s+(Full|Limited)\s+Service\s*$`),
		metricRegex:  regexp.MustCompile(stamp + `ModemID\s+(\S+)\s+quality:\s*(-?\d+(?:\.\d+)?)\s+(-?\d+(?:\.\d+)?)\s*$`),
		levels:       make(map[string]models.ServiceLevel),
		events:       make([]models.GradingEvent, 0),
	}
}

func (g *gradingGrammar) line(s *sink, lineNum int, line string) {
	if !strings.Contains(line, "ModemID") {
		return
	}

	if m := g.serviceRegex.FindStringSubmatch(line); m != nil {
		ts, err := s.parseStamp(m[1])
		if err != nil {
			s.fail(lineNum, line, "invalid timestamp")
			return
		}
		if !s.inWindow(ts) {
			return
		}
		level := models.ServiceFull
		if m[3] == "Limited" {
			level = models.ServiceLimited
		}
		if prev, ok := g.levels[m[2]]; ok && prev == level {
			return // not a transition
		}
		g.levels[m[2]] = level
		g.events = append(g.events, models.GradingEvent{
			ModemID:   m[2],
			Timestamp: ts,
			Kind:      models.EventServiceChange,
			Level:     level,
			Good:      level == models.ServiceFull,
		})
		return
	}

	if m := g.metricRegex.FindStringSubmatch(line); m != nil {
		ts, err := s.parseStamp(m[1])
		if err != nil {
			s.fail(lineNum, line, "invalid timestamp")
			return
		}
		if !s.inWindow(ts) {
			return
		}
		a, b := mustFloat(m[3]), mustFloat(m[4])
		g.events = append(g.events, models.GradingEvent{
			ModemID:   m[2],
			Timestamp: ts,
			Kind:      models.EventQualityMetric,
			MetricA:   a,
			MetricB:   b,
			Good:      a >= gradeThreshold && b >= gradeThreshold,
		})
		return
	}

	s.fail(lineNum, line, "unrecognized grading line")
}

func (g *gradingGrammar) finish(s *sink) (interface{}, string, int) {
	var b strings.Builder
	b.WriteString("timestamp\tmodem\tkind\tdetail\tgood\n")
	for _, e := range g.events {
		detail := string(e.Level)
		if e.Kind == models.EventQualityMetric {
			detail = fmt.Sprintf("%.1f/%.1f", e.MetricA, e.MetricB)
		}
		fmt.Fprintf(&b, "%s\t%s\t%s\t%s\t%t\n",
			e.Timestamp.Format("2006-01-02 15:04:05"), e.ModemID, e.Kind, detail, e.Good)
	}
	return g.events, b.String(), len(g.events)
}
