package parser

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/diaglog/backend/internal/models"
)

// modemStatsGrammar handles per-modem statistics blocks.
// A block starts with a modem identifier line, optionally prefixed by a
// timestamp, followed by tab-indented metric lines:
//
//	2025-01-01 10:00:00 Modem 3 (LTE)
//		signal: -67 dBm
//		throughput: 2450 kbps
//		packet_loss: 0.5 %
//		latency: 85 ms
//
// Metrics aggregate through running statistics so memory stays O(1) in
// the log length.
type modemStatsGrammar struct {
	headerRegex *regexp.Regexp
	metricRegex *regexp.Regexp
	current     string // modem id of the open block, "" when none
	skipBlock   bool   // block header fell outside the time window
	modems      map[string]*modemAgg
}

// runningStat aggregates count/sum/min/max without buffering samples.
type runningStat struct {
	count int64
	sum   float64
	min   float64
	max   float64
}

func (r *runningStat) add(v float64) {
	if r.count == 0 {
		r.min, r.max = v, v
	} else {
		r.min = math.Min(r.min, v)
		r.max = math.Max(r.max, v)
	}
	r.count++
	r.sum += v
}

func (r *runningStat) avg() float64 {
	if r.count == 0 {
		return 0
	}
	return r.sum / float64(r.count)
}

type modemAgg struct {
	connType   string
	signal     runningStat
	throughput runningStat
	loss       runningStat
	latency    runningStat
	samples    int64
}

func newModemStatsGrammar() *modemStatsGrammar {
	return &modemStatsGrammar{
		headerRegex: regexp.MustCompile(`^(?:(\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}:\d{2}(?:\.\d+)?)\s+)?Modem\s+(\S+)(?:\s+\(([^)]+)\))?\s*$`),
		metricRegex: regexp.MustCompile(`^\t\s*([a-z_]+)\s*:\s*(-?\d+(?:\.\d+)?)`),
		modems:      make(map[string]*modemAgg),
	}
}

func (g *modemStatsGrammar) line(s *sink, lineNum int, line string) {
	if m := g.headerRegex.FindStringSubmatch(line); m != nil {
		if m[1] != "" {
			ts, err := s.parseStamp(m[1])
			if err == nil && !s.inWindow(ts) {
				g.current, g.skipBlock = m[2], true
				return
			}
		}
		g.current, g.skipBlock = m[2], false
		agg := g.agg(m[2])
		if m[3] != "" {
			agg.connType = m[3]
		}
		agg.samples++
		return
	}

	if !strings.HasPrefix(line, "\t") {
		// Lines outside a stats block belong to other subsystems.
		g.current = ""
		return
	}
	if g.current == "" {
		s.fail(lineNum, line, "metric line without a modem block")
		return
	}
	if g.skipBlock {
		return
	}

	m := g.metricRegex.FindStringSubmatch(line)
	if m == nil {
		s.fail(lineNum, line, "unrecognized metric line")
		return
	}
	value, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		s.fail(lineNum, line, "invalid metric value")
		return
	}

	agg := g.agg(g.current)
	switch m[1] {
	case "signal":
		agg.signal.add(value)
	case "throughput":
		agg.throughput.add(value)
	case "packet_loss":
		agg.loss.add(value)
	case "latency":
		agg.latency.add(value)
	default:
		s.fail(lineNum, line, fmt.Sprintf("unknown metric %q", m[1]))
	}
}

func (g *modemStatsGrammar) agg(id string) *modemAgg {
	if a, ok := g.modems[id]; ok {
		return a
	}
	a := &modemAgg{}
	g.modems[id] = a
	return a
}

func (g *modemStatsGrammar) finish(s *sink) (interface{}, string, int) {
	ids := make([]string, 0, len(g.modems))
	for id := range g.modems {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	stats := make([]models.ModemStat, 0, len(ids))
	var b strings.Builder
	b.WriteString("modem\tconn\tsignal_avg\tthroughput_avg\tloss_avg\tlatency_avg\tsamples\n")
	for _, id := range ids {
		a := g.modems[id]
		stat := models.ModemStat{
			ModemID:        id,
			ConnectionType: a.connType,
			SignalAvg:      a.signal.avg(),
			SignalMin:      a.signal.min,
			SignalMax:      a.signal.max,
			ThroughputAvg:  a.throughput.avg(),
			ThroughputMin:  a.throughput.min,
			ThroughputMax:  a.throughput.max,
			PacketLossAvg:  a.loss.avg(),
			LatencyAvg:     a.latency.avg(),
			LatencyMin:     a.latency.min,
			LatencyMax:     a.latency.max,
			SampleCount:    a.samples,
		}
		stats = append(stats, stat)
		fmt.Fprintf(&b, "%s\t%s\t%.1f\t%.1f\t%.2f\t%.1f\t%d\n",
			id, a.connType, stat.SignalAvg, stat.ThroughputAvg, stat.PacketLossAvg, stat.LatencyAvg, stat.SampleCount)
	}
	return stats, b.String(), len(stats)
}
