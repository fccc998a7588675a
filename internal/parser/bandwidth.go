package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/diaglog/backend/internal/models"
)

// bandwidthGrammar handles the comma-delimited bandwidth series.
// Format: "timestamp,total_kbps,video_kbps,note"
// All-zero rows without a note are idle padding and are dropped; a
// zero row that carries a note (outage annotation) is real data.
type bandwidthGrammar struct {
	samples []models.BandwidthSample
}

func newBandwidthGrammar() *bandwidthGrammar {
	return &bandwidthGrammar{samples: make([]models.BandwidthSample, 0)}
}

func (g *bandwidthGrammar) line(s *sink, lineNum int, line string) {
	parts := strings.SplitN(line, ",", 4)
	if len(parts) < 3 {
		s.fail(lineNum, line, "expected at least 3 comma-delimited fields")
		return
	}

	tsStr := strings.TrimSpace(parts[0])
	if strings.EqualFold(tsStr, "timestamp") {
		return // header row
	}
	ts, err := s.parseStamp(tsStr)
	if err != nil {
		s.fail(lineNum, line, "invalid timestamp")
		return
	}
	if !s.inWindow(ts) {
		return
	}

	total, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		s.fail(lineNum, line, "invalid total bitrate")
		return
	}
	video, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
	if err != nil {
		s.fail(lineNum, line, "invalid video bitrate")
		return
	}

	var note string
	if len(parts) == 4 {
		note = strings.TrimSpace(parts[3])
	}
	if total == 0 && video == 0 && note == "" {
		return
	}
	g.samples = append(g.samples, models.BandwidthSample{
		Timestamp: ts,
		TotalKbps: total,
		VideoKbps: video,
		Note:      note,
	})
}

func (g *bandwidthGrammar) finish(s *sink) (interface{}, string, int) {
	var b strings.Builder
	b.WriteString("timestamp\ttotal_kbps\tvideo_kbps\tnote\n")
	for _, smp := range g.samples {
		fmt.Fprintf(&b, "%s\t%.0f\t%.0f\t%s\n",
			smp.Timestamp.Format("2006-01-02 15:04:05"), smp.TotalKbps, smp.VideoKbps, smp.Note)
	}
	return g.samples, b.String(), len(g.samples)
}
