package parser

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/diaglog/backend/internal/models"
)

// sessionsGrammar correlates stream start/stop markers by session id.
// Markers are not necessarily adjacent:
//
//	2025-01-01 10:00:00 Stream started, session id: A1B2
//	2025-01-01 10:30:00 Stream stopped, session id: A1B2
//
// A session missing one marker is still emitted, tagged start_only or
// end_only. Output is sorted chronologically, not by discovery order.
type sessionsGrammar struct {
	markerRegex *regexp.Regexp
	sessions    map[string]*sessionPair
}

type sessionPair struct {
	start *time.Time
	end   *time.Time
}

func newSessionsGrammar() *sessionsGrammar {
	return &sessionsGrammar{
		markerRegex: regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}:\d{2}(?:\.\d+)?)\s+.*?[Ss]tream\s+(start|stop)(?:ped|ed)?\b.*?[Ss]ession\s+[Ii][Dd]\s*[:=]?\s*([A-Za-z0-9_-]+)`),
		sessions:    make(map[string]*sessionPair),
	}
}

func (g *sessionsGrammar) line(s *sink, lineNum int, line string) {
	if !strings.Contains(line, "tream") {
		return // not a session marker, other modes own these lines
	}
	m := g.markerRegex.FindStringSubmatch(line)
	if m == nil {
		if strings.Contains(strings.ToLower(line), "session id") {
			s.fail(lineNum, line, "malformed session marker")
		}
		return
	}

	ts, err := s.parseStamp(m[1])
	if err != nil {
		s.fail(lineNum, line, "invalid timestamp")
		return
	}
	if !s.inWindow(ts) {
		return
	}

	pair, ok := g.sessions[m[3]]
	if !ok {
		pair = &sessionPair{}
		g.sessions[m[3]] = pair
	}
	switch m[2] {
	case "start":
		pair.start = &ts
	case "stop":
		pair.end = &ts
	}
}

func (g *sessionsGrammar) finish(s *sink) (interface{}, string, int) {
	sessions := make([]models.Session, 0, len(g.sessions))
	for id, pair := range g.sessions {
		sess := models.Session{SessionID: id, Start: pair.start, End: pair.end}
		switch {
		case pair.start != nil && pair.end != nil:
			sess.Status = models.SessionComplete
			sess.Duration = pair.end.Sub(*pair.start).Seconds()
		case pair.start != nil:
			sess.Status = models.SessionStartOnly
		default:
			sess.Status = models.SessionEndOnly
		}
		sessions = append(sessions, sess)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessionSortKey(sessions[i]).Before(sessionSortKey(sessions[j]))
	})

	var b strings.Builder
	b.WriteString("session\tstart\tend\tstatus\tduration_s\n")
	for _, sess := range sessions {
		fmt.Fprintf(&b, "%s\t%s\t%s\t%s\t%.0f\n",
			sess.SessionID, stampOrDash(sess.Start), stampOrDash(sess.End), sess.Status, sess.Duration)
	}
	return sessions, b.String(), len(sessions)
}

// sessionSortKey orders sessions by start time, falling back to the end
// time for end-only sessions.
func sessionSortKey(s models.Session) time.Time {
	if s.Start != nil {
		return *s.Start
	}
	return *s.End
}

func stampOrDash(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}
