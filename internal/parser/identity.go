package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/diaglog/backend/internal/models"
)

// identityGrammar scans for device identity key:value lines scattered
// anywhere in the payload:
//
//	device id: BU-0452
//	server id: srv-eu-3
//	serial: 9F27A001
//
// One record per archive; fields fill opportunistically as found and
// absent fields simply stay empty. The first occurrence wins.
type identityGrammar struct {
	deviceRegex *regexp.Regexp
	serverRegex *regexp.Regexp
	serialRegex *regexp.Regexp
	identity    models.DeviceIdentity
}

func newIdentityGrammar() *identityGrammar {
	return &identityGrammar{
		deviceRegex: regexp.MustCompile(`(?i)\bdevice[ _]?id\s*[:=]\s*([A-Za-z0-9._-]+)`),
		serverRegex: regexp.MustCompile(`(?i)\bserver[ _]?id\s*[:=]\s*([A-Za-z0-9._-]+)`),
		serialRegex: regexp.MustCompile(`(?i)\bserial(?:[ _]?(?:number|no))?\s*[:=]\s*([A-Za-z0-9._-]+)`),
	}
}

func (g *identityGrammar) line(s *sink, lineNum int, line string) {
	if g.identity.DeviceID == "" {
		if m := g.deviceRegex.FindStringSubmatch(line); m != nil {
			g.identity.DeviceID = m[1]
		}
	}
	if g.identity.ServerID == "" {
		if m := g.serverRegex.FindStringSubmatch(line); m != nil {
			g.identity.ServerID = m[1]
		}
	}
	if g.identity.Serial == "" {
		if m := g.serialRegex.FindStringSubmatch(line); m != nil {
			g.identity.Serial = m[1]
		}
	}
}

func (g *identityGrammar) finish(s *sink) (interface{}, string, int) {
	var b strings.Builder
	fmt.Fprintf(&b, "device_id: %s\n", orDash(g.identity.DeviceID))
	fmt.Fprintf(&b, "server_id: %s\n", orDash(g.identity.ServerID))
	fmt.Fprintf(&b, "serial: %s\n", orDash(g.identity.Serial))
	return g.identity, b.String(), 1
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
